package blockcache

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/silvertree-labs/blockcache/internal/histogram"
)

type metricType int

const (
	hit metricType = iota
	miss
	keyAdd
	keyUpdate
	keyEvict
	costAdd
	costEvict
	dropSets
	rejectSets
	dropGets
	keepGets
	doNotUse
)

func stringFor(t metricType) string {
	switch t {
	case hit:
		return "hit"
	case miss:
		return "miss"
	case keyAdd:
		return "keys-added"
	case keyUpdate:
		return "keys-updated"
	case keyEvict:
		return "keys-evicted"
	case costAdd:
		return "cost-added"
	case costEvict:
		return "cost-evicted"
	case dropSets:
		return "sets-dropped"
	case rejectSets:
		return "sets-rejected"
	case dropGets:
		return "gets-dropped"
	case keepGets:
		return "gets-kept"
	default:
		return "unidentified"
	}
}

// numStripes controls how the hash space is spread across atomic counters
// to avoid false sharing. Only stripeSpread (25) distinct slots out of the
// 256 allocated ones are ever touched, at multiples of stripeStride, since
// add indexes by (hash%stripeSpread)*stripeStride; that's the teacher's
// layout and it's
// kept as-is rather than "fixed" since the point is spreading contention,
// not using every slot.
const numStripes = 256
const stripeSpread = 25
const stripeStride = 10

// Metrics is a snapshot-able set of striped counters tracking cache
// performance for the lifetime of a Cache.
type Metrics struct {
	all [doNotUse][]*uint64

	mu   sync.RWMutex
	life *histogram.Data
}

func newMetrics() *Metrics {
	m := &Metrics{
		life: histogram.New(histogram.Bounds(1, 16)),
	}
	for i := 0; i < int(doNotUse); i++ {
		m.all[i] = make([]*uint64, numStripes)
		for j := range m.all[i] {
			m.all[i][j] = new(uint64)
		}
	}
	return m
}

func (m *Metrics) add(t metricType, hash, delta uint64) {
	if m == nil {
		return
	}
	idx := (hash % stripeSpread) * stripeStride
	atomic.AddUint64(m.all[t][idx], delta)
}

func (m *Metrics) get(t metricType) uint64 {
	if m == nil {
		return 0
	}
	var total uint64
	for _, v := range m.all[t] {
		total += atomic.LoadUint64(v)
	}
	return total
}

// Hits is the number of Get calls that found a value.
func (m *Metrics) Hits() uint64 { return m.get(hit) }

// Misses is the number of Get calls that didn't find a value.
func (m *Metrics) Misses() uint64 { return m.get(miss) }

// KeysAdded is the number of admitted New mutations.
func (m *Metrics) KeysAdded() uint64 { return m.get(keyAdd) }

// KeysUpdated is the number of Update mutations applied.
func (m *Metrics) KeysUpdated() uint64 { return m.get(keyUpdate) }

// KeysEvicted is the number of keys removed from the policy's cost map:
// by the eviction loop, the TTL sweep, or an explicit Remove.
func (m *Metrics) KeysEvicted() uint64 { return m.get(keyEvict) }

// CostAdded is the total cost admitted over the cache's lifetime.
func (m *Metrics) CostAdded() uint64 { return m.get(costAdd) }

// CostEvicted is the total cost evicted over the cache's lifetime.
func (m *Metrics) CostEvicted() uint64 { return m.get(costEvict) }

// SetsDropped is the number of New mutations dropped because the write
// pipeline was full.
func (m *Metrics) SetsDropped() uint64 { return m.get(dropSets) }

// SetsRejected is the number of New mutations the admission policy
// declined because they lost the frequency comparison in the eviction
// loop. An item whose cost exceeds MaxCost is rejected without being
// counted here.
func (m *Metrics) SetsRejected() uint64 { return m.get(rejectSets) }

// GetsDropped is the number of access-hash observations the ring buffer
// failed to forward to the policy.
func (m *Metrics) GetsDropped() uint64 { return m.get(dropGets) }

// GetsKept is the number of access-hash observations the ring buffer
// successfully forwarded to the policy.
func (m *Metrics) GetsKept() uint64 { return m.get(keepGets) }

// Ratio is Hits / (Hits + Misses).
func (m *Metrics) Ratio() float64 {
	if m == nil {
		return 0
	}
	hits, misses := m.get(hit), m.get(miss)
	if hits == 0 && misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (m *Metrics) trackEviction(ageSeconds int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.life.Update(ageSeconds)
}

// EvictionAgeSeconds returns a snapshot of the key-lifetime histogram.
func (m *Metrics) EvictionAgeSeconds() *histogram.Data {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.life.Copy()
}

// Clear zeroes every counter and the eviction-age histogram.
func (m *Metrics) Clear() {
	if m == nil {
		return
	}
	for i := 0; i < int(doNotUse); i++ {
		for _, v := range m.all[i] {
			atomic.StoreUint64(v, 0)
		}
	}
	m.mu.Lock()
	m.life = histogram.New(histogram.Bounds(1, 16))
	m.mu.Unlock()
}

// String renders all metrics, formatting cost counters as human-readable
// byte sizes since cost is conventionally a byte weight.
func (m *Metrics) String() string {
	if m == nil {
		return ""
	}
	var buf bytes.Buffer
	for i := 0; i < int(doNotUse); i++ {
		t := metricType(i)
		switch t {
		case costAdd, costEvict:
			fmt.Fprintf(&buf, "%s: %s ", stringFor(t), humanize.Bytes(m.get(t)))
		default:
			fmt.Fprintf(&buf, "%s: %d ", stringFor(t), m.get(t))
		}
	}
	fmt.Fprintf(&buf, "gets-total: %d ", m.get(hit)+m.get(miss))
	fmt.Fprintf(&buf, "hit-ratio: %.2f", m.Ratio())
	return buf.String()
}
