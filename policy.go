package blockcache

import (
	"math"
	"sync"

	"go.uber.org/atomic"

	"github.com/silvertree-labs/blockcache/internal/rlog"
)

// admissionPolicy is the narrow seam in front of whatever decides
// admission/eviction. lfuPolicy (TinyLFU + sampled LFU) is the only
// production implementation. shardedMap.Cleanup is coded against this
// interface, which lets tests substitute something simpler (see
// acceptAllPolicy in policy_test.go) to isolate store and TTL behavior
// from admission behavior. Cache itself holds the concrete *lfuPolicy, so
// the coordinator does not accept another implementation.
type admissionPolicy interface {
	Push(keys []uint64) bool
	Add(key uint64, cost int64) ([]*Item, bool)
	Has(key uint64) bool
	Del(key uint64)
	Update(key uint64, cost int64)
	Cost(key uint64) int64
	Cap() int64
	Clear()
	Close()
	MaxCost() int64
	UpdateMaxCost(maxCost int64)
	CollectMetrics(m *Metrics)
}

// lfuPolicy combines a tinyLFU admission estimator with a sampledLFU cost
// tracker under one mutex, and runs a small dedicated worker that folds
// ring-buffer batches into the sketch off the hot Get path.
type lfuPolicy struct {
	sync.Mutex
	admit      *tinyLFU
	costs      *sampledLFU
	sampleSize int
	itemsCh    chan []uint64
	stop       chan struct{}
	isClosed   *atomic.Bool
	metrics    *Metrics
	log        rlog.Logger
}

func newPolicy(numCounters, maxCost int64, log rlog.Logger) *lfuPolicy {
	if log == nil {
		log = rlog.Discard{}
	}
	p := &lfuPolicy{
		admit:      newTinyLFU(numCounters),
		costs:      newSampledLFU(maxCost),
		sampleSize: sampledLFUSize,
		itemsCh:    make(chan []uint64, 3),
		stop:       make(chan struct{}),
		isClosed:   atomic.NewBool(false),
		log:        log,
	}
	go p.processItems()
	return p
}

func (p *lfuPolicy) CollectMetrics(m *Metrics) {
	p.metrics = m
	p.costs.metrics = m
}

// processItems is the dedicated worker described in spec §4.5 "Policy
// threading": it is the only goroutine that ever increments tinyLFU (the
// coordinator's Add/Update/Del calls only read estimates and touch the
// cost map).
func (p *lfuPolicy) processItems() {
	for {
		select {
		case items := <-p.itemsCh:
			p.Lock()
			p.admit.push(items)
			p.Unlock()
		case <-p.stop:
			return
		}
	}
}

// Push hands a batch of access hashes from the ring buffer to the
// increment worker. Overflow (the worker's itemsCh is full) is dropped
// and counted, never blocks the caller.
func (p *lfuPolicy) Push(keys []uint64) bool {
	if p.isClosed.Load() || len(keys) == 0 {
		return len(keys) == 0
	}
	select {
	case p.itemsCh <- keys:
		p.metrics.add(keepGets, keys[0], uint64(len(keys)))
		return true
	default:
		p.metrics.add(dropGets, keys[0], uint64(len(keys)))
		return false
	}
}

// Add is the admission decision of spec §4.5. It returns the victims
// selected for eviction (if any) and whether the incoming key was
// admitted. A nil victims slice with added=false on an oversized item
// means "rejected outright, nothing to evict for it".
func (p *lfuPolicy) Add(key uint64, cost int64) ([]*Item, bool) {
	p.Lock()
	defer p.Unlock()

	if cost > p.costs.getMaxCost() {
		return nil, false
	}

	if p.costs.updateIfHas(key, cost) {
		// Already tracked: this is an update, not a new admission.
		return nil, false
	}

	room := p.costs.roomLeft(cost)
	if room >= 0 {
		p.costs.add(key, cost)
		p.metrics.add(costAdd, key, uint64(cost))
		return nil, true
	}

	incHits := p.admit.estimate(key)
	sample := make([]*policyPair, 0, p.sampleSize)
	victims := make([]*Item, 0)

	for ; room < 0; room = p.costs.roomLeft(cost) {
		sample = p.costs.fillSample(sample, p.sampleSize)

		minKey, minHits, minIdx, minCost := uint64(0), uint64(math.MaxUint64), 0, int64(0)
		for i, pair := range sample {
			if hits := p.admit.estimate(pair.key); hits < minHits {
				minKey, minHits, minIdx, minCost = pair.key, hits, i, pair.cost
			}
		}

		if incHits < minHits {
			p.metrics.add(rejectSets, key, 1)
			return victims, false
		}

		p.costs.remove(minKey)
		sample[minIdx] = sample[len(sample)-1]
		sample = sample[:len(sample)-1]
		victims = append(victims, &Item{Key: minKey, Conflict: 0, Cost: minCost})
	}

	p.costs.add(key, cost)
	p.metrics.add(costAdd, key, uint64(cost))
	return victims, true
}

func (p *lfuPolicy) Has(key uint64) bool {
	p.Lock()
	defer p.Unlock()
	_, ok := p.costs.keyCosts[key]
	return ok
}

func (p *lfuPolicy) Del(key uint64) {
	p.Lock()
	defer p.Unlock()
	p.costs.remove(key)
}

func (p *lfuPolicy) Update(key uint64, cost int64) {
	p.Lock()
	defer p.Unlock()
	p.costs.updateIfHas(key, cost)
}

func (p *lfuPolicy) Cost(key uint64) int64 {
	p.Lock()
	defer p.Unlock()
	if cost, ok := p.costs.keyCosts[key]; ok {
		return cost
	}
	return -1
}

func (p *lfuPolicy) Cap() int64 {
	p.Lock()
	defer p.Unlock()
	return p.costs.getMaxCost() - p.costs.used
}

func (p *lfuPolicy) Clear() {
	p.Lock()
	defer p.Unlock()
	p.admit.clear()
	p.costs.clear()
}

func (p *lfuPolicy) Close() {
	if p.isClosed.Swap(true) {
		return
	}
	p.log.Infof("blockcache: policy worker stopping")
	p.stop <- struct{}{}
	close(p.stop)
	close(p.itemsCh)
}

func (p *lfuPolicy) MaxCost() int64 {
	if p == nil || p.costs == nil {
		return 0
	}
	return p.costs.getMaxCost()
}

func (p *lfuPolicy) UpdateMaxCost(maxCost int64) {
	if p == nil || p.costs == nil {
		return
	}
	p.costs.updateMaxCost(maxCost)
}
