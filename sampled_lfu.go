package blockcache

import "go.uber.org/atomic"

// sampledLFUSize is how many candidates fillSample gathers before the
// policy picks the minimum-frequency one to evict.
const sampledLFUSize = 5

// policyPair is one (key hash, cost) tuple pulled into an eviction sample.
type policyPair struct {
	key  uint64
	cost int64
}

// sampledLFU tracks the cost of every key the policy currently admits.
// It has no notion of frequency itself — that comes from tinyLFU — it
// only knows which keys exist and how much they cost, so eviction
// candidates can be sampled and room-left can be computed.
type sampledLFU struct {
	keyCosts map[uint64]int64
	maxCost  *atomic.Int64
	used     int64
	metrics  *Metrics
}

func newSampledLFU(maxCost int64) *sampledLFU {
	return &sampledLFU{
		keyCosts: make(map[uint64]int64),
		maxCost:  atomic.NewInt64(maxCost),
	}
}

func (s *sampledLFU) getMaxCost() int64 {
	return s.maxCost.Load()
}

func (s *sampledLFU) updateMaxCost(maxCost int64) {
	s.maxCost.Store(maxCost)
}

// roomLeft is how much cost could still be added before exceeding
// maxCost, negative once a candidate of the given cost would overflow it.
func (s *sampledLFU) roomLeft(cost int64) int64 {
	return s.getMaxCost() - (s.used + cost)
}

// fillSample appends random (key, cost) pairs from the map into in until
// it reaches size or the map is exhausted. Map iteration order in Go is
// randomized per run, which is the only "randomness" this relies on —
// it is not a uniform sample, just a cheap approximation of one.
func (s *sampledLFU) fillSample(in []*policyPair, size int) []*policyPair {
	if len(in) >= size {
		return in
	}
	for key, cost := range s.keyCosts {
		in = append(in, &policyPair{key: key, cost: cost})
		if len(in) >= size {
			return in
		}
	}
	return in
}

// add inserts a new key. The caller must already know key isn't present
// (admission calls updateIfHas first): for a present key, add overwrites
// its cost entry and adds cost to used without subtracting the old cost.
func (s *sampledLFU) add(key uint64, cost int64) {
	s.keyCosts[key] = cost
	s.used += cost
}

// updateIfHas rewrites the cost of an existing key and reports whether it
// was present.
func (s *sampledLFU) updateIfHas(key uint64, cost int64) bool {
	if prev, ok := s.keyCosts[key]; ok {
		s.used += cost - prev
		s.keyCosts[key] = cost
		if s.metrics != nil {
			s.metrics.add(keyUpdate, key, 1)
		}
		return true
	}
	return false
}

// remove deletes key, adjusts used, and reports the eviction to metrics.
func (s *sampledLFU) remove(key uint64) {
	cost, ok := s.keyCosts[key]
	if !ok {
		return
	}
	s.used -= cost
	delete(s.keyCosts, key)
	if s.metrics != nil {
		s.metrics.add(keyEvict, key, 1)
		s.metrics.add(costEvict, key, uint64(cost))
	}
}

func (s *sampledLFU) clear() {
	s.used = 0
	s.keyCosts = make(map[uint64]int64)
}
