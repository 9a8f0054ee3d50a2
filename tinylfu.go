package blockcache

// tinyLFU is the admission-side half of the policy: a count-min sketch
// with a doorkeeper in front of it, periodically halved so that frequency
// estimates track recent access patterns rather than accumulating over
// the cache's entire lifetime.
type tinyLFU struct {
	sketch   *cmSketch
	door     *doorkeeper
	incrs    int64
	resetAt  int64
}

func newTinyLFU(numCounters int64) *tinyLFU {
	if numCounters <= 0 {
		numCounters = 1
	}
	return &tinyLFU{
		sketch:  newCMSketch(uint64(numCounters)),
		door:    newDoorkeeper(uint64(numCounters), 0.01),
		resetAt: numCounters,
	}
}

// increment records one observation of h. The first observation of any
// hash only sets its doorkeeper bit; the sketch counter only moves on the
// second and later observations.
func (t *tinyLFU) increment(h uint64) {
	if t.door.checkAndSet(h) {
		t.sketch.increment(h)
	}
	t.incrs++
	if t.incrs >= t.resetAt {
		t.sketch.reset()
		t.door.clear()
		t.incrs = 0
	}
}

// push feeds a batch of access hashes (as delivered by the ring buffer)
// through increment.
func (t *tinyLFU) push(hashes []uint64) {
	for _, h := range hashes {
		t.increment(h)
	}
}

// estimate returns the sketch's estimate for h, plus 1 if h is currently
// in the doorkeeper, for a combined range of [0, 16].
func (t *tinyLFU) estimate(h uint64) uint64 {
	est := t.sketch.estimate(h)
	if t.door.check(h) {
		est++
	}
	return est
}

func (t *tinyLFU) clear() {
	t.sketch.clear()
	t.door.clear()
	t.incrs = 0
}
