package blockcache

import (
	"math/rand"
)

// cmDepth is the number of independent counter rows. The spec fixes this
// at 4: a 4-row, 4-bit-counter count-min sketch, each row with its own
// random seed so that a collision in one row is unlikely to recur in
// another.
const cmDepth = 4

// cmSketch is a count-min sketch with 4-bit saturating counters, two per
// byte. It needs no internal synchronization: the policy holds a single
// outer lock around every operation that touches it.
type cmSketch struct {
	rows [cmDepth]cmRow
	seed [cmDepth]uint64
	mask uint64
}

// newCMSketch builds a sketch whose width is the next power of two at or
// above numCounters.
func newCMSketch(numCounters uint64) *cmSketch {
	if numCounters == 0 {
		numCounters = 1
	}
	width := next2Power(numCounters)
	s := &cmSketch{mask: width - 1}
	rnd := rand.New(rand.NewSource(int64(width)))
	for i := range s.rows {
		s.rows[i] = newCMRow(width)
		s.seed[i] = rnd.Uint64()
	}
	return s
}

// increment bumps the counter for h in every row, saturating at 15.
func (s *cmSketch) increment(h uint64) {
	for i := range s.rows {
		idx := (h ^ s.seed[i]) & s.mask
		s.rows[i].increment(idx)
	}
}

// estimate returns the minimum counter value across all rows, in [0, 15].
func (s *cmSketch) estimate(h uint64) uint64 {
	min := uint64(15)
	for i := range s.rows {
		idx := (h ^ s.seed[i]) & s.mask
		if v := s.rows[i].get(idx); v < min {
			min = v
		}
	}
	return min
}

// reset conservatively halves every counter (floor-halving), per the
// TinyLFU paper's freshness mechanism.
func (s *cmSketch) reset() {
	for i := range s.rows {
		s.rows[i].reset()
	}
}

// clear zeroes every counter outright, used on Cache.Clear.
func (s *cmSketch) clear() {
	for i := range s.rows {
		s.rows[i].clear()
	}
}

// cmRow packs two 4-bit counters per byte: the low nibble is the even
// index, the high nibble the odd one.
type cmRow []byte

func newCMRow(width uint64) cmRow {
	return make(cmRow, width/2)
}

func (r cmRow) get(n uint64) uint64 {
	return uint64(r[n/2]>>((n&1)*4)) & 0x0f
}

func (r cmRow) increment(n uint64) {
	i := n / 2
	shift := (n & 1) * 4
	v := (r[i] >> shift) & 0x0f
	if v < 15 {
		r[i] += 1 << shift
	}
}

func (r cmRow) reset() {
	for i := range r {
		// halve each nibble independently: (c >> 1) & 0x07 per nibble.
		r[i] = ((r[i] >> 1) & 0x77)
	}
}

func (r cmRow) clear() {
	for i := range r {
		r[i] = 0
	}
}

// next2Power rounds x up to the next power of two.
func next2Power(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}
