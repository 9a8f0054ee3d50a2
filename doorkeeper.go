package blockcache

import "math"

// doorkeeper is a single-array bloom filter absorbing the first
// observation of a key hash, so the count-min sketch only ever counts
// second-and-later observations. That doubles the effective range of the
// 4-bit counters for a given amount of memory, per section 3.4.2 of the
// TinyLFU paper.
type doorkeeper struct {
	data []byte
	seed [4]uint64
	mask uint64
}

// newDoorkeeper sizes the filter from the expected item count and target
// false-positive rate, using four hash functions derived from the input
// hash by xor-ing with independent seeds (cheaper than four unrelated
// hash algorithms, and indistinguishable in practice for this use).
func newDoorkeeper(numItems uint64, falsePositiveRate float64) *doorkeeper {
	if numItems == 0 {
		numItems = 1
	}
	bits := -1 * float64(numItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	numBytes := next2Power(uint64(math.Ceil(bits / 8)))
	if numBytes == 0 {
		numBytes = 1
	}
	d := &doorkeeper{
		data: make([]byte, numBytes),
		mask: numBytes - 1,
	}
	for i := range d.seed {
		d.seed[i] = uint64(i)*2654435761 + 0x9E3779B97F4A7C15
	}
	return d
}

func (d *doorkeeper) indices(h uint64) [4]uint64 {
	var idx [4]uint64
	for i, seed := range d.seed {
		mixed := h ^ seed
		byteIdx := (mixed >> 3) & d.mask
		bit := mixed & 7
		idx[i] = byteIdx*8 + bit
	}
	return idx
}

func (d *doorkeeper) has(byteIdx, bit uint64) bool {
	return d.data[byteIdx]&(1<<bit)>>bit == 1
}

// check reports whether h is present without recording it.
func (d *doorkeeper) check(h uint64) bool {
	for _, pos := range d.indices(h) {
		byteIdx, bit := pos/8, pos%8
		if !d.has(byteIdx, bit) {
			return false
		}
	}
	return true
}

// checkAndSet reports whether h was already present, and if not, records
// it. This is the operation the first-observation path relies on.
func (d *doorkeeper) checkAndSet(h uint64) bool {
	present := true
	for _, pos := range d.indices(h) {
		byteIdx, bit := pos/8, pos%8
		if !d.has(byteIdx, bit) {
			present = false
			d.data[byteIdx] |= 1 << bit
		}
	}
	return present
}

// clear sets every bit to 0.
func (d *doorkeeper) clear() {
	for i := range d.data {
		d.data[i] = 0
	}
}
