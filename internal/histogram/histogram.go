/*
 * Copyright 2019 Dgraph Labs, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package histogram tracks the distribution of a stream of int64 samples
// into power-of-two buckets. blockcache uses one instance to record how
// many seconds elapse between a key's admission and its eviction.
package histogram

import (
	"fmt"
	"math"
	"strings"
)

// Bounds returns power-of-two bucket edges [2^min, ..., 2^max].
func Bounds(minExponent, maxExponent uint32) []float64 {
	var bounds []float64
	for i := minExponent; i <= maxExponent; i++ {
		bounds = append(bounds, float64(int(1)<<i))
	}
	return bounds
}

// Data stores counts per bucket plus running min/max/sum.
type Data struct {
	Bounds         []float64
	CountPerBucket []int64
	Count          int64
	Min            int64
	Max            int64
	Sum            int64
}

// New returns a Data instance ready to Update.
func New(bounds []float64) *Data {
	return &Data{
		Bounds:         bounds,
		CountPerBucket: make([]int64, len(bounds)+1),
		Min:            math.MaxInt64,
	}
}

// Copy returns a snapshot safe to hand to a caller outside the lock that
// protects the live Data.
func (d *Data) Copy() *Data {
	if d == nil {
		return nil
	}
	return &Data{
		Bounds:         append([]float64{}, d.Bounds...),
		CountPerBucket: append([]int64{}, d.CountPerBucket...),
		Count:          d.Count,
		Min:            d.Min,
		Max:            d.Max,
		Sum:            d.Sum,
	}
}

// Update records one sample.
func (d *Data) Update(value int64) {
	if d == nil {
		return
	}
	if value > d.Max {
		d.Max = value
	}
	if value < d.Min {
		d.Min = value
	}
	d.Sum += value
	d.Count++

	for index := 0; index <= len(d.Bounds); index++ {
		if index == len(d.Bounds) {
			d.CountPerBucket[index]++
			break
		}
		if value < int64(d.Bounds[index]) {
			d.CountPerBucket[index]++
			break
		}
	}
}

// String renders the histogram for diagnostics.
func (d *Data) String() string {
	if d == nil || d.Count == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" -- Histogram: ")
	fmt.Fprintf(&b, "Min value: %d ", d.Min)
	fmt.Fprintf(&b, "Max value: %d ", d.Max)
	fmt.Fprintf(&b, "Mean: %.2f ", float64(d.Sum)/float64(d.Count))

	numBounds := len(d.Bounds)
	for index, count := range d.CountPerBucket {
		if count == 0 {
			continue
		}
		if index == len(d.CountPerBucket)-1 {
			lowerBound := int(d.Bounds[numBounds-1])
			fmt.Fprintf(&b, "[%d, infinity) %d %.2f%% ", lowerBound, count,
				float64(count*100)/float64(d.Count))
			continue
		}
		upperBound := int(d.Bounds[index])
		lowerBound := 0
		if index > 0 {
			lowerBound = int(d.Bounds[index-1])
		}
		fmt.Fprintf(&b, "[%d, %d) %d %.2f%% ", lowerBound, upperBound, count,
			float64(count*100)/float64(d.Count))
	}
	b.WriteString(" --")
	return b.String()
}
