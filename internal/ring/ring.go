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

// Package ring implements the lossy, contention-free feedback path that
// carries access-hash observations from cache readers to the admission
// policy. This is the "batching" process described in the BP-Wrapper paper
// (section III part A): instead of every Get taking a lock on the policy,
// hashes accumulate in small per-goroutine stripes and are flushed in
// batches once a stripe fills up.
package ring

import "sync"

// Consumer receives batches of hashes once a stripe fills up. Push's
// return value is ignored by the stripe: a failed push truncates the
// stripe rather than retrying, trading one set of observations for the
// ability to keep accepting new ones without blocking.
type Consumer interface {
	Push(hashes []uint64) bool
}

// Stripe is a single fixed-capacity local buffer. It is not safe for
// concurrent use; stripes are handed out one at a time by Buffer's pool.
type Stripe struct {
	consumer Consumer
	data     []uint64
	head     int
	capacity int
}

func newStripe(consumer Consumer, capacity int) *Stripe {
	return &Stripe{
		consumer: consumer,
		data:     make([]uint64, capacity),
		capacity: capacity,
	}
}

// Push appends a hash to the stripe, flushing (and resetting) it once full.
func (s *Stripe) Push(hash uint64) {
	s.data[s.head] = hash
	s.head++
	if s.head >= s.capacity {
		if s.consumer.Push(append(s.data[:0:0], s.data...)) {
			s.head = 0
			return
		}
		// The consumer couldn't take the batch (its own queue is full or
		// closed). Truncate rather than retry so the stripe is always
		// immediately reusable; which observations get dropped under
		// sustained contention is accepted loss, not a correctness bug.
		s.head = 0
	}
}

// Buffer is a pool of Stripes distributing Push calls across goroutines to
// keep the hot Get path lock-free. Stripes are pulled from a sync.Pool:
// Get never blocks (it allocates a fresh Stripe if none are idle), and any
// partially-filled Stripe the garbage collector reclaims from the pool
// between uses is lost along with its buffered hashes. That loss is by
// design: the feedback path is lossy, as the package doc says.
type Buffer struct {
	pool *sync.Pool
}

// Config configures a Buffer.
type Config struct {
	Consumer Consumer
	// Capacity is the number of hashes a stripe holds before flushing.
	Capacity int
}

// NewBuffer returns a striped, pool-backed ring buffer.
func NewBuffer(config *Config) *Buffer {
	return &Buffer{
		pool: &sync.Pool{
			New: func() interface{} { return newStripe(config.Consumer, config.Capacity) },
		},
	}
}

// Push hands the hash to a free (or freshly allocated) stripe. It never
// blocks and never returns an error: on the read path, losing an
// occasional observation is strictly preferable to adding latency.
func (b *Buffer) Push(hash uint64) {
	stripe := b.pool.Get().(*Stripe)
	stripe.Push(hash)
	b.pool.Put(stripe)
}
