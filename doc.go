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

// Package blockcache is an in-process, concurrent, cost-bounded cache
// intended for embedding inside storage engines (as a block cache) and
// other latency-sensitive services. It combines a TinyLFU admission policy
// (a 4-bit count-min sketch plus a bloom-filter doorkeeper) with a sampled
// LFU eviction policy, so that the working set it retains approximates the
// most frequently used keys under memory pressure rather than the most
// recently used ones.
//
// The cache is safe for concurrent use from any number of goroutines. Read
// operations (Get) never block on internal bookkeeping: they take a brief
// per-shard read lock and fan access-hash feedback out through a lossy ring
// buffer. Write operations (Insert, Remove) apply synchronously to the
// store when the key already exists, then hand a mutation to a bounded
// pipeline drained by a single coordinator goroutine, which is what owns
// the admission/eviction decision and keeps policy and store mutations
// ordered per key.
package blockcache
