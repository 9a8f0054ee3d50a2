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

package blockcache

import (
	"time"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/silvertree-labs/blockcache/internal/clock"
	"github.com/silvertree-labs/blockcache/internal/ring"
	"github.com/silvertree-labs/blockcache/internal/rlog"
)

// itemSize is the per-entry storage overhead, added to every admitted
// item's declared cost unless Config.IgnoreInternalCost is set.
var itemSize = int64(unsafe.Sizeof(storeItem{}))

// numToKeep bounds the admission-timestamp map processItems maintains for
// the eviction-age histogram: once it grows past this, arbitrary entries
// are dropped rather than letting it grow unbounded under high churn.
const numToKeep = 100000

type itemCallback func(*Item)

// Cache is a thread-safe, cost-bounded, in-process cache combining TinyLFU
// admission with sampled-LFU eviction. The zero value is not usable; build
// one with Open.
type Cache struct {
	store     *shardedMap
	policy    *lfuPolicy
	getBuf    *ring.Buffer
	setBuf    chan *Item
	onEvict   itemCallback
	onReject  itemCallback
	onExit    func(interface{})
	keyToHash func(interface{}) (uint64, uint64)
	clock     clock.Clock
	log       rlog.Logger
	stop      chan struct{}
	ticker    *time.Ticker
	cost      func(value interface{}) int64

	Metrics *Metrics

	ignoreInternalCost bool
	isClosed           *atomic.Bool
}

// Config configures a Cache built with Open. Zero-valued GetBufferSize,
// SetBufferSize, KeyToHash, Clock and Log fall back to the defaults noted
// below; Open rejects a zero NumCounters or MaxCost, and a zero Metrics
// leaves metrics disabled. DefaultConfig returns the noted defaults.
type Config struct {
	// OnExit is called whenever a value leaves the cache for good
	// (rejected, evicted, or unconditionally displaced), so callers can
	// release external resources (e.g. a reference-counted block).
	OnExit func(val interface{})
	// OnEvict is called with the PartialEntry for every eviction victim.
	OnEvict func(item *PartialEntry)
	// OnReject is called with the PartialEntry for every rejected
	// admission.
	OnReject func(item *PartialEntry)
	// KeyToHash overrides the default two-hash key adapter.
	KeyToHash func(key interface{}) (uint64, uint64)
	// Cost computes an item's cost when Insert is called with cost 0.
	Cost func(value interface{}) int64
	// Clock overrides the wall-clock time source; defaults to clock.Real.
	Clock clock.Clock
	// Log overrides the coordinator's logger; defaults to a glog adapter.
	Log rlog.Logger

	// NumCounters is the TinyLFU width target (default 1e7). The
	// effective sketch width is the next power of two.
	NumCounters int64
	// MaxCost is the total cost ceiling (default 1 MiB).
	MaxCost int64
	// GetBufferSize is the capacity of each ring-buffer stripe (default
	// 64).
	GetBufferSize int64
	// SetBufferSize is the capacity of the mutation queue (default
	// 32768).
	SetBufferSize int64
	// IgnoreInternalCost omits the per-entry storage overhead from an
	// item's effective cost when true.
	IgnoreInternalCost bool
	// Metrics enables metrics collection when true (default true via
	// Open's default Config).
	Metrics bool
}

// DefaultConfig returns a Config with every field set to its documented
// default.
func DefaultConfig() *Config {
	return &Config{
		NumCounters:   1e7,
		MaxCost:       1 << 20,
		GetBufferSize: 64,
		SetBufferSize: 32768,
		Metrics:       true,
	}
}

// Open constructs a Cache from config, validating the fields that must be
// nonzero.
func Open(config *Config) (*Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch {
	case config.NumCounters == 0:
		return nil, errNumCountersZero
	case config.MaxCost == 0:
		return nil, errMaxCostZero
	}
	if config.SetBufferSize == 0 {
		config.SetBufferSize = 32768
	}
	if config.GetBufferSize == 0 {
		config.GetBufferSize = 64
	}
	log := config.Log
	if log == nil {
		log = rlog.Glog{}
	}
	c := clock.Real
	if config.Clock != nil {
		c = config.Clock
	}

	policy := newPolicy(config.NumCounters, config.MaxCost, log)
	cache := &Cache{
		store:              newShardedMap(c),
		policy:             policy,
		setBuf:             make(chan *Item, config.SetBufferSize),
		keyToHash:          config.KeyToHash,
		clock:              c,
		log:                log,
		stop:               make(chan struct{}),
		cost:               config.Cost,
		ignoreInternalCost: config.IgnoreInternalCost,
		ticker:             time.NewTicker(bucketDurationSecs * time.Second / 2),
		isClosed:           atomic.NewBool(false),
	}
	cache.getBuf = ring.NewBuffer(&ring.Config{
		Consumer: policy,
		Capacity: int(config.GetBufferSize),
	})
	cache.onExit = func(val interface{}) {
		if config.OnExit != nil && val != nil {
			config.OnExit(val)
		}
	}
	cache.onEvict = func(i *Item) {
		if config.OnEvict != nil {
			config.OnEvict(i.partial())
		}
		cache.onExit(i.Value)
	}
	cache.onReject = func(i *Item) {
		if config.OnReject != nil {
			config.OnReject(i.partial())
		}
		cache.onExit(i.Value)
	}
	if cache.keyToHash == nil {
		cache.keyToHash = KeyToHash
	}
	if config.Metrics {
		cache.Metrics = newMetrics()
		cache.policy.CollectMetrics(cache.Metrics)
	}
	go cache.processItems()
	return cache, nil
}

// Wait blocks until the write pipeline has drained every mutation
// enqueued before this call, by pushing a marker item through setBuf and
// waiting for the coordinator to reach it.
func (c *Cache) Wait() {
	if c == nil || c.isClosed.Load() {
		return
	}
	w := newWaiter()
	c.setBuf <- &Item{wg: w}
	w.wait()
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key interface{}) (interface{}, bool) {
	if c == nil || c.isClosed.Load() || key == nil {
		return nil, false
	}
	keyHash, conflictHash := c.keyToHash(key)
	c.getBuf.Push(keyHash)
	value, ok := c.store.Get(keyHash, conflictHash)
	if ok {
		c.Metrics.add(hit, keyHash, 1)
	} else {
		c.Metrics.add(miss, keyHash, 1)
	}
	return value, ok
}

// GetTTL returns the remaining TTL for key and whether it is present and
// unexpired. A present key with no TTL reports (0, true).
func (c *Cache) GetTTL(key interface{}) (time.Duration, bool) {
	if c == nil || key == nil {
		return 0, false
	}
	keyHash, conflictHash := c.keyToHash(key)
	if _, ok := c.store.Get(keyHash, conflictHash); !ok {
		return 0, false
	}
	expiration := c.store.Expiration(keyHash)
	if expiration.IsZero() {
		return 0, true
	}
	now := c.clock.Now()
	if now.After(expiration) {
		return 0, false
	}
	return expiration.Sub(now), true
}

// Insert adds key/value to the cache with the given cost and no TTL. See
// InsertWithTTL and InsertFull for the TTL and dynamic-cost variants.
func (c *Cache) Insert(key, value interface{}, cost int64) bool {
	return c.InsertWithTTL(key, value, cost, 0)
}

// InsertWithTTL is like Insert but the entry expires after ttl. A zero
// ttl never expires; a negative ttl is a no-op.
func (c *Cache) InsertWithTTL(key, value interface{}, cost int64, ttl time.Duration) bool {
	return c.insertInternal(key, value, cost, ttl, false)
}

// InsertFull is InsertWithTTL under its full name, matching the external
// interface's insert_full(key, value, cost, duration).
func (c *Cache) InsertFull(key, value interface{}, cost int64, ttl time.Duration) bool {
	return c.insertInternal(key, value, cost, ttl, false)
}

// SetIfPresent updates an existing key's value without admitting it if
// absent: a synchronous store check only, never a New mutation.
func (c *Cache) SetIfPresent(key, value interface{}, cost int64) bool {
	return c.insertInternal(key, value, cost, 0, true)
}

func (c *Cache) insertInternal(key, value interface{}, cost int64, ttl time.Duration, onlyUpdate bool) bool {
	if c == nil || c.isClosed.Load() || key == nil {
		return false
	}

	var expiration time.Time
	switch {
	case ttl == 0:
	case ttl < 0:
		return false
	default:
		expiration = c.clock.Now().Add(ttl)
	}

	keyHash, conflictHash := c.keyToHash(key)
	i := &Item{
		flag:       itemNew,
		Key:        keyHash,
		Conflict:   conflictHash,
		Value:      value,
		Cost:       cost,
		Expiration: expiration,
	}
	if onlyUpdate {
		i.flag = itemUpdate
	}

	// Updating the store synchronously (rather than only through the
	// pipeline) keeps a get issued right after this call from observing
	// the stale value, per spec's ordering guarantee for the synchronous
	// update path.
	if prev, ok := c.store.Update(i); ok {
		c.onExit(prev)
		i.flag = itemUpdate
	} else if onlyUpdate {
		return false
	}

	select {
	case c.setBuf <- i:
		return true
	default:
		if i.flag == itemUpdate {
			return true
		}
		c.Metrics.add(dropSets, keyHash, 1)
		c.log.Warningf("%v", sendFailFor(keyHash))
		return false
	}
}

// Remove deletes key from the cache, reporting whether it was present.
func (c *Cache) Remove(key interface{}) bool {
	if c == nil || c.isClosed.Load() || key == nil {
		return false
	}
	keyHash, conflictHash := c.keyToHash(key)
	_, prev, found := c.store.Del(keyHash, conflictHash)
	c.onExit(prev)
	// Push the delete onto the pipeline too, so a set-then-delete by the
	// same caller settles in submission order rather than racing the
	// coordinator's admission of an in-flight New for the same key.
	c.setBuf <- &Item{flag: itemDelete, Key: keyHash, Conflict: conflictHash}
	return found
}

// UpdateCost changes the cost the policy accounts for key, without
// touching its value or expiry. Returns ErrKeyDoesntExist if key is
// absent from the policy's cost map.
func (c *Cache) UpdateCost(key interface{}, cost int64) error {
	if c == nil || c.isClosed.Load() || key == nil {
		return ErrCacheClosed
	}
	keyHash, _ := c.keyToHash(key)
	if !c.policy.Has(keyHash) {
		return ErrKeyDoesntExist
	}
	c.policy.Update(keyHash, cost)
	return nil
}

// MaxCost returns the cache's current cost ceiling.
func (c *Cache) MaxCost() int64 {
	if c == nil {
		return 0
	}
	return c.policy.MaxCost()
}

// UpdateMaxCost changes the cache's cost ceiling at runtime.
func (c *Cache) UpdateMaxCost(maxCost int64) {
	if c == nil {
		return
	}
	c.policy.UpdateMaxCost(maxCost)
}

// Clear empties the store and resets all policy and metrics state. Not
// safe to call concurrently with Get/Insert/Remove.
func (c *Cache) Clear() {
	if c == nil || c.isClosed.Load() {
		return
	}
	c.stop <- struct{}{}

drain:
	for {
		select {
		case i := <-c.setBuf:
			if i.wg != nil {
				i.wg.signal()
				continue
			}
			if i.flag != itemUpdate {
				c.onEvict(i)
			}
		default:
			break drain
		}
	}

	c.policy.Clear()
	c.store.Clear(c.onEvict)
	c.Metrics.Clear()
	go c.processItems()
}

// Close shuts the cache down: drains and discards pending state, stops
// the coordinator and policy workers, and makes every subsequent
// operation a no-op.
func (c *Cache) Close() {
	if c == nil || c.isClosed.Load() {
		return
	}
	c.Clear()
	c.stop <- struct{}{}
	close(c.stop)
	close(c.setBuf)
	c.policy.Close()
	c.ticker.Stop()
	c.isClosed.Store(true)
	c.log.Infof("blockcache: cache closed")
}

// processItems is the single coordinator worker: the only goroutine that
// ever mutates the policy or the store on behalf of a queued mutation.
func (c *Cache) processItems() {
	admitted := make(map[uint64]time.Time)

	trackAdmission := func(key uint64) {
		if c.Metrics == nil {
			return
		}
		admitted[key] = c.clock.Now()
		if len(admitted) > numToKeep {
			for k := range admitted {
				if len(admitted) <= numToKeep {
					break
				}
				delete(admitted, k)
			}
		}
	}
	onEvict := func(i *Item) {
		if ts, ok := admitted[i.Key]; ok {
			c.Metrics.trackEviction(int64(c.clock.Now().Sub(ts) / time.Second))
			delete(admitted, i.Key)
		}
		c.onEvict(i)
	}

	for {
		select {
		case i, ok := <-c.setBuf:
			if !ok {
				return
			}
			if i.wg != nil {
				i.wg.signal()
				continue
			}
			if i.Cost == 0 && c.cost != nil && i.flag != itemDelete {
				i.Cost = c.cost(i.Value)
			}
			if !c.ignoreInternalCost {
				i.Cost += itemSize
			}

			switch i.flag {
			case itemNew:
				victims, added := c.policy.Add(i.Key, i.Cost)
				if added {
					c.store.Set(i)
					c.Metrics.add(keyAdd, i.Key, 1)
					trackAdmission(i.Key)
				} else {
					c.onReject(i)
				}
				for _, victim := range victims {
					victim.Conflict, victim.Value, _ = c.store.Del(victim.Key, 0)
					onEvict(victim)
				}
			case itemUpdate:
				c.policy.Update(i.Key, i.Cost)
			case itemDelete:
				c.policy.Del(i.Key)
				_, val, _ := c.store.Del(i.Key, i.Conflict)
				c.onExit(val)
			}
		case <-c.ticker.C:
			c.store.Cleanup(c.policy, onEvict)
		case <-c.stop:
			return
		}
	}
}
