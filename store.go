package blockcache

import (
	"sync"
	"time"

	"github.com/silvertree-labs/blockcache/internal/clock"
)

// numShards is fixed at 256, selected by key hash mod 256. This is a
// tradeoff between per-shard lock contention and per-shard map overhead,
// not something callers need to tune.
const numShards = 256

type storeShard struct {
	sync.RWMutex
	data map[uint64]storeItem
}

// shardedMap is the store: a 256-way sharded key hash -> entry map with
// per-shard locking and a shared expiration index for TTL sweeping.
type shardedMap struct {
	shards [numShards]*storeShard
	expire *expirationMap
	clock  clock.Clock
}

func newShardedMap(c clock.Clock) *shardedMap {
	sm := &shardedMap{expire: newExpirationMap(), clock: c}
	for i := range sm.shards {
		sm.shards[i] = &storeShard{data: make(map[uint64]storeItem)}
	}
	return sm
}

func (sm *shardedMap) shardFor(key uint64) *storeShard {
	return sm.shards[key%numShards]
}

// Get returns the value for (key, conflict) if present, unexpired, and
// (conflict == 0 or matching). A zero conflict hash skips the check
// entirely; Del follows the same rule, which is how eviction victims,
// whose conflict is deliberately not tracked, are removed (spec §9 open
// question).
func (sm *shardedMap) Get(key, conflict uint64) (interface{}, bool) {
	shard := sm.shardFor(key)
	shard.RLock()
	defer shard.RUnlock()
	item, ok := shard.data[key]
	if !ok {
		return nil, false
	}
	if conflict != 0 && item.conflict != conflict {
		return nil, false
	}
	if !item.expiration.IsZero() && sm.clock.Now().After(item.expiration) {
		return nil, false
	}
	return item.value, true
}

// Expiration returns the stored expiry for key, or the zero Time if the
// key is absent or has no TTL.
func (sm *shardedMap) Expiration(key uint64) time.Time {
	shard := sm.shardFor(key)
	shard.RLock()
	defer shard.RUnlock()
	return shard.data[key].expiration
}

// Set inserts or overwrites an entry. If the key already exists with a
// nonzero, mismatched conflict hash, the write is silently dropped — the
// previous holder of the slot keeps it (spec §9 open question: this is
// intentional, not a bug).
func (sm *shardedMap) Set(i *Item) {
	if i == nil {
		return
	}
	shard := sm.shardFor(i.Key)
	shard.Lock()
	defer shard.Unlock()

	if prev, ok := shard.data[i.Key]; ok {
		if i.Conflict != 0 && prev.conflict != i.Conflict {
			return
		}
	} else {
		sm.expire.add(i.Key, i.Conflict, i.Expiration)
	}
	shard.data[i.Key] = storeItem{
		key:        i.Key,
		conflict:   i.Conflict,
		value:      i.Value,
		expiration: i.Expiration,
	}
}

// Update overwrites the value and expiration of an existing key,
// returning the previous value. Returns ok=false when the key is absent
// (or its conflict hash doesn't match), telling the caller to treat the
// mutation as a New admission instead.
func (sm *shardedMap) Update(i *Item) (interface{}, bool) {
	shard := sm.shardFor(i.Key)
	shard.Lock()
	defer shard.Unlock()

	prev, ok := shard.data[i.Key]
	if !ok {
		return nil, false
	}
	if i.Conflict != 0 && prev.conflict != i.Conflict {
		return nil, false
	}
	sm.expire.update(i.Key, i.Conflict, prev.expiration, i.Expiration)
	shard.data[i.Key] = storeItem{
		key:        i.Key,
		conflict:   i.Conflict,
		value:      i.Value,
		expiration: i.Expiration,
	}
	return prev.value, true
}

// Del removes (key, conflict) if present and the conflict matches (a
// zero conflict skips the check), returning the prior conflict hash, the
// prior value, and whether a matching entry was actually removed — the
// prior two are ambiguous on their own since a legitimately-stored entry
// can carry a zero conflict hash and/or a nil value.
func (sm *shardedMap) Del(key, conflict uint64) (uint64, interface{}, bool) {
	shard := sm.shardFor(key)
	shard.Lock()
	defer shard.Unlock()

	item, ok := shard.data[key]
	if !ok {
		return 0, nil, false
	}
	if conflict != 0 && item.conflict != conflict {
		return 0, nil, false
	}
	if !item.expiration.IsZero() {
		sm.expire.remove(key, item.expiration)
	}
	delete(shard.data, key)
	return item.conflict, item.value, true
}

// Cleanup performs one sweep tick: it processes the bucket that is most
// recently fully past, removing any key whose current expiry is still
// <= now (re-checking against the store filters out keys that were
// updated into a later bucket after being indexed in this one).
func (sm *shardedMap) Cleanup(policy admissionPolicy, onEvict func(*Item)) {
	now := sm.clock.Now()
	b := sm.expire.cleanup(cleanupBucket(now))
	for key, conflict := range b {
		exp := sm.Expiration(key)
		if exp.IsZero() || exp.After(now) {
			continue
		}
		policy.Del(key)
		_, val, _ := sm.Del(key, conflict)
		onEvict(&Item{Key: key, Conflict: conflict, Value: val, flag: itemDelete})
	}
}

// Clear empties every shard, invoking onEvict for each surviving entry
// first.
func (sm *shardedMap) Clear(onEvict func(*Item)) {
	for _, shard := range sm.shards {
		shard.Lock()
		for key, item := range shard.data {
			onEvict(&Item{Key: key, Conflict: item.conflict, Value: item.value, flag: itemDelete})
		}
		shard.data = make(map[uint64]storeItem)
		shard.Unlock()
	}
	sm.expire = newExpirationMap()
}
