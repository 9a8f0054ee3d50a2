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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silvertree-labs/blockcache/internal/clock"
	"github.com/silvertree-labs/blockcache/internal/rlog"
)

func testConfig() *Config {
	return &Config{
		NumCounters: 1024,
		MaxCost:     1024,
		Metrics:     true,
		Log:         rlog.Discard{},
	}
}

// Scenario A — basic put/get.
func TestCacheBasicPutGet(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Insert("aba", 40, 40))
	c.Wait()

	v, ok := c.Get("aba")
	require.True(t, ok)
	require.Equal(t, 40, v)

	_, ok = c.Get("xyz")
	require.False(t, ok)

	require.Equal(t, uint64(1), c.Metrics.Hits())
	require.Equal(t, uint64(1), c.Metrics.Misses())
}

// Scenario B — TTL expiration. The real coordinator ticker runs on wall
// time regardless of an injected clock, so the bucket sweep is exercised
// directly (white-box, same package) instead of waiting out a real tick.
func TestCacheTTLExpiration(t *testing.T) {
	start := time.Unix(0, 0)
	mc := clock.NewManual(start)
	cfg := testConfig()
	cfg.Clock = mc
	c, err := Open(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.InsertWithTTL("bcd", 90, 90, 2*time.Second))
	c.Wait()

	v, ok := c.Get("bcd")
	require.True(t, ok)
	require.Equal(t, 90, v)

	mc.Advance(8 * time.Second)
	_, ok = c.Get("bcd")
	require.False(t, ok, "a get past expiry must miss even before the sweeper runs")

	var evicted []*Item
	c.store.Cleanup(c.policy, func(i *Item) { evicted = append(evicted, i) })
	require.Len(t, evicted, 1)

	keyHash, _ := c.keyToHash("bcd")
	_, ok = c.store.Get(keyHash, 0)
	require.False(t, ok, "the sweeper must have removed the key from the store")
}

// Scenario D — oversized item.
func TestCacheOversizedItemRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCost = 1000
	c, err := Open(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Insert("huge", "v", 1001), "Insert reports ok at the API even if the policy later rejects it")
	c.Wait()

	_, ok := c.Get("huge")
	require.False(t, ok)
	require.Equal(t, uint64(0), c.Metrics.KeysEvicted())
}

// Scenario E — write collision: two callers racing on the same primary
// hash with different conflict hashes. Exercised white-box against the
// store directly since the public API always derives the conflict hash
// from the key itself.
func TestCacheWriteCollision(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	c.store.Set(&Item{Key: 555, Conflict: 1, Value: "from-p1"})
	c.store.Set(&Item{Key: 555, Conflict: 2, Value: "from-p2"})

	v, ok := c.store.Get(555, 1)
	require.True(t, ok)
	require.Equal(t, "from-p1", v, "the first writer keeps the slot")

	_, ok = c.store.Get(555, 2)
	require.False(t, ok)
}

// Scenario F — ring loss tolerance.
func TestCacheRingLossTolerance(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	require.NotPanics(t, func() {
		for burst := 0; burst < 10; burst++ {
			for i := 0; i < 5; i++ {
				c.Get("missing-key")
			}
		}
	})
	c.Wait()
}

// Scenario C — admission rejection under cost pressure. The sampled
// eviction pool is randomized, so this asserts the cost-bound invariant
// holds and that rejection is at least possible under sustained pressure,
// rather than pinning an exact victim.
func TestCacheAdmissionUnderPressure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCost = 100
	cfg.NumCounters = 1024
	c, err := Open(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Insert(1, "v1", 1))
	c.Wait()

	// Bias TinyLFU towards key 1 so it tends to win eviction comparisons
	// against cold newcomers. Driving admit.increment directly (rather
	// than through the ring/Push channel) keeps this deterministic.
	c.policy.Lock()
	for i := 0; i < 50; i++ {
		c.policy.admit.increment(1)
	}
	c.policy.Unlock()

	anyRejected := false
	for i := 2; i < 40; i++ {
		c.Insert(i, "v", 30)
		c.Wait()
		if c.policy.Cap() < 0 {
			t.Fatalf("cost bound violated: cap=%d", c.policy.Cap())
		}
		if !c.policy.Has(uint64(i)) {
			anyRejected = true
		}
	}
	require.True(t, anyRejected, "sustained pressure with a biased frequency winner should reject at least one newcomer")
}

func TestCacheUpdateCostUnknownKey(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	err = c.UpdateCost("nope", 5)
	require.ErrorIs(t, err, ErrKeyDoesntExist)
}

func TestCacheUpdateCostKnownKey(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	c.Insert("k", "v", 10)
	c.Wait()

	require.NoError(t, c.UpdateCost("k", 20))
	keyHash, _ := c.keyToHash("k")
	require.Equal(t, int64(20), c.policy.Cost(keyHash))
}

func TestCacheRemove(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	c.Insert("k", "v", 10)
	c.Wait()
	require.True(t, c.Remove("k"))
	c.Wait()

	_, ok := c.Get("k")
	require.False(t, ok)

	require.False(t, c.Remove("k"), "removing an absent key reports false")
}

func TestCacheSetIfPresent(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	require.False(t, c.SetIfPresent("k", "v2", 10), "absent key must not be admitted by SetIfPresent")
	_, ok := c.Get("k")
	require.False(t, ok)

	c.Insert("k", "v1", 10)
	c.Wait()
	require.True(t, c.SetIfPresent("k", "v2", 10))
	v, _ := c.Get("k")
	require.Equal(t, "v2", v)
}

func TestCacheGetTTL(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	c.Insert("no-ttl", "v", 1)
	c.InsertWithTTL("with-ttl", "v", 1, time.Hour)
	c.Wait()

	ttl, ok := c.GetTTL("no-ttl")
	require.True(t, ok)
	require.Equal(t, time.Duration(0), ttl)

	ttl, ok = c.GetTTL("with-ttl")
	require.True(t, ok)
	require.Greater(t, ttl, time.Duration(0))

	_, ok = c.GetTTL("missing")
	require.False(t, ok)
}

func TestCacheClearResetsState(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	c.Insert("k", "v", 10)
	c.Wait()
	c.Clear()

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, uint64(0), c.Metrics.KeysAdded())
}

func TestCacheCloseIsIdempotentAndBlocksFurtherOps(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)

	c.Close()
	c.Close()

	require.False(t, c.Insert("k", "v", 1))
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestOpenRejectsZeroConfig(t *testing.T) {
	_, err := Open(&Config{MaxCost: 10})
	require.Error(t, err)

	_, err = Open(&Config{NumCounters: 10})
	require.Error(t, err)
}

func TestCacheMaxCostUpdate(t *testing.T) {
	c, err := Open(testConfig())
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, int64(1024), c.MaxCost())
	c.UpdateMaxCost(2048)
	require.Equal(t, int64(2048), c.MaxCost())
}
