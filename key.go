package blockcache

import (
	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
)

// KeyToHash converts a caller-supplied key into the (primary, conflict)
// hash pair the rest of the cache operates on. The primary hash drives
// sharding, the count-min sketch, the doorkeeper, and the sampled-LFU
// costs map; the conflict hash disambiguates primary-hash collisions on
// read and delete.
//
// Integer keys hash to (value, 0): two distinct integers never collide, so
// there's nothing for a conflict hash to disambiguate. Strings and byte
// slices get two independent 64-bit hashes from unrelated algorithms
// (xxhash and farm's fingerprint), which is the general-purpose default
// recommended for any type for which no cheaper exact hash exists.
func KeyToHash(key interface{}) (primary uint64, conflict uint64) {
	if key == nil {
		return 0, 0
	}
	switch k := key.(type) {
	case uint64:
		return k, 0
	case int64:
		return uint64(k), 0
	case uint32:
		return uint64(k), 0
	case int32:
		return uint64(k), 0
	case int:
		return uint64(k), 0
	case string:
		return hashBytes([]byte(k))
	case []byte:
		return hashBytes(k)
	default:
		panic("blockcache: KeyToHash: unsupported key type, supply Config.KeyToHash")
	}
}

func hashBytes(b []byte) (uint64, uint64) {
	return xxhash.Sum64(b), farm.Fingerprint64(b)
}
