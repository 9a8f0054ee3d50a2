package blockcache

import "github.com/pkg/errors"

// ErrCacheClosed is returned by UpdateCost once the cache has been closed.
// The Insert variants, SetIfPresent and Remove report the closed state as
// false instead, and Get simply reports a miss — there is no failure mode
// for a read.
var ErrCacheClosed = errors.New("blockcache: cache is closed")

// ErrKeyDoesntExist is returned by UpdateCost when the key isn't present
// in the sampled-LFU cost map.
var ErrKeyDoesntExist = errors.New("blockcache: key does not exist")

// errNumCountersZero and errMaxCostZero are returned by Open when a
// required Config field is left unset.
var (
	errNumCountersZero = errors.New("blockcache: Config.NumCounters can't be zero")
	errMaxCostZero     = errors.New("blockcache: Config.MaxCost can't be zero")
)

// ErrSendFail describes a New mutation dropped because the write pipeline
// was full. sendFailFor wraps it with the key hash that was dropped, so the
// drop-path log shows which key was lost without plumbing it through a
// second return value.
var ErrSendFail = errors.New("blockcache: write pipeline is full, mutation dropped")

func sendFailFor(key uint64) error {
	return errors.Wrapf(ErrSendFail, "key hash %d", key)
}
