package blockcache

import "time"

type itemFlag byte

const (
	itemNew itemFlag = iota
	itemUpdate
	itemDelete
)

// Item travels through the write pipeline describing a pending mutation.
// Once the coordinator has applied it, stored entries carry no flag — the
// flag only has meaning on setBuf.
type Item struct {
	Expiration time.Time
	Value      interface{}
	wg         *waiter
	Key        uint64
	Conflict   uint64
	Cost       int64
	flag       itemFlag
}

// PartialEntry describes a key that left the cache — evicted, rejected, or
// unconditionally displaced — for delivery to a Handler. It carries no
// flag and no expiration: by the time a caller sees one, those no longer
// mean anything.
type PartialEntry struct {
	Value    interface{}
	Key      uint64
	Conflict uint64
	Cost     int64
}

func (i *Item) partial() *PartialEntry {
	return &PartialEntry{
		Key:      i.Key,
		Conflict: i.Conflict,
		Cost:     i.Cost,
		Value:    i.Value,
	}
}

// storeItem is what the sharded store actually holds: an entry with no
// pipeline flag, per invariant 2 of the data model.
type storeItem struct {
	value      interface{}
	expiration time.Time
	key        uint64
	conflict   uint64
}

// waiter lets Cache.Wait() block until a marker item has been drained by
// the coordinator, without the coordinator needing to know about
// sync.WaitGroup directly in the hot mutation switch.
type waiter struct {
	done chan struct{}
}

func newWaiter() *waiter   { return &waiter{done: make(chan struct{})} }
func (w *waiter) signal()  { close(w.done) }
func (w *waiter) wait()    { <-w.done }
