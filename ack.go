package roomcast

import (
	"sync"
	"sync/atomic"
)

// correlator matches acknowledgment-expecting emissions to their eventual
// replies. Each emission gets a monotonically increasing correlation id that
// travels in the packet's ID field; the peer's reply carries it back.
//
// An id resolves at most once: duplicate, late, or unknown replies are
// silently discarded.
type correlator struct {
	next    atomic.Int64
	pending sync.Map // int64 -> chan []any
}

// register allocates a correlation id and the channel its reply will arrive
// on. The channel is buffered so a reply racing a timeout never blocks the
// resolving side.
func (c *correlator) register() (int64, chan []any) {
	id := c.next.Add(1)
	ch := make(chan []any, 1)
	c.pending.Store(id, ch)
	return id, ch
}

// resolve delivers a reply to the waiter for id, if one is still pending.
// Returns false when the id is unknown, already resolved, or timed out.
func (c *correlator) resolve(id int64, args []any) bool {
	val, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	val.(chan []any) <- args
	return true
}

// purge drops a pending correlation entry, typically on timeout or send
// failure. Safe to call for ids that already resolved.
func (c *correlator) purge(id int64) {
	c.pending.LoadAndDelete(id)
}
