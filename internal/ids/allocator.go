package ids

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// localIDWidth is the fixed width of local order identifiers on the wire.
const localIDWidth = 12

// defaultSeed is the allocator floor used until a login response reports
// the vendor's last known maximum.
const defaultSeed = 1008888

// OrderIDAllocator hands out strictly increasing local order identifiers.
// Next and Raise are safe for concurrent use: order submission, cancel
// actions and callback-driven floor raises may all race.
type OrderIDAllocator struct {
	last   atomic.Int64
	seeded atomic.Bool
}

// NewOrderIDAllocator returns an allocator seeded with the protocol
// default floor.
func NewOrderIDAllocator() *OrderIDAllocator {
	a := &OrderIDAllocator{}
	a.last.Store(defaultSeed)
	return a
}

// Next allocates the next local identifier, zero-padded to the wire width.
func (a *OrderIDAllocator) Next() string {
	return FormatLocalID(a.last.Add(1))
}

// Adopt records the vendor-reported last local id from a login response.
// Only the login response may call this; everywhere else Raise applies.
// The first report replaces the default seed even when lower; reports
// from reconnect logins can be stale, so they only lift the floor and
// identifiers issued earlier in the session are never reused.
func (a *OrderIDAllocator) Adopt(n int64) {
	if a.seeded.CompareAndSwap(false, true) {
		a.last.Store(n)
		return
	}
	a.Raise(n)
}

// Raise lifts the allocator floor to at least floor. The floor never
// regresses, so identifiers stay collision-free across reconnects even
// when raises arrive out of order.
func (a *OrderIDAllocator) Raise(floor int64) {
	for {
		cur := a.last.Load()
		if floor <= cur {
			return
		}
		if a.last.CompareAndSwap(cur, floor) {
			return
		}
	}
}

// Current returns the last allocated (or raised-to) value.
func (a *OrderIDAllocator) Current() int64 {
	return a.last.Load()
}

// FormatLocalID renders a local identifier in the fixed-width wire form.
func FormatLocalID(n int64) string {
	return fmt.Sprintf("%0*d", localIDWidth, n)
}

// ParseLocalID parses a wire-form local identifier.
func ParseLocalID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid local order id %q: %w", s, err)
	}
	return n, nil
}
