package tokenbudget

import "sync/atomic"

// Budget implements spec §4.B's TokenBudget: total, reserved_for_response,
// and a lock-free atomically consumed counter. Invariant: consumed +
// reserved ≤ total at all times; Consume uses compare-and-swap rather
// than a mutex so concurrent callers never over-subscribe (spec §5).
type Budget struct {
	total    int64
	reserved int64
	consumed atomic.Int64
}

// defaultReserved matches the original's default response reservation.
const defaultReserved = 4096

// New creates a Budget with an explicit reservation for the response.
func New(total, reservedForResponse int64) *Budget {
	return &Budget{total: total, reserved: reservedForResponse}
}

// NewWithTotal creates a Budget using the default response reservation.
func NewWithTotal(total int64) *Budget {
	return New(total, defaultReserved)
}

// CanAfford reports whether n additional tokens would still fit under the
// budget without consuming them.
func (b *Budget) CanAfford(n int64) bool {
	return b.consumed.Load()+n+b.reserved <= b.total
}

// Consume attempts to atomically consume n tokens. Returns false (without
// blocking) if doing so would exceed the budget.
func (b *Budget) Consume(n int64) bool {
	for {
		current := b.consumed.Load()
		if current+n+b.reserved > b.total {
			return false
		}
		if b.consumed.CompareAndSwap(current, current+n) {
			return true
		}
	}
}

// Remaining returns the tokens still available for consumption, excluding
// the reservation.
func (b *Budget) Remaining() int64 {
	r := b.total - (b.consumed.Load() + b.reserved)
	if r < 0 {
		return 0
	}
	return r
}

// Consumed returns the total tokens consumed so far.
func (b *Budget) Consumed() int64 { return b.consumed.Load() }

// Total returns the total budget.
func (b *Budget) Total() int64 { return b.total }

// Reset zeroes the consumed counter.
func (b *Budget) Reset() { b.consumed.Store(0) }

// Utilization returns consumed as a percentage of total.
func (b *Budget) Utilization() float64 {
	if b.total == 0 {
		return 0
	}
	return float64(b.consumed.Load()) / float64(b.total) * 100.0
}
