// Package reward converts accumulated focus time into points.
//
// One point is awarded each time lifetime focus crosses a multiple of
// IntervalSeconds. Because awards are computed from the before and after
// totals rather than from per-tick elapsed time, the count is exact no matter
// how the seconds arrive (one per tick, or a large jump after a suspend).
package reward

// IntervalSeconds is the focus time that earns one point.
const IntervalSeconds int64 = 300

// Crossings is the number of IntervalSeconds boundaries passed moving focus
// from before to after. It is zero when after <= before.
func Crossings(before, after int64) int64 {
	if after <= before {
		return 0
	}
	if before < 0 {
		before = 0
	}
	return after/IntervalSeconds - before/IntervalSeconds
}

// Ledger tracks the point balance. Points never decrease through Award.
type Ledger struct {
	points int64
}

// NewLedger creates a ledger with an initial balance.
func NewLedger(points int64) *Ledger {
	if points < 0 {
		points = 0
	}
	return &Ledger{points: points}
}

// Award adds the points earned by moving focus from before to after and
// returns how many were added.
func (l *Ledger) Award(before, after int64) int64 {
	n := Crossings(before, after)
	l.points += n
	return n
}

// Points is the current balance.
func (l *Ledger) Points() int64 {
	return l.points
}

// Set replaces the balance from a remote snapshot.
func (l *Ledger) Set(points int64) {
	if points < 0 {
		points = 0
	}
	l.points = points
}
