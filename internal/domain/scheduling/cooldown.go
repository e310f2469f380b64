package scheduling

import "time"

// DefaultCooldown is the wait imposed after a patient cancels.
const DefaultCooldown = 2 * time.Minute

// Gate throttles booking after a cancellation. A nil last cancellation
// never blocks.
type Gate struct {
	Interval time.Duration
}

// NewGate returns a Gate; a non-positive interval falls back to
// DefaultCooldown.
func NewGate(interval time.Duration) Gate {
	if interval <= 0 {
		interval = DefaultCooldown
	}
	return Gate{Interval: interval}
}

// CanBook reports whether now is at least Interval after last.
func (g Gate) CanBook(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= g.Interval
}

// TimeUntilCanBook returns the remaining wait and true while the gate is
// closed, or zero and false once booking is allowed.
func (g Gate) TimeUntilCanBook(last *time.Time, now time.Time) (time.Duration, bool) {
	if g.CanBook(last, now) {
		return 0, false
	}
	return g.Interval - now.Sub(*last), true
}
