package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// BlockLead and BlockTail bound the protective block around a start
	// time: [start-BlockLead, start+BlockTail).
	BlockLead = 15 * time.Minute
	BlockTail = 45 * time.Minute

	// SlotStep is the granularity of the booking grid.
	SlotStep = 15 * time.Minute

	DefaultOpenHour  = 8
	DefaultCloseHour = 17
	DefaultHorizon   = 180 * 24 * time.Hour
)

// ProtectiveBlock returns the half-open interval reserved by a scheduled
// appointment starting at start.
func ProtectiveBlock(start time.Time) (from, to time.Time) {
	return start.Add(-BlockLead), start.Add(BlockTail)
}

// blocksOverlap is the single conflict predicate shared by booking checks
// and the availability grid.
func blocksOverlap(a, b time.Time) bool {
	af, at := ProtectiveBlock(a)
	bf, bt := ProtectiveBlock(b)
	return af.Before(bt) && bf.Before(at)
}

// Policy holds the clinic rules every candidate start time is checked
// against.
type Policy struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
	Horizon   time.Duration
}

// DefaultPolicy returns the clinic rules for loc. A nil loc means UTC.
func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		Location:  loc,
		OpenHour:  DefaultOpenHour,
		CloseHour: DefaultCloseHour,
		Horizon:   DefaultHorizon,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Engine evaluates candidate start times. It reads existing appointments
// through a ConflictFinder and never writes.
type Engine struct {
	policy Policy
	finder ConflictFinder
}

// NewEngine creates an Engine.
func NewEngine(policy Policy, finder ConflictFinder) *Engine {
	return &Engine{policy: policy, finder: finder}
}

// Policy returns the rules the engine enforces.
func (e *Engine) Policy() Policy { return e.policy }

// Check runs every rule in order and returns the first rejection. Errors
// that are not *RejectionError come from the ConflictFinder.
func (e *Engine) Check(ctx context.Context, doctorID uuid.UUID, start time.Time, excludeID *uuid.UUID, now time.Time) error {
	if err := e.CheckCalendar(start, now); err != nil {
		return err
	}
	return e.CheckConflict(ctx, doctorID, start, excludeID)
}

// CheckCalendar applies the rules that need no stored data: past date,
// booking horizon, working hours and weekend.
func (e *Engine) CheckCalendar(start, now time.Time) error {
	if !start.After(now) {
		return ErrPastDate
	}
	if start.After(now.Add(e.policy.Horizon)) {
		return ErrTooFarFuture
	}
	return e.checkWorkingTime(start)
}

// checkWorkingTime applies the working-hours and weekend rules only. The
// series generator uses it to tell weekend skips apart.
func (e *Engine) checkWorkingTime(start time.Time) error {
	local := start.In(e.policy.location())
	if h := local.Hour(); h < e.policy.OpenHour || h >= e.policy.CloseHour {
		return ErrOutsideWorkingHours
	}
	if isWeekend(local) {
		return ErrWeekend
	}
	return nil
}

// CheckConflict rejects start when its protective block overlaps the block
// of any scheduled appointment of the doctor other than excludeID.
func (e *Engine) CheckConflict(ctx context.Context, doctorID uuid.UUID, start time.Time, excludeID *uuid.UUID) error {
	from, to := ProtectiveBlock(start)
	existing, err := e.finder.ScheduledOverlapping(ctx, doctorID, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("find overlapping appointments: %w", err)
	}
	for _, a := range existing {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Status == StatusScheduled && blocksOverlap(start, a.StartTime) {
			return ErrSlotConflict
		}
	}
	return nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
