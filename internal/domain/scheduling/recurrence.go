package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxSeriesSpanDays bounds the recurrence end date relative to the parent.
const MaxSeriesSpanDays = 180

// SkipReason explains why a series occurrence was not created.
type SkipReason string

const (
	SkipWeekend  SkipReason = "weekend"
	SkipConflict SkipReason = "slot_conflict"
)

// SkippedOccurrence is a candidate date the generator passed over.
type SkippedOccurrence struct {
	StartTime time.Time  `json:"start_time"`
	Reason    SkipReason `json:"reason"`
}

// SeriesResult reports the members created for a series. The parent is
// not in Created.
type SeriesResult struct {
	Created []*Appointment      `json:"created"`
	Skipped []SkippedOccurrence `json:"skipped"`
}

// Requested is the number of candidate dates the pattern produced.
func (r *SeriesResult) Requested() int {
	return len(r.Created) + len(r.Skipped)
}

// ValidateRecurrence checks pattern and end date against the parent start.
// end is compared as a calendar date; parentStart is taken in loc.
func ValidateRecurrence(pattern Pattern, end *time.Time, parentStart time.Time, loc *time.Location) error {
	if !pattern.Recurring() {
		return ErrInvalidPattern
	}
	if end == nil || end.IsZero() {
		return ErrRecurrenceEndRequired
	}
	if loc == nil {
		loc = time.UTC
	}
	first := civilDate(parentStart.In(loc))
	last := civilDate(*end)
	if !last.After(first) {
		return ErrRecurrenceEndBeforeStart
	}
	if last.After(first.AddDate(0, 0, MaxSeriesSpanDays)) {
		return ErrRecurrenceEndTooFar
	}
	return nil
}

// Occurrence returns the n-th occurrence (n >= 1) after base. Monthly
// occurrences stay anchored on base's day of month and clamp to the last
// day of shorter months.
func Occurrence(base time.Time, pattern Pattern, n int) time.Time {
	switch pattern {
	case PatternWeekly:
		return base.AddDate(0, 0, 7*n)
	case PatternBiweekly:
		return base.AddDate(0, 0, 14*n)
	case PatternMonthly:
		return addMonthsClamped(base, n)
	}
	return base
}

func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Generator materializes the members of a series. It must run inside the
// transaction that created the parent.
type Generator struct {
	engine *Engine
	repo   AppointmentRepository
}

// NewGenerator creates a Generator.
func NewGenerator(engine *Engine, repo AppointmentRepository) *Generator {
	return &Generator{engine: engine, repo: repo}
}

// Generate walks the pattern from the parent up to and including its
// recurrence end date. Weekend dates and dates whose block conflicts with a
// scheduled appointment of the same doctor are skipped; generation carries
// on past them.
func (g *Generator) Generate(ctx context.Context, parent *Appointment) (*SeriesResult, error) {
	if !parent.RecurrencePattern.Recurring() {
		return nil, ErrInvalidPattern
	}
	if parent.RecurrenceEndDate == nil {
		return nil, ErrRecurrenceEndRequired
	}

	loc := g.engine.policy.location()
	base := parent.StartTime.In(loc)
	end := civilDate(*parent.RecurrenceEndDate)
	seriesID := parent.ID

	result := &SeriesResult{Created: []*Appointment{}, Skipped: []SkippedOccurrence{}}
	for n := 1; ; n++ {
		start := Occurrence(base, parent.RecurrencePattern, n)
		if civilDate(start).After(end) {
			break
		}
		if isWeekend(start) {
			result.Skipped = append(result.Skipped, SkippedOccurrence{StartTime: start, Reason: SkipWeekend})
			continue
		}
		if err := g.engine.CheckConflict(ctx, parent.DoctorID, start, nil); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				result.Skipped = append(result.Skipped, SkippedOccurrence{StartTime: start, Reason: SkipConflict})
				continue
			}
			return nil, err
		}

		parentID := parent.ID
		member := &Appointment{
			DoctorID:          parent.DoctorID,
			PatientID:         parent.PatientID,
			StartTime:         start,
			Status:            StatusScheduled,
			Reason:            parent.Reason,
			DurationMinutes:   parent.DurationMinutes,
			IsRecurring:       true,
			RecurrencePattern: parent.RecurrencePattern,
			RecurrenceEndDate: parent.RecurrenceEndDate,
			ParentID:          &parentID,
			SeriesID:          &seriesID,
		}
		if err := g.repo.Create(ctx, member); err != nil {
			return nil, fmt.Errorf("create series member %s: %w", start.Format(time.RFC3339), err)
		}
		result.Created = append(result.Created, member)
	}
	return result, nil
}
