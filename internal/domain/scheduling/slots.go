package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailableSlots returns the booking grid of a doctor for the calendar day
// of date in the clinic time zone: one entry every SlotStep from opening
// until the last step before closing. A slot is unavailable when it
// conflicts with a scheduled appointment under the same predicate Check
// uses. Past slots are not filtered.
func (e *Engine) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotAvailability, error) {
	loc := e.policy.location()
	y, m, d := date.Date()

	var starts []time.Time
	steps := int(time.Duration(e.policy.CloseHour-e.policy.OpenHour) * time.Hour / SlotStep)
	for i := 0; i < steps; i++ {
		starts = append(starts, time.Date(y, m, d, e.policy.OpenHour, i*int(SlotStep/time.Minute), 0, 0, loc))
	}
	if len(starts) == 0 {
		return []SlotAvailability{}, nil
	}

	from, _ := ProtectiveBlock(starts[0])
	_, to := ProtectiveBlock(starts[len(starts)-1])
	existing, err := e.finder.ScheduledOverlapping(ctx, doctorID, from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("load day appointments: %w", err)
	}

	slots := make([]SlotAvailability, 0, len(starts))
	for _, s := range starts {
		available := true
		for _, a := range existing {
			if a.Status == StatusScheduled && blocksOverlap(s, a.StartTime) {
				available = false
				break
			}
		}
		slots = append(slots, SlotAvailability{
			Time:      s.Format("15:04"),
			Start:     s,
			Available: available,
		})
	}
	return slots, nil
}
