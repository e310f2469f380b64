package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
)

// Kind classifies a business-rule rejection.
type Kind string

const (
	KindInvalidRequest           Kind = "invalid_request"
	KindPastDate                 Kind = "past_date"
	KindTooFarFuture             Kind = "too_far_future"
	KindOutsideWorkingHours      Kind = "outside_working_hours"
	KindWeekend                  Kind = "weekend"
	KindSlotConflict             Kind = "slot_conflict"
	KindCooldownActive           Kind = "cooldown_active"
	KindDoctorUnavailable        Kind = "doctor_unavailable"
	KindNotCancellable           Kind = "not_cancellable"
	KindNotEditable              Kind = "not_editable"
	KindInvalidTransition        Kind = "invalid_transition"
	KindInvalidPattern           Kind = "invalid_pattern"
	KindRecurrenceEndRequired    Kind = "recurrence_end_required"
	KindRecurrenceEndBeforeStart Kind = "recurrence_end_before_start"
	KindRecurrenceEndTooFar      Kind = "recurrence_end_too_far"
)

// RejectionError is an expected, user-correctable rejection. It is never a
// system fault.
type RejectionError struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
}

func (e *RejectionError) Error() string { return e.Message }

// Is matches on Kind so callers can use errors.Is with the sentinels below.
func (e *RejectionError) Is(target error) bool {
	var t *RejectionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidRequest           = &RejectionError{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrPastDate                 = &RejectionError{Kind: KindPastDate, Message: "appointment date must be in the future"}
	ErrTooFarFuture             = &RejectionError{Kind: KindTooFarFuture, Message: "appointments cannot be booked more than 180 days ahead"}
	ErrOutsideWorkingHours      = &RejectionError{Kind: KindOutsideWorkingHours, Message: "appointments can only be booked between 08:00 and 17:00"}
	ErrWeekend                  = &RejectionError{Kind: KindWeekend, Message: "appointments can only be booked Monday to Friday"}
	ErrSlotConflict             = &RejectionError{Kind: KindSlotConflict, Message: "the selected time is already taken, choose another time"}
	ErrCooldownActive           = &RejectionError{Kind: KindCooldownActive, Message: "a new appointment can be booked shortly after a cancellation"}
	ErrDoctorUnavailable        = &RejectionError{Kind: KindDoctorUnavailable, Message: "the doctor is not accepting patients"}
	ErrNotCancellable           = &RejectionError{Kind: KindNotCancellable, Message: "only future scheduled appointments can be cancelled"}
	ErrNotEditable              = &RejectionError{Kind: KindNotEditable, Message: "only scheduled appointments can be changed"}
	ErrInvalidTransition        = &RejectionError{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrInvalidPattern           = &RejectionError{Kind: KindInvalidPattern, Message: "recurrence pattern must be weekly, biweekly or monthly"}
	ErrRecurrenceEndRequired    = &RejectionError{Kind: KindRecurrenceEndRequired, Message: "recurrence end date is required"}
	ErrRecurrenceEndBeforeStart = &RejectionError{Kind: KindRecurrenceEndBeforeStart, Message: "recurrence end date must be after the first appointment"}
	ErrRecurrenceEndTooFar      = &RejectionError{Kind: KindRecurrenceEndTooFar, Message: "recurrence end date can be at most 180 days after the first appointment"}
)

func invalidf(format string, args ...interface{}) error {
	return &RejectionError{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func cooldownError(wait time.Duration) error {
	secs := int((wait + time.Second - 1) / time.Second)
	return &RejectionError{
		Kind:       KindCooldownActive,
		Message:    fmt.Sprintf("you must wait %d seconds before booking a new appointment", secs),
		RetryAfter: wait,
	}
}

// AsRejection unwraps err into a *RejectionError.
func AsRejection(err error) (*RejectionError, bool) {
	var r *RejectionError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
