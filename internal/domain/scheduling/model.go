package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Pattern is the recurrence rule of a series.
type Pattern string

const (
	PatternNone     Pattern = "none"
	PatternWeekly   Pattern = "weekly"
	PatternBiweekly Pattern = "biweekly"
	PatternMonthly  Pattern = "monthly"
)

// Recurring reports whether p produces a series.
func (p Pattern) Recurring() bool {
	return p == PatternWeekly || p == PatternBiweekly || p == PatternMonthly
}

// DefaultDurationMinutes is the visit length used when none is given.
const DefaultDurationMinutes = 30

// MaxReasonLength bounds Appointment.Reason.
const MaxReasonLength = 200

// UpcomingWindow is how far ahead a doctor's upcoming list looks.
const UpcomingWindow = 7 * 24 * time.Hour

// Appointment maps to the appointment table.
//
// A series parent carries SeriesID == ID and no ParentID; generated members
// carry SeriesID == ParentID == parent's ID. Single appointments have
// neither.
type Appointment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	DoctorID          uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartTime         time.Time  `db:"start_time" json:"start_time"`
	Status            Status     `db:"status" json:"status"`
	Reason            string     `db:"reason" json:"reason"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	DurationMinutes   int        `db:"duration_minutes" json:"duration_minutes"`
	IsRecurring       bool       `db:"is_recurring" json:"is_recurring"`
	RecurrencePattern Pattern    `db:"recurrence_pattern" json:"recurrence_pattern"`
	RecurrenceEndDate *time.Time `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	ParentID          *uuid.UUID `db:"parent_appointment_id" json:"parent_appointment_id,omitempty"`
	SeriesID          *uuid.UUID `db:"series_id" json:"series_id,omitempty"`
	CancelledAt       *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsSeriesParent reports whether a is the originating appointment of a series.
func (a *Appointment) IsSeriesParent() bool {
	return a.SeriesID != nil && a.ParentID == nil
}

// Block returns the protective block reserved by a.
func (a *Appointment) Block() (from, to time.Time) {
	return ProtectiveBlock(a.StartTime)
}

func (a *Appointment) clone() *Appointment {
	c := *a
	return &c
}

// Doctor maps to the doctor table. Only the fields the scheduling core
// reads are modelled.
type Doctor struct {
	ID                uuid.UUID `db:"id" json:"id"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          string    `db:"last_name" json:"last_name"`
	Specialization    string    `db:"specialization" json:"specialization"`
	AcceptingPatients bool      `db:"accepting_patients" json:"accepting_patients"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SlotAvailability is one cell of the per-day booking grid.
type SlotAvailability struct {
	Time      string    `json:"time"`
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// BookingRequest is the input of Service.Book.
type BookingRequest struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	StartTime       time.Time
	Reason          string
	DurationMinutes int
	Pattern         Pattern
	EndDate         *time.Time
}

// BookingResult is returned by Service.Book. Series is nil for single
// appointments.
type BookingResult struct {
	Appointment *Appointment  `json:"appointment"`
	Series      *SeriesResult `json:"series,omitempty"`
}

// RescheduleRequest carries the editable fields; nil fields are unchanged.
type RescheduleRequest struct {
	StartTime time.Time
	Reason    *string
	DoctorID  *uuid.UUID
}

// BookingStatus reports the cooldown state of a patient.
type BookingStatus struct {
	CanBook    bool          `json:"can_book"`
	RetryAfter time.Duration `json:"-"`
}
