package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConflictFinder is the read side the Engine needs.
type ConflictFinder interface {
	// ScheduledOverlapping returns the scheduled appointments of a doctor
	// whose protective block overlaps [from, to), except excludeID.
	ScheduledOverlapping(ctx context.Context, doctorID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) ([]*Appointment, error)
}

// PatientFilter narrows ListByPatient. With UpcomingFrom set only scheduled
// appointments starting at or after it are returned, soonest first;
// otherwise the full history is returned, latest first.
type PatientFilter struct {
	UpcomingFrom *time.Time
}

// DoctorFilter narrows ListByDoctor. With From set only scheduled
// appointments starting in [From, Until) are returned; a nil Until leaves
// the window open. Results are always soonest first.
type DoctorFilter struct {
	From  *time.Time
	Until *time.Time
}

type AppointmentRepository interface {
	ConflictFinder
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f PatientFilter, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f DoctorFilter, limit, offset int) ([]*Appointment, int, error)
	// GetForUpdate reads an appointment and holds it against concurrent
	// writers until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockDoctor serializes booking for a doctor until the surrounding
	// transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, acceptingOnly bool, limit, offset int) ([]*Doctor, int, error)
}

// BookingStateStore keeps the last cancellation instant per patient.
type BookingStateStore interface {
	LastCancellation(ctx context.Context, patientID uuid.UUID) (*time.Time, error)
	SetLastCancellation(ctx context.Context, patientID uuid.UUID, at time.Time) error
}

// Transactor runs fn in one transaction; repositories called with the
// context passed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
