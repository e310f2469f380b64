package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("patient not found")
	ErrDuplicatePESEL = errors.New("a patient with this PESEL is already registered")
)

// Repository stores patients. Implementations also satisfy
// scheduling.BookingStateStore through LastCancellation and
// SetLastCancellation.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPESEL(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	LastCancellation(ctx context.Context, patientID uuid.UUID) (*time.Time, error)
	SetLastCancellation(ctx context.Context, patientID uuid.UUID, at time.Time) error
}
