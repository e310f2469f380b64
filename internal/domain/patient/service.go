package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/domain/pesel"
)

// ErrInvalid wraps registration input errors other than PESEL failures.
var ErrInvalid = errors.New("invalid patient")

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, logger: zerolog.Nop()}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// Register validates p and stores it. The PESEL must pass the checksum and
// encode p.BirthDate. An omitted gender is taken from the PESEL; a declared
// one must agree with it.
func (s *Service) Register(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.PESEL = strings.TrimSpace(p.PESEL)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrInvalid)
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("%w: birth_date is required", ErrInvalid)
	}
	if err := pesel.Validate(p.PESEL, p.BirthDate); err != nil {
		return err
	}

	encoded, _ := pesel.GenderOf(p.PESEL)
	switch {
	case p.Gender == "":
		p.Gender = encoded
	case p.Gender != encoded:
		return fmt.Errorf("%w: gender does not match PESEL", ErrInvalid)
	}
	y, m, d := p.BirthDate.Date()
	p.BirthDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	p.LastCancellationTime = nil

	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPESEL(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByPESEL(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
