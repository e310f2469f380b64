package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/platform/metrics"
)

type Service struct {
	appointments AppointmentRepository
	doctors      DoctorRepository
	states       BookingStateStore
	tx           Transactor
	engine       *Engine
	generator    *Generator
	gate         Gate

	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(appts AppointmentRepository, doctors DoctorRepository, states BookingStateStore, tx Transactor, policy Policy, gate Gate) *Service {
	engine := NewEngine(policy, appts)
	return &Service{
		appointments: appts,
		doctors:      doctors,
		states:       states,
		tx:           tx,
		engine:       engine,
		generator:    NewGenerator(engine, appts),
		gate:         gate,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }
func (s *Service) SetClock(now func() time.Time) { s.now = now }
func (s *Service) Engine() *Engine { return s.engine }
func (s *Service) Location() *time.Location { return s.engine.policy.location() }

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	if d.FirstName == "" || d.LastName == "" {
		return invalidf("first_name and last_name are required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, acceptingOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, acceptingOnly, limit, offset)
}

// -- Booking --

func (s *Service) validateBooking(req *BookingRequest) error {
	if req.PatientID == uuid.Nil {
		return invalidf("patient_id is required")
	}
	if req.DoctorID == uuid.Nil {
		return invalidf("doctor_id is required")
	}
	if req.StartTime.IsZero() {
		return invalidf("start_time is required")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return invalidf("reason is required")
	}
	if len([]rune(req.Reason)) > MaxReasonLength {
		return invalidf("reason must be at most %d characters", MaxReasonLength)
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = DefaultDurationMinutes
	}
	if req.DurationMinutes < 0 {
		return invalidf("duration_minutes must be positive")
	}
	if req.Pattern == "" {
		req.Pattern = PatternNone
	}
	if req.Pattern != PatternNone && !req.Pattern.Recurring() {
		return ErrInvalidPattern
	}
	return nil
}

// checkCooldown returns a cooldown rejection carrying the remaining wait.
func (s *Service) checkCooldown(ctx context.Context, patientID uuid.UUID, now time.Time) error {
	last, err := s.states.LastCancellation(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load booking state: %w", err)
	}
	if wait, blocked := s.gate.TimeUntilCanBook(last, now); blocked {
		return cooldownError(wait)
	}
	return nil
}

func (s *Service) acceptingDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.AcceptingPatients {
		return nil, ErrDoctorUnavailable
	}
	return d, nil
}

// Book creates a single appointment, or a series parent plus its members
// when req.Pattern recurs. Everything is written in one transaction under
// the doctor's lock.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	now := s.now()
	result, err := s.book(ctx, req, now)
	s.observe(err)
	if err != nil {
		if r, ok := AsRejection(err); ok {
			s.logger.Info().
				Str("kind", string(r.Kind)).
				Str("doctor_id", req.DoctorID.String()).
				Str("patient_id", req.PatientID.String()).
				Time("start_time", req.StartTime).
				Msg("booking rejected")
		} else if !errors.Is(err, ErrDoctorNotFound) {
			s.logger.Error().Err(err).Str("doctor_id", req.DoctorID.String()).Msg("booking failed")
		}
		return nil, err
	}

	evt := s.logger.Info().
		Str("appointment_id", result.Appointment.ID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Time("start_time", result.Appointment.StartTime)
	if result.Series != nil {
		evt = evt.Int("series_created", len(result.Series.Created)).Int("series_requested", result.Series.Requested())
		s.metrics.Series(len(result.Series.Created), skipCounts(result.Series))
	}
	evt.Msg("appointment booked")
	return result, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest, now time.Time) (*BookingResult, error) {
	if err := s.validateBooking(&req); err != nil {
		return nil, err
	}
	if err := s.checkCooldown(ctx, req.PatientID, now); err != nil {
		return nil, err
	}
	if _, err := s.acceptingDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}
	recurring := req.Pattern.Recurring()
	if recurring {
		if err := ValidateRecurrence(req.Pattern, req.EndDate, req.StartTime, s.Location()); err != nil {
			return nil, err
		}
	}

	var result *BookingResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.LockDoctor(ctx, req.DoctorID); err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}
		if err := s.engine.Check(ctx, req.DoctorID, req.StartTime, nil, now); err != nil {
			return err
		}

		appt := &Appointment{
			ID:                uuid.New(),
			DoctorID:          req.DoctorID,
			PatientID:         req.PatientID,
			StartTime:         req.StartTime,
			Status:            StatusScheduled,
			Reason:            req.Reason,
			DurationMinutes:   req.DurationMinutes,
			IsRecurring:       recurring,
			RecurrencePattern: req.Pattern,
		}
		if recurring {
			seriesID := appt.ID
			end := civilDate(*req.EndDate)
			appt.SeriesID = &seriesID
			appt.RecurrenceEndDate = &end
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}
		result = &BookingResult{Appointment: appt}

		if recurring {
			series, err := s.generator.Generate(ctx, appt)
			if err != nil {
				return err
			}
			result.Series = series
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) observe(err error) {
	if err == nil {
		s.metrics.BookingAccepted()
		return
	}
	if r, ok := AsRejection(err); ok {
		s.metrics.BookingRejected(string(r.Kind))
		return
	}
	s.metrics.BookingFailed()
}

func skipCounts(r *SeriesResult) map[string]int {
	out := make(map[string]int)
	for _, sk := range r.Skipped {
		out[string(sk.Reason)]++
	}
	return out
}

// Reschedule moves a scheduled appointment and optionally changes its
// reason or doctor. Every edit re-runs the full booking check against the
// resulting start time, so an appointment already in the past cannot be
// edited. The appointment itself is ignored by the conflict check.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	now := s.now()
	var updated *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusScheduled {
			return ErrNotEditable
		}

		doctorID := appt.DoctorID
		if req.DoctorID != nil && *req.DoctorID != appt.DoctorID {
			if _, err := s.acceptingDoctor(ctx, *req.DoctorID); err != nil {
				return err
			}
			doctorID = *req.DoctorID
		}
		start := appt.StartTime
		if !req.StartTime.IsZero() {
			start = req.StartTime
		}
		if req.Reason != nil {
			reason := strings.TrimSpace(*req.Reason)
			if reason == "" {
				return invalidf("reason is required")
			}
			if len([]rune(reason)) > MaxReasonLength {
				return invalidf("reason must be at most %d characters", MaxReasonLength)
			}
			appt.Reason = reason
		}

		if err := s.appointments.LockDoctor(ctx, doctorID); err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}
		if err := s.engine.Check(ctx, doctorID, start, &appt.ID, now); err != nil {
			return err
		}
		appt.DoctorID = doctorID
		appt.StartTime = start
		if err := s.appointments.Update(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Time("start_time", updated.StartTime).Msg("appointment rescheduled")
	return updated, nil
}

// Cancel cancels a future scheduled appointment. With cascadeSeries every
// other future, still-scheduled member of its series is cancelled too. The
// patient's last cancellation time is set once, to now.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, cascadeSeries bool) ([]*Appointment, error) {
	now := s.now()
	var cancelled []*Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !cancellable(appt, now) {
			return ErrNotCancellable
		}
		if err := s.appointments.LockDoctor(ctx, appt.DoctorID); err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}

		targets := []*Appointment{appt}
		if cascadeSeries && appt.SeriesID != nil {
			members, err := s.appointments.ListBySeries(ctx, *appt.SeriesID)
			if err != nil {
				return fmt.Errorf("load series: %w", err)
			}
			for _, m := range members {
				if m.ID == appt.ID || !cancellable(m, now) {
					continue
				}
				// Re-read under the row lock; the listing may be stale.
				locked, err := s.appointments.GetForUpdate(ctx, m.ID)
				if err != nil {
					return fmt.Errorf("lock series member %s: %w", m.ID, err)
				}
				if cancellable(locked, now) {
					targets = append(targets, locked)
				}
			}
		}

		for _, t := range targets {
			at := now
			t.Status = StatusCancelled
			t.CancelledAt = &at
			if err := s.appointments.Update(ctx, t); err != nil {
				return fmt.Errorf("cancel appointment %s: %w", t.ID, err)
			}
		}
		if err := s.states.SetLastCancellation(ctx, appt.PatientID, now); err != nil {
			return fmt.Errorf("record cancellation: %w", err)
		}
		cancelled = targets
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i].StartTime.Before(cancelled[j].StartTime) })
	s.metrics.Cancelled(len(cancelled))
	s.logger.Info().
		Str("appointment_id", id.String()).
		Bool("cascade_series", cascadeSeries).
		Int("cancelled", len(cancelled)).
		Msg("appointment cancelled")
	return cancelled, nil
}

func cancellable(a *Appointment, now time.Time) bool {
	return a.Status == StatusScheduled && a.StartTime.After(now)
}

// RecordOutcome closes a scheduled appointment as completed or no-show.
func (s *Service) RecordOutcome(ctx context.Context, id uuid.UUID, status Status, notes *string) (*Appointment, error) {
	if status != StatusCompleted && status != StatusNoShow {
		return nil, ErrInvalidTransition
	}
	var updated *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusScheduled {
			return ErrInvalidTransition
		}
		appt.Status = status
		if notes != nil {
			appt.Notes = notes
		}
		if err := s.appointments.Update(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment outcome recorded")
	return updated, nil
}

// -- Queries --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// Series returns every appointment of the series id belongs to, ordered by
// start time. An appointment outside any series is returned alone.
func (s *Service) Series(ctx context.Context, id uuid.UUID) ([]*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.SeriesID == nil {
		return []*Appointment{appt}, nil
	}
	return s.appointments.ListBySeries(ctx, *appt.SeriesID)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, upcomingOnly bool, limit, offset int) ([]*Appointment, int, error) {
	var f PatientFilter
	if upcomingOnly {
		now := s.now()
		f.UpcomingFrom = &now
	}
	return s.appointments.ListByPatient(ctx, patientID, f, limit, offset)
}

// ListForDoctor lists the doctor's appointments, soonest first. With
// upcomingOnly it is limited to scheduled visits in the next
// UpcomingWindow.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, upcomingOnly bool, limit, offset int) ([]*Appointment, int, error) {
	var f DoctorFilter
	if upcomingOnly {
		now := s.now()
		until := now.Add(UpcomingWindow)
		f.From, f.Until = &now, &until
	}
	return s.appointments.ListByDoctor(ctx, doctorID, f, limit, offset)
}

// BookingStatus reports whether the patient is inside the cooldown window.
func (s *Service) BookingStatus(ctx context.Context, patientID uuid.UUID) (*BookingStatus, error) {
	last, err := s.states.LastCancellation(ctx, patientID)
	if err != nil {
		return nil, err
	}
	wait, blocked := s.gate.TimeUntilCanBook(last, s.now())
	return &BookingStatus{CanBook: !blocked, RetryAfter: wait}, nil
}

// CheckSlot runs every booking rule for a candidate time without writing.
func (s *Service) CheckSlot(ctx context.Context, doctorID uuid.UUID, start time.Time, excludeID *uuid.UUID) error {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return err
	}
	return s.engine.Check(ctx, doctorID, start, excludeID, s.now())
}

func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotAvailability, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.engine.AvailableSlots(ctx, doctorID, date)
}
