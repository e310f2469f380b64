package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/scheduler/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const (
	// exclusionViolation is raised by appointment_no_overlap.
	exclusionViolation  = "23P01"
	foreignKeyViolation = "23503"
)

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case exclusionViolation:
		return ErrSlotConflict
	case foreignKeyViolation:
		return invalidf("patient is not registered")
	}
	return err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, doctor_id, patient_id, start_time, status, reason, notes, duration_minutes,
	is_recurring, recurrence_pattern, recurrence_end_date, parent_appointment_id, series_id,
	cancelled_at, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartTime, &a.Status, &a.Reason, &a.Notes,
		&a.DurationMinutes, &a.IsRecurring, &a.RecurrencePattern, &a.RecurrenceEndDate,
		&a.ParentID, &a.SeriesID, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.RecurrencePattern == "" {
		a.RecurrencePattern = PatternNone
	}
	from, to := a.Block()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, start_time, block_start, block_end,
			status, reason, notes, duration_minutes, is_recurring, recurrence_pattern,
			recurrence_end_date, parent_appointment_id, series_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.StartTime, from, to,
		a.Status, a.Reason, a.Notes, a.DurationMinutes, a.IsRecurring, a.RecurrencePattern,
		a.RecurrenceEndDate, a.ParentID, a.SeriesID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteErr(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	from, to := a.Block()
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_id=$2, start_time=$3, block_start=$4, block_end=$5,
			status=$6, reason=$7, notes=$8, duration_minutes=$9, cancelled_at=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, a.StartTime, from, to,
		a.Status, a.Reason, a.Notes, a.DurationMinutes, a.CancelledAt,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	return mapWriteErr(err)
}

func (r *appointmentRepoPG) ScheduledOverlapping(ctx context.Context, doctorID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND status = 'scheduled'
			AND block_start < $3 AND block_end > $2
			AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY start_time`,
		doctorID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE series_id = $1 ORDER BY start_time`, seriesID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f PatientFilter, limit, offset int) ([]*Appointment, int, error) {
	where := `patient_id = $1`
	order := `start_time DESC`
	args := []interface{}{patientID}
	if f.UpcomingFrom != nil {
		where += ` AND status = 'scheduled' AND start_time >= $2`
		order = `start_time ASC`
		args = append(args, *f.UpcomingFrom)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM appointment WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`, apptCols, where, order, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f DoctorFilter, limit, offset int) ([]*Appointment, int, error) {
	where := `doctor_id = $1`
	args := []interface{}{doctorID}
	if f.From != nil {
		args = append(args, *f.From)
		where += fmt.Sprintf(` AND status = 'scheduled' AND start_time >= $%d`, len(args))
		if f.Until != nil {
			args = append(args, *f.Until)
			where += fmt.Sprintf(` AND start_time < $%d`, len(args))
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM appointment WHERE %s ORDER BY start_time LIMIT $%d OFFSET $%d`, apptCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

// GetForUpdate row-locks the appointment. Outside a transaction the lock is
// released when the statement ends.
func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

// LockDoctor takes a transaction-scoped advisory lock keyed on the doctor.
// Outside a transaction it is released immediately and has no effect.
func (r *appointmentRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID)
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, first_name, last_name, specialization, accepting_patients, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialization, &d.AcceptingPatients, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, specialization, accepting_patients)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialization, d.AcceptingPatients,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) List(ctx context.Context, acceptingOnly bool, limit, offset int) ([]*Doctor, int, error) {
	where := `TRUE`
	if acceptingOnly {
		where = `accepting_patients`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor WHERE `+where+` ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Doctor{}
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
