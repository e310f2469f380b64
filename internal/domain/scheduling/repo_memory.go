package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process AppointmentRepository, DoctorRepository and
// Transactor. Transactions are serialized and rolled back by restoring a
// snapshot; writes made outside a transaction wait for the open one to
// finish, so a rollback only ever discards its own changes. Like the
// database constraint, it refuses to store two scheduled appointments of
// one doctor with overlapping blocks.
type MemoryStore struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	doctors      map[uuid.UUID]*Doctor
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[uuid.UUID]*Appointment),
		doctors:      make(map[uuid.UUID]*Doctor),
		now:          time.Now,
	}
}

type memTxKey struct{}

// WithinTx implements Transactor. Nested calls join the outer transaction.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	appts, docs := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.mu.Lock()
		m.appointments, m.doctors = appts, docs
		m.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool { return ctx.Value(memTxKey{}) != nil }

// write runs fn under the data lock. Outside a transaction it first waits
// for the transaction lock.
func (m *MemoryStore) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

func (m *MemoryStore) snapshot() (map[uuid.UUID]*Appointment, map[uuid.UUID]*Doctor) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	appts := make(map[uuid.UUID]*Appointment, len(m.appointments))
	for id, a := range m.appointments {
		appts[id] = a.clone()
	}
	docs := make(map[uuid.UUID]*Doctor, len(m.doctors))
	for id, d := range m.doctors {
		c := *d
		docs[id] = &c
	}
	return appts, docs
}

// LockDoctor is a no-op; WithinTx already serializes writers.
func (m *MemoryStore) LockDoctor(_ context.Context, _ uuid.UUID) error { return nil }

func (m *MemoryStore) Create(ctx context.Context, a *Appointment) error {
	return m.write(ctx, func() error {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if m.overlapsLocked(a) {
			return ErrSlotConflict
		}
		now := m.now()
		a.CreatedAt = now
		a.UpdatedAt = now
		m.appointments[a.ID] = a.clone()
		return nil
	})
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

// GetForUpdate is GetByID; WithinTx already excludes other writers.
func (m *MemoryStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryStore) Update(ctx context.Context, a *Appointment) error {
	return m.write(ctx, func() error {
		if _, ok := m.appointments[a.ID]; !ok {
			return ErrAppointmentNotFound
		}
		if m.overlapsLocked(a) {
			return ErrSlotConflict
		}
		a.UpdatedAt = m.now()
		m.appointments[a.ID] = a.clone()
		return nil
	})
}

func (m *MemoryStore) overlapsLocked(a *Appointment) bool {
	if a.Status != StatusScheduled {
		return false
	}
	for _, other := range m.appointments {
		if other.ID == a.ID || other.DoctorID != a.DoctorID || other.Status != StatusScheduled {
			continue
		}
		if blocksOverlap(a.StartTime, other.StartTime) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ScheduledOverlapping(_ context.Context, doctorID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || a.Status != StatusScheduled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		bf, bt := a.Block()
		if bf.Before(to) && bt.After(from) {
			out = append(out, a.clone())
		}
	}
	sortByStart(out, true)
	return out, nil
}

func (m *MemoryStore) ListBySeries(_ context.Context, seriesID uuid.UUID) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.SeriesID != nil && *a.SeriesID == seriesID {
			out = append(out, a.clone())
		}
	}
	sortByStart(out, true)
	return out, nil
}

func (m *MemoryStore) ListByPatient(_ context.Context, patientID uuid.UUID, f PatientFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.PatientID != patientID {
			continue
		}
		if f.UpcomingFrom != nil && (a.Status != StatusScheduled || a.StartTime.Before(*f.UpcomingFrom)) {
			continue
		}
		out = append(out, a.clone())
	}
	sortByStart(out, f.UpcomingFrom != nil)
	return page(out, limit, offset), len(out), nil
}

func (m *MemoryStore) ListByDoctor(_ context.Context, doctorID uuid.UUID, f DoctorFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if f.From != nil {
			if a.Status != StatusScheduled || a.StartTime.Before(*f.From) {
				continue
			}
			if f.Until != nil && !a.StartTime.Before(*f.Until) {
				continue
			}
		}
		out = append(out, a.clone())
	}
	sortByStart(out, true)
	return page(out, limit, offset), len(out), nil
}

// -- doctors --

// Doctors exposes the store as a DoctorRepository.
func (m *MemoryStore) Doctors() DoctorRepository { return memoryDoctors{m} }

type memoryDoctors struct{ m *MemoryStore }

func (r memoryDoctors) Create(ctx context.Context, d *Doctor) error {
	return r.m.write(ctx, func() error {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		now := r.m.now()
		d.CreatedAt = now
		d.UpdatedAt = now
		c := *d
		r.m.doctors[d.ID] = &c
		return nil
	})
}

func (r memoryDoctors) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	d, ok := r.m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	c := *d
	return &c, nil
}

func (r memoryDoctors) List(_ context.Context, acceptingOnly bool, limit, offset int) ([]*Doctor, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*Doctor
	for _, d := range r.m.doctors {
		if acceptingOnly && !d.AcceptingPatients {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	total := len(out)
	if offset >= total {
		return []*Doctor{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func sortByStart(items []*Appointment, asc bool) {
	sort.Slice(items, func(i, j int) bool {
		if asc {
			return items[i].StartTime.Before(items[j].StartTime)
		}
		return items[i].StartTime.After(items[j].StartTime)
	})
}

func page(items []*Appointment, limit, offset int) []*Appointment {
	if offset >= len(items) {
		return []*Appointment{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
