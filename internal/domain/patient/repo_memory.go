package patient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps patients in process. Cancellation times are tracked for
// any patient id, registered or not, so the memory backend can book for
// identities that only exist in a token.
type MemoryRepo struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]*Patient
	byPESEL       map[string]uuid.UUID
	cancellations map[uuid.UUID]time.Time
	now           func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients:      make(map[uuid.UUID]*Patient),
		byPESEL:       make(map[string]uuid.UUID),
		cancellations: make(map[uuid.UUID]time.Time),
		now:           time.Now,
	}
}

func (m *MemoryRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPESEL[p.PESEL]; ok {
		return ErrDuplicatePESEL
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.patients[p.ID] = p.clone()
	m.byPESEL[p.PESEL] = p.ID
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *MemoryRepo) getLocked(id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := p.clone()
	if at, ok := m.cancellations[id]; ok {
		c.LastCancellationTime = &at
	}
	return c, nil
}

func (m *MemoryRepo) GetByPESEL(_ context.Context, id string) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pid, ok := m.byPESEL[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.getLocked(pid)
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*Patient, 0, len(m.patients))
	for id := range m.patients {
		p, _ := m.getLocked(id)
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastName != items[j].LastName {
			return items[i].LastName < items[j].LastName
		}
		return items[i].FirstName < items[j].FirstName
	})
	total := len(items)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *MemoryRepo) LastCancellation(_ context.Context, patientID uuid.UUID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.cancellations[patientID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *MemoryRepo) SetLastCancellation(_ context.Context, patientID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancellations[patientID] = at
	return nil
}
