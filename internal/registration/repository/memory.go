package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"rsvp-bot/internal/registration/domain"
)

// MemoryRepository is an in-process Repository and ConsentRepository for local runs and tests.
// Values are copied on the way in and out so callers never share pointers with the store.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Registration
	order    []string // insertion order, oldest first
	consents map[int64]time.Time
}

// NewMemoryRepository returns an empty in-memory registration store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]*domain.Registration),
		consents: make(map[int64]time.Time),
	}
}

func (m *MemoryRepository) Create(ctx context.Context, r *domain.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.ID] = cloneRegistration(r)
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, id string, f domain.Fields, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Apply(f)
	r.UpdatedAt = at
	m.byID[id] = cloneRegistration(r)
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneRegistration(r), nil
}

// LastByChat returns the newest registration of chatID; ties on CreatedAt go to the later insert.
func (m *MemoryRepository) LastByChat(ctx context.Context, chatID int64) (*domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *domain.Registration
	for _, id := range m.order {
		r := m.byID[id]
		if r.ChatID != chatID {
			continue
		}
		if last == nil || !r.CreatedAt.Before(last.CreatedAt) {
			last = r
		}
	}
	if last == nil {
		return nil, nil
	}
	return cloneRegistration(last), nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]*domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Registration, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, cloneRegistration(m.byID[m.order[i]]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}

func (m *MemoryRepository) HasConsent(ctx context.Context, chatID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.consents[chatID]
	return ok, nil
}

func (m *MemoryRepository) RecordConsent(ctx context.Context, chatID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consents[chatID]; !ok {
		m.consents[chatID] = at
	}
	return nil
}

func cloneRegistration(r *domain.Registration) *domain.Registration {
	c := *r
	if r.Passport != nil {
		p := *r.Passport
		c.Passport = &p
	}
	if r.Study != nil {
		s := *r.Study
		c.Study = &s
	}
	if r.University != nil {
		u := *r.University
		c.University = &u
	}
	if r.Workplace != nil {
		w := *r.Workplace
		c.Workplace = &w
	}
	return &c
}
