package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"rsvp-bot/internal/rsvp/domain"
)

// MemoryRepository is an in-process Repository. Atomic holds the store mutex for the whole unit and
// restores the previous records if fn fails, so it is indivisible within one process only.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Record
	// lastPosition is the highest waitlist position ever assigned.
	lastPosition int
	now          func() time.Time
}

// NewMemoryRepository returns an empty in-memory RSVP store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Record), now: utcNow}
}

func (m *MemoryRepository) Atomic(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]*domain.Record, len(m.records))
	for id, r := range m.records {
		snapshot[id] = r.Clone()
	}
	lastPosition := m.lastPosition
	if err := fn(ctx, lockedStore{m}); err != nil {
		m.records = snapshot
		m.lastPosition = lastPosition
		return err
	}
	return nil
}

func (m *MemoryRepository) Ensure(ctx context.Context, registrationID string) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.Ensure(ctx, registrationID)
}

func (m *MemoryRepository) Get(ctx context.Context, registrationID string) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.Get(ctx, registrationID)
}

func (m *MemoryRepository) Update(ctx context.Context, registrationID string, p domain.Patch) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.Update(ctx, registrationID, p)
}

func (m *MemoryRepository) CountConfirmed(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.CountConfirmed(ctx)
}

func (m *MemoryRepository) MaxWaitlistPosition(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.MaxWaitlistPosition(ctx)
}

func (m *MemoryRepository) NextWaitlistCandidate(ctx context.Context) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.NextWaitlistCandidate(ctx)
}

func (m *MemoryRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.CountByStatus(ctx)
}

func (m *MemoryRepository) List(ctx context.Context) ([]*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lockedStore{m}.List(ctx)
}

// lockedStore implements Store on m; the caller holds m.mu.
type lockedStore struct {
	m *MemoryRepository
}

func (s lockedStore) Ensure(_ context.Context, registrationID string) (*domain.Record, error) {
	if r, ok := s.m.records[registrationID]; ok {
		return r.Clone(), nil
	}
	r := domain.NewRecord(registrationID, s.m.now())
	s.m.records[registrationID] = r
	return r.Clone(), nil
}

func (s lockedStore) Get(_ context.Context, registrationID string) (*domain.Record, error) {
	r, ok := s.m.records[registrationID]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s lockedStore) Update(_ context.Context, registrationID string, p domain.Patch) (*domain.Record, error) {
	r, ok := s.m.records[registrationID]
	if !ok {
		return nil, ErrNotFound
	}
	r.Apply(p, s.m.now())
	if r.WaitlistPosition != nil && *r.WaitlistPosition > s.m.lastPosition {
		s.m.lastPosition = *r.WaitlistPosition
	}
	return r.Clone(), nil
}

func (s lockedStore) CountConfirmed(context.Context) (int, error) {
	n := 0
	for _, r := range s.m.records {
		if r.Status == domain.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (s lockedStore) MaxWaitlistPosition(context.Context) (int, error) {
	return s.m.lastPosition, nil
}

func (s lockedStore) NextWaitlistCandidate(context.Context) (*domain.Record, error) {
	var best *domain.Record
	for _, r := range s.m.records {
		if r.Status != domain.StatusWaitlisted || r.WaitlistPosition == nil {
			continue
		}
		if best == nil || *r.WaitlistPosition < *best.WaitlistPosition {
			best = r
		}
	}
	return best.Clone(), nil
}

func (s lockedStore) CountByStatus(context.Context) (map[domain.Status]int, error) {
	out := make(map[domain.Status]int)
	for _, r := range s.m.records {
		out[r.Status]++
	}
	return out, nil
}

func (s lockedStore) List(context.Context) ([]*domain.Record, error) {
	out := make([]*domain.Record, 0, len(s.m.records))
	for _, r := range s.m.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RegistrationID < out[j].RegistrationID
	})
	return out, nil
}
