package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rsvp-bot/internal/registration/domain"
)

var _ Repository = (*MemoryRepository)(nil)
var _ ConsentRepository = (*MemoryRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
var _ ConsentRepository = (*PostgresRepository)(nil)

func newReg(id string, chatID int64, name string, at time.Time) *domain.Registration {
	return &domain.Registration{
		ID:          id,
		ChatID:      chatID,
		FullName:    name,
		Affiliation: domain.AffiliationExternal,
		Passport:    &domain.Passport{Series: "1234", Number: "567890"},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestMemoryRepository_CreateGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, newReg("r1", 10, "Иван Петров", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.FullName != "Иван Петров" || got.ChatID != 10 {
		t.Fatalf("GetByID = %+v", got)
	}
	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	reg := newReg("r1", 10, "Иван Петров", time.Now())
	_ = repo.Create(ctx, reg)
	reg.Passport.Series = "0000"

	got, _ := repo.GetByID(ctx, "r1")
	if got.Passport.Series != "1234" {
		t.Error("store should not alias the caller's passport")
	}
	got.FullName = "changed"
	again, _ := repo.GetByID(ctx, "r1")
	if again.FullName != "Иван Петров" {
		t.Error("store should not alias returned values")
	}
}

func TestMemoryRepository_LastByChat(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now().UTC()
	_ = repo.Create(ctx, newReg("old", 10, "Иван Петров", base))
	_ = repo.Create(ctx, newReg("other", 11, "Анна Смирнова", base.Add(time.Minute)))
	_ = repo.Create(ctx, newReg("new", 10, "Иван Петров", base.Add(2*time.Minute)))

	got, err := repo.LastByChat(ctx, 10)
	if err != nil {
		t.Fatalf("LastByChat: %v", err)
	}
	if got == nil || got.ID != "new" {
		t.Errorf("LastByChat = %+v, want id new", got)
	}
	none, err := repo.LastByChat(ctx, 99)
	if err != nil || none != nil {
		t.Errorf("LastByChat(unknown) = %v, %v; want nil, nil", none, err)
	}
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = repo.Create(ctx, newReg("r1", 10, "Иван Петров", now))

	f := domain.Fields{
		FullName:    "Иван Сидоров",
		Affiliation: domain.AffiliationAffiliated,
		Study:       &domain.StudyProof{Institution: "НИЯУ МИФИ", Group: "Б21-504"},
	}
	later := now.Add(time.Hour)
	if err := repo.Update(ctx, "r1", f, later); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := repo.GetByID(ctx, "r1")
	if got.FullName != "Иван Сидоров" || got.Passport != nil || got.Study == nil {
		t.Errorf("after Update = %+v", got)
	}
	if !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(now) {
		t.Errorf("timestamps: created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}
	if err := repo.Update(ctx, "missing", f, later); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_ListAndCount(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		_ = repo.Create(ctx, newReg(id, int64(i), "Иван Петров", base.Add(time.Duration(i)*time.Second)))
	}
	list, _ := repo.List(ctx)
	if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Errorf("List order = %v", ids(list))
	}
	n, _ := repo.Count(ctx)
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestMemoryRepository_ConsentIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	ok, _ := repo.HasConsent(ctx, 5)
	if ok {
		t.Fatal("fresh chat should have no consent")
	}
	first := time.Now().UTC()
	_ = repo.RecordConsent(ctx, 5, first)
	_ = repo.RecordConsent(ctx, 5, first.Add(time.Hour))
	ok, _ = repo.HasConsent(ctx, 5)
	if !ok {
		t.Fatal("consent should be recorded")
	}
	if !repo.consents[5].Equal(first) {
		t.Errorf("accepted_at = %v, want first acceptance %v", repo.consents[5], first)
	}
}

func ids(list []*domain.Registration) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
