package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rsvp-bot/internal/rsvp/domain"
)

// runStoreContract exercises repo through the Repository interface. ids must name existing
// registrations without RSVP records; at least four are needed.
func runStoreContract(t *testing.T, repo Repository, ids []string) {
	t.Helper()
	ctx := context.Background()

	first, err := repo.Ensure(ctx, ids[0])
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if first.Status != domain.StatusRegistered {
		t.Errorf("new record status = %s, want registered", first.Status)
	}
	again, err := repo.Ensure(ctx, ids[0])
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if again.Status != first.Status || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Ensure is not idempotent: %+v vs %+v", first, again)
	}

	if got, err := repo.Get(ctx, ids[3]); err != nil || got != nil {
		t.Errorf("Get before Ensure = %v, %v; want nil, nil", got, err)
	}
	if _, err := repo.Update(ctx, ids[3], domain.Patch{Status: domain.StatusPtr(domain.StatusAwaiting)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing record error = %v, want ErrNotFound", err)
	}

	deadline := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Microsecond)
	rec, err := repo.Update(ctx, ids[0], domain.Patch{Status: domain.StatusPtr(domain.StatusAwaiting), ConfirmationDeadline: &deadline})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.Status != domain.StatusAwaiting || rec.ConfirmationDeadline == nil || !rec.ConfirmationDeadline.Equal(deadline) {
		t.Errorf("Update result = %+v", rec)
	}

	err = repo.Atomic(ctx, func(ctx context.Context, s Store) error {
		for i, id := range ids[:3] {
			if _, err := s.Ensure(ctx, id); err != nil {
				return err
			}
			if _, err := s.Update(ctx, id, domain.Patch{
				Status:           domain.StatusPtr(domain.StatusWaitlisted),
				WaitlistPosition: domain.IntPtr(i + 1),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	if top, err := repo.MaxWaitlistPosition(ctx); err != nil || top != 3 {
		t.Errorf("MaxWaitlistPosition = %d, %v; want 3", top, err)
	}
	next, err := repo.NextWaitlistCandidate(ctx)
	if err != nil || next == nil || next.RegistrationID != ids[0] {
		t.Fatalf("NextWaitlistCandidate = %+v, %v; want %s", next, err, ids[0])
	}

	if _, err := repo.Update(ctx, ids[0], domain.Patch{Status: domain.StatusPtr(domain.StatusConfirmed), ConfirmedAt: &deadline}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	confirmed, err := repo.Get(ctx, ids[0])
	if err != nil || confirmed.WaitlistPosition != nil {
		t.Errorf("confirmed record keeps a waitlist position: %+v, %v", confirmed, err)
	}
	if n, err := repo.CountConfirmed(ctx); err != nil || n != 1 {
		t.Errorf("CountConfirmed = %d, %v; want 1", n, err)
	}
	next, err = repo.NextWaitlistCandidate(ctx)
	if err != nil || next == nil || next.RegistrationID != ids[1] {
		t.Errorf("NextWaitlistCandidate after confirm = %+v, %v; want %s", next, err, ids[1])
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.StatusConfirmed] != 1 || counts[domain.StatusWaitlisted] != 2 {
		t.Errorf("CountByStatus = %v", counts)
	}
	all, err := repo.List(ctx)
	if err != nil || len(all) != 3 {
		t.Errorf("List = %d records, %v; want 3", len(all), err)
	}

	// Positions handed out stay counted after their records leave the waitlist.
	if _, err := repo.Update(ctx, ids[2], domain.Patch{Status: domain.StatusPtr(domain.StatusInvited)}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if top, err := repo.MaxWaitlistPosition(ctx); err != nil || top != 3 {
		t.Errorf("MaxWaitlistPosition after the tail left = %d, %v; want 3", top, err)
	}

	// A failing unit leaves nothing behind.
	boom := errors.New("boom")
	err = repo.Atomic(ctx, func(ctx context.Context, s Store) error {
		if _, err := s.Update(ctx, ids[1], domain.Patch{Status: domain.StatusPtr(domain.StatusDeclined)}); err != nil {
			return err
		}
		if _, err := s.Update(ctx, ids[2], domain.Patch{
			Status:           domain.StatusPtr(domain.StatusWaitlisted),
			WaitlistPosition: domain.IntPtr(10),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic error = %v, want boom", err)
	}
	rolled, err := repo.Get(ctx, ids[1])
	if err != nil || rolled.Status != domain.StatusWaitlisted {
		t.Errorf("failed unit was not rolled back: %+v, %v", rolled, err)
	}
	if top, err := repo.MaxWaitlistPosition(ctx); err != nil || top != 3 {
		t.Errorf("MaxWaitlistPosition after rollback = %d, %v; want 3", top, err)
	}
}
