package repository

import (
	"context"
	"errors"

	"rsvp-bot/internal/rsvp/domain"
)

// ErrNotFound is returned by Update when no RSVP record exists for the registration.
var ErrNotFound = errors.New("rsvp record not found")

// Store is the set of RSVP record operations. Reads return nil, nil when a record is missing.
type Store interface {
	// Ensure returns the record of registrationID, creating it in status registered if absent.
	Ensure(ctx context.Context, registrationID string) (*domain.Record, error)
	Get(ctx context.Context, registrationID string) (*domain.Record, error)
	// Update applies p to the record and returns the result. ErrNotFound if the record is missing.
	Update(ctx context.Context, registrationID string, p domain.Patch) (*domain.Record, error)
	CountConfirmed(ctx context.Context) (int, error)
	// MaxWaitlistPosition returns the highest waitlist position ever assigned, or 0 if none. It does
	// not drop when waitlisted records leave the list, so new positions keep increasing.
	MaxWaitlistPosition(ctx context.Context) (int, error)
	// NextWaitlistCandidate returns the waitlisted record with the smallest position, or nil.
	NextWaitlistCandidate(ctx context.Context) (*domain.Record, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	List(ctx context.Context) ([]*domain.Record, error)
}

// Repository is a Store that can also run several operations as one indivisible unit.
type Repository interface {
	Store
	// Atomic runs fn against a Store view whose operations see and commit together. No other
	// Atomic unit touching RSVP state interleaves with fn, across processes for the Postgres
	// implementation. fn may be invoked more than once when the unit is retried, so it must not
	// have side effects outside the Store it is given.
	Atomic(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
