package repository

import (
	"context"
	"errors"
	"time"

	"rsvp-bot/internal/registration/domain"
)

// ErrNotFound is returned by Update when no registration has the given id.
var ErrNotFound = errors.New("registration not found")

// Repository defines persistence for registrations.
type Repository interface {
	// Create persists r. r.ID must be set and unique.
	Create(ctx context.Context, r *domain.Registration) error
	// Update overwrites the user-supplied fields of registration id. Returns ErrNotFound if missing.
	Update(ctx context.Context, id string, f domain.Fields, at time.Time) error
	// GetByID returns the registration, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	// LastByChat returns the most recently created registration of chatID, or nil if none.
	LastByChat(ctx context.Context, chatID int64) (*domain.Registration, error)
	// List returns all registrations, newest first.
	List(ctx context.Context) ([]*domain.Registration, error)
	// Count returns the number of registrations.
	Count(ctx context.Context) (int, error)
}

// ConsentRepository defines persistence for data-collection consents.
type ConsentRepository interface {
	HasConsent(ctx context.Context, chatID int64) (bool, error)
	// RecordConsent stores consent for chatID; recording it again is a no-op.
	RecordConsent(ctx context.Context, chatID int64, at time.Time) error
}
