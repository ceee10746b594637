// Package service is the registration store boundary used by the dialog and the admission controller.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rsvp-bot/internal/registration/domain"
	"rsvp-bot/internal/registration/repository"
)

// ErrNotFound is returned when a registration id does not exist.
var ErrNotFound = errors.New("registration not found")

// Service creates and edits registrations and tracks consent.
type Service struct {
	regs     repository.Repository
	consents repository.ConsentRepository
	now      func() time.Time
}

// NewService returns a Service over the given repositories.
func NewService(regs repository.Repository, consents repository.ConsentRepository) *Service {
	return &Service{regs: regs, consents: consents, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates f and stores a new registration for chatID. Returns the new id.
func (s *Service) Create(ctx context.Context, chatID int64, f domain.Fields) (string, error) {
	if err := f.Validate(); err != nil {
		return "", fmt.Errorf("create registration: %w", err)
	}
	now := s.now()
	reg := &domain.Registration{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	reg.Apply(f)
	if err := s.regs.Create(ctx, reg); err != nil {
		return "", fmt.Errorf("create registration: %w", err)
	}
	return reg.ID, nil
}

// Update validates f and overwrites registration id. Returns ErrNotFound for an unknown id.
func (s *Service) Update(ctx context.Context, id string, f domain.Fields) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("update registration %s: %w", id, err)
	}
	err := s.regs.Update(ctx, id, f, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("update registration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update registration %s: %w", id, err)
	}
	return nil
}

// Get returns registration id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Registration, error) {
	reg, err := s.regs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get registration %s: %w", id, err)
	}
	if reg == nil {
		return nil, fmt.Errorf("get registration %s: %w", id, ErrNotFound)
	}
	return reg, nil
}

// LastByChat returns the chat's current registration, or nil if it never registered.
func (s *Service) LastByChat(ctx context.Context, chatID int64) (*domain.Registration, error) {
	return s.regs.LastByChat(ctx, chatID)
}

// List returns all registrations, newest first.
func (s *Service) List(ctx context.Context) ([]*domain.Registration, error) {
	return s.regs.List(ctx)
}

// Count returns the number of registrations.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.regs.Count(ctx)
}

// HasConsent reports whether chatID accepted the data-collection terms.
func (s *Service) HasConsent(ctx context.Context, chatID int64) (bool, error) {
	return s.consents.HasConsent(ctx, chatID)
}

// RecordConsent stores chatID's consent. Idempotent.
func (s *Service) RecordConsent(ctx context.Context, chatID int64) error {
	return s.consents.RecordConsent(ctx, chatID, s.now())
}
