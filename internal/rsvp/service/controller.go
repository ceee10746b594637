// Package service is the admission controller: it confirms, waitlists and declines RSVP responses
// without ever exceeding capacity, and promotes waitlisted participants when a slot is vacated.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"rsvp-bot/internal/notify"
	regdomain "rsvp-bot/internal/registration/domain"
	regservice "rsvp-bot/internal/registration/service"
	"rsvp-bot/internal/rsvp/domain"
	"rsvp-bot/internal/rsvp/repository"
	"rsvp-bot/internal/telemetry"
)

// ErrRegistrationNotFound is returned when an operation names a registration that does not exist.
var ErrRegistrationNotFound = errors.New("registration not found")

// DeadlineLayout formats the deadline parameter of invitations.
const DeadlineLayout = "02.01.2006 15:04"

// Registrations is the read side of the registration store the controller needs.
// Get must return an error wrapping regservice.ErrNotFound for unknown ids.
type Registrations interface {
	Get(ctx context.Context, id string) (*regdomain.Registration, error)
	LastByChat(ctx context.Context, chatID int64) (*regdomain.Registration, error)
	List(ctx context.Context) ([]*regdomain.Registration, error)
}

// Outcome is the result of one response.
type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeDeclined   Outcome = "declined"
	// OutcomeStale means the record's status did not accept the response; nothing changed.
	OutcomeStale Outcome = "stale"
)

// OpenResult reports one OpenWindow call.
type OpenResult struct {
	Record *domain.Record
	// Skipped is true when the record was already confirmed or declined and nothing changed.
	Skipped bool
	// Invited is true when the invitation was delivered.
	Invited bool
}

// Promotion is a waitlisted participant moved to invited.
type Promotion struct {
	Record       *domain.Record
	Registration *regdomain.Registration
	Notified     bool
}

// RespondResult reports one Respond or Cancel call.
type RespondResult struct {
	Registration *regdomain.Registration
	Previous     domain.Status
	Record       *domain.Record
	Outcome      Outcome
	// Promotion is set when the response vacated a slot and a waitlisted participant was invited.
	Promotion      *Promotion
	NotifyFailures int
}

// Controller runs RSVP transitions. It is safe for concurrent use; capacity is enforced by the
// store's Atomic unit, not by in-process locking.
type Controller struct {
	store    repository.Repository
	regs     Registrations
	notifier notify.Notifier
	capacity int
	now      func() time.Time
	logger   *slog.Logger
	events   telemetry.EventEmitter

	transitions metric.Int64Counter
	undelivered metric.Int64Counter
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithLogger sets the logger; default slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithEventEmitter sets the domain event sink.
func WithEventEmitter(e telemetry.EventEmitter) Option { return func(c *Controller) { c.events = e } }

// WithMeterProvider sets where counters are registered; default the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Controller) { c.initMetrics(mp) }
}

// NewController returns a Controller admitting at most capacity confirmed attendees.
func NewController(store repository.Repository, regs Registrations, notifier notify.Notifier, capacity int, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		regs:     regs,
		notifier: notifier,
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
	c.initMetrics(otel.GetMeterProvider())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter("rsvp-bot/rsvp")
	var err error
	if c.transitions, err = meter.Int64Counter("rsvp.transitions",
		metric.WithDescription("RSVP status transitions by target status")); err != nil {
		c.logger.Warn("rsvp: counter", "error", err)
	}
	if c.undelivered, err = meter.Int64Counter("rsvp.notify.failures",
		metric.WithDescription("Notifications that could not be delivered, by kind")); err != nil {
		c.logger.Warn("rsvp: counter", "error", err)
	}
}

// Capacity returns the confirmed-attendee limit.
func (c *Controller) Capacity() int { return c.capacity }

// OpenWindow moves the record of registrationID to awaiting with deadline and sends an invitation.
// A record that is already confirmed or declined is left alone and no invitation is sent.
func (c *Controller) OpenWindow(ctx context.Context, registrationID string, deadline time.Time) (OpenResult, error) {
	reg, err := c.registration(ctx, registrationID)
	if err != nil {
		return OpenResult{}, err
	}
	var res OpenResult
	err = c.store.Atomic(ctx, func(ctx context.Context, s repository.Store) error {
		res = OpenResult{}
		rec, err := s.Ensure(ctx, registrationID)
		if err != nil {
			return err
		}
		if rec.Status.Final() {
			res.Record, res.Skipped = rec, true
			return nil
		}
		res.Record, err = s.Update(ctx, registrationID, domain.Patch{
			Status:               domain.StatusPtr(domain.StatusAwaiting),
			ConfirmationDeadline: &deadline,
		})
		return err
	})
	if err != nil {
		return OpenResult{}, fmt.Errorf("open rsvp %s: %w", registrationID, err)
	}
	if res.Skipped {
		return res, nil
	}
	c.recordTransition(ctx, reg, res.Record, telemetry.EventRSVPInvited)
	res.Invited = c.deliver(ctx, reg.ChatID, notify.KindInvitation, map[string]string{
		"deadline": deadline.Format(DeadlineLayout),
	})
	return res, nil
}

// Respond applies a yes/no answer. A yes confirms while confirmed < capacity and waitlists otherwise;
// a no declines. The capacity check and the write are one Atomic unit. Statuses other than awaiting,
// invited and waitlisted make the answer stale. Declining an offered (invited) slot promotes the next
// waitlisted participant.
func (c *Controller) Respond(ctx context.Context, registrationID string, accepted bool) (RespondResult, error) {
	reg, err := c.registration(ctx, registrationID)
	if err != nil {
		return RespondResult{}, err
	}
	var res RespondResult
	err = c.store.Atomic(ctx, func(ctx context.Context, s repository.Store) error {
		res = RespondResult{}
		rec, err := s.Ensure(ctx, registrationID)
		if err != nil {
			return err
		}
		res.Previous = rec.Status
		if !rec.Status.AcceptsResponse() {
			res.Record, res.Outcome = rec, OutcomeStale
			return nil
		}
		if !accepted {
			res.Outcome = OutcomeDeclined
			res.Record, err = s.Update(ctx, registrationID, domain.Patch{Status: domain.StatusPtr(domain.StatusDeclined)})
			return err
		}
		confirmed, err := s.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		switch {
		case confirmed < c.capacity:
			res.Outcome = OutcomeConfirmed
			now := c.now()
			res.Record, err = s.Update(ctx, registrationID, domain.Patch{
				Status:      domain.StatusPtr(domain.StatusConfirmed),
				ConfirmedAt: &now,
			})
		case rec.Status == domain.StatusWaitlisted:
			// Still full: keep the place already held.
			res.Record, res.Outcome = rec, OutcomeWaitlisted
		default:
			res.Outcome = OutcomeWaitlisted
			var last int
			if last, err = s.MaxWaitlistPosition(ctx); err != nil {
				return err
			}
			res.Record, err = s.Update(ctx, registrationID, domain.Patch{
				Status:           domain.StatusPtr(domain.StatusWaitlisted),
				WaitlistPosition: domain.IntPtr(last + 1),
			})
		}
		return err
	})
	if err != nil {
		return RespondResult{}, fmt.Errorf("respond rsvp %s: %w", registrationID, err)
	}
	res.Registration = reg
	if res.Outcome == OutcomeStale || res.Record.Status == res.Previous {
		return res, nil
	}
	c.recordTransition(ctx, reg, res.Record, eventFor(res.Outcome))
	if res.Outcome == OutcomeDeclined && res.Previous == domain.StatusInvited {
		c.promoteAfterVacancy(ctx, &res)
	}
	return res, nil
}

// Cancel withdraws a confirmed attendance: confirmed becomes declined and the freed slot is offered
// to the next waitlisted participant. Any other status is stale.
func (c *Controller) Cancel(ctx context.Context, registrationID string) (RespondResult, error) {
	reg, err := c.registration(ctx, registrationID)
	if err != nil {
		return RespondResult{}, err
	}
	var res RespondResult
	err = c.store.Atomic(ctx, func(ctx context.Context, s repository.Store) error {
		res = RespondResult{}
		rec, err := s.Ensure(ctx, registrationID)
		if err != nil {
			return err
		}
		res.Previous = rec.Status
		if rec.Status != domain.StatusConfirmed {
			res.Record, res.Outcome = rec, OutcomeStale
			return nil
		}
		res.Outcome = OutcomeDeclined
		res.Record, err = s.Update(ctx, registrationID, domain.Patch{Status: domain.StatusPtr(domain.StatusDeclined)})
		return err
	})
	if err != nil {
		return RespondResult{}, fmt.Errorf("cancel rsvp %s: %w", registrationID, err)
	}
	res.Registration = reg
	if res.Outcome == OutcomeStale {
		return res, nil
	}
	c.recordTransition(ctx, reg, res.Record, telemetry.EventRSVPDeclined)
	c.promoteAfterVacancy(ctx, &res)
	return res, nil
}

func (c *Controller) promoteAfterVacancy(ctx context.Context, res *RespondResult) {
	p, err := c.PromoteNext(ctx)
	if err != nil {
		// The decline stands; /promote can retry.
		c.logger.Error("rsvp: promotion after vacancy failed", "registration_id", res.Record.RegistrationID, "error", err)
		return
	}
	res.Promotion = p
	if p != nil && !p.Notified {
		res.NotifyFailures++
	}
}

// PromoteNext moves the waitlisted record with the smallest position to invited and notifies it.
// Capacity is not checked: invited is an offer, the invitee still has to Respond. Returns nil, nil
// when the waitlist is empty.
func (c *Controller) PromoteNext(ctx context.Context) (*Promotion, error) {
	var rec *domain.Record
	err := c.store.Atomic(ctx, func(ctx context.Context, s repository.Store) error {
		rec = nil
		cand, err := s.NextWaitlistCandidate(ctx)
		if err != nil || cand == nil {
			return err
		}
		rec, err = s.Update(ctx, cand.RegistrationID, domain.Patch{Status: domain.StatusPtr(domain.StatusInvited)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("promote next: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	reg, err := c.registration(ctx, rec.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("promote next: %w", err)
	}
	c.recordTransition(ctx, reg, rec, telemetry.EventRSVPPromoted)
	return &Promotion{
		Record:       rec,
		Registration: reg,
		Notified:     c.deliver(ctx, reg.ChatID, notify.KindPromoted, nil),
	}, nil
}

// RespondByChat answers for the chat's current registration.
func (c *Controller) RespondByChat(ctx context.Context, chatID int64, accepted bool) (RespondResult, error) {
	reg, err := c.currentRegistration(ctx, chatID)
	if err != nil {
		return RespondResult{}, err
	}
	return c.Respond(ctx, reg.ID, accepted)
}

// CancelByChat cancels the chat's current registration.
func (c *Controller) CancelByChat(ctx context.Context, chatID int64) (RespondResult, error) {
	reg, err := c.currentRegistration(ctx, chatID)
	if err != nil {
		return RespondResult{}, err
	}
	return c.Cancel(ctx, reg.ID)
}

// StatusByChat returns the RSVP record of the chat's current registration, or nil if none exists yet.
func (c *Controller) StatusByChat(ctx context.Context, chatID int64) (*domain.Record, error) {
	reg, err := c.currentRegistration(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.store.Get(ctx, reg.ID)
}

func (c *Controller) registration(ctx context.Context, id string) (*regdomain.Registration, error) {
	reg, err := c.regs.Get(ctx, id)
	if errors.Is(err, regservice.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRegistrationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrRegistrationNotFound, id)
	}
	return reg, nil
}

func (c *Controller) currentRegistration(ctx context.Context, chatID int64) (*regdomain.Registration, error) {
	reg, err := c.regs.LastByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: chat %d", ErrRegistrationNotFound, chatID)
	}
	return reg, nil
}

func (c *Controller) deliver(ctx context.Context, chatID int64, kind notify.Kind, params map[string]string) bool {
	if c.notifier != nil && c.notifier.Notify(ctx, chatID, kind, params) {
		return true
	}
	c.logger.Warn("rsvp: notification not delivered", "chat_id", chatID, "kind", string(kind))
	if c.undelivered != nil {
		c.undelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	telemetry.EmitAsync(c.events, ctx, &telemetry.Event{
		Type:       telemetry.EventNotifyFailed,
		ChatID:     chatID,
		Attributes: map[string]string{"kind": string(kind)},
		At:         c.now(),
	})
	return false
}

func (c *Controller) recordTransition(ctx context.Context, reg *regdomain.Registration, rec *domain.Record, eventType string) {
	if c.transitions != nil {
		c.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(rec.Status))))
	}
	c.logger.Info("rsvp: transition", "registration_id", rec.RegistrationID, "chat_id", reg.ChatID, "status", string(rec.Status))
	ev := &telemetry.Event{
		Type:           eventType,
		ChatID:         reg.ChatID,
		RegistrationID: rec.RegistrationID,
		Status:         string(rec.Status),
		At:             c.now(),
	}
	if rec.WaitlistPosition != nil {
		ev.Attributes = map[string]string{"position": strconv.Itoa(*rec.WaitlistPosition)}
	}
	telemetry.EmitAsync(c.events, ctx, ev)
}

func eventFor(o Outcome) string {
	switch o {
	case OutcomeConfirmed:
		return telemetry.EventRSVPConfirmed
	case OutcomeWaitlisted:
		return telemetry.EventRSVPWaitlisted
	default:
		return telemetry.EventRSVPDeclined
	}
}
