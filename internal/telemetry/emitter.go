// Package telemetry defines the RSVP domain events the bot reports and a fire-and-forget emit helper.
package telemetry

import (
	"context"
	"time"
)

// Event types.
const (
	EventRegistrationCreated = "registration.created"
	EventRegistrationUpdated = "registration.updated"
	EventRSVPInvited         = "rsvp.invited"
	EventRSVPConfirmed       = "rsvp.confirmed"
	EventRSVPWaitlisted      = "rsvp.waitlisted"
	EventRSVPDeclined        = "rsvp.declined"
	EventRSVPPromoted        = "rsvp.promoted"
	EventNotifyFailed        = "notify.failed"
)

// Event is one domain event. ChatID and RegistrationID are zero when not applicable.
type Event struct {
	Type           string
	ChatID         int64
	RegistrationID string
	Status         string
	Attributes     map[string]string
	At             time.Time
}

// EventEmitter emits events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
