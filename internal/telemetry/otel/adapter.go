package otel

import (
	"context"
	"sort"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"rsvp-bot/internal/telemetry"
)

const scopeName = "rsvp-bot.events"

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(scopeName))
}

// NewEventEmitterWithLogger wraps an OTel logger directly.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

// RecordEmitter is the part of otellog.Logger the emitter needs; tests pass a capture.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the event to an OTel log record. The event type is the body; ids and
// extra attributes become record attributes, extras in key order.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	if event.Type != "" {
		rec.SetBody(otellog.StringValue(event.Type))
		rec.AddAttributes(otellog.String("event_type", event.Type))
	}
	if event.ChatID != 0 {
		rec.AddAttributes(otellog.String("chat_id", strconv.FormatInt(event.ChatID, 10)))
	}
	if event.RegistrationID != "" {
		rec.AddAttributes(otellog.String("registration_id", event.RegistrationID))
	}
	if event.Status != "" {
		rec.AddAttributes(otellog.String("status", event.Status))
	}
	keys := make([]string, 0, len(event.Attributes))
	for k := range event.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.AddAttributes(otellog.String(k, event.Attributes[k]))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
