// Package notify defines the outbound message capability the admission controller depends on.
package notify

import (
	"context"
	"sync"
)

// Kind selects the message template.
type Kind string

const (
	// KindInvitation asks a registered participant to confirm attendance. Params: "deadline".
	KindInvitation Kind = "invitation"
	// KindConfirmed acknowledges a confirmed slot.
	KindConfirmed Kind = "confirmed"
	// KindWaitlisted reports the waitlist position. Params: "position".
	KindWaitlisted Kind = "waitlisted"
	// KindDeclined acknowledges a decline or cancellation.
	KindDeclined Kind = "declined"
	// KindPromoted offers a freed slot to the first waitlisted participant.
	KindPromoted Kind = "promoted"
)

// Notifier delivers one message to a conversation. It reports delivery and never returns an error;
// callers count failures but do not act on them.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, kind Kind, params map[string]string) bool
}

// Message is one recorded Notify call.
type Message struct {
	ChatID int64
	Kind   Kind
	Params map[string]string
}

// Recorder is a Notifier that keeps every call in memory. Fail makes a chat undeliverable.
// Tests across packages share it.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	failing  map[int64]bool
}

// Notify records the call and reports false for chats marked with Fail.
func (r *Recorder) Notify(_ context.Context, chatID int64, kind Kind, params map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	r.messages = append(r.messages, Message{ChatID: chatID, Kind: kind, Params: cp})
	return !r.failing[chatID]
}

// Fail marks chatID as undeliverable.
func (r *Recorder) Fail(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing == nil {
		r.failing = make(map[int64]bool)
	}
	r.failing[chatID] = true
}

// Messages returns a copy of the recorded calls in order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Count returns how many messages of kind were sent to chatID.
func (r *Recorder) Count(chatID int64, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ChatID == chatID && m.Kind == kind {
			n++
		}
	}
	return n
}
