package bot

import (
	"context"
	"fmt"
	"log/slog"

	"rsvp-bot/internal/dialog"
	"rsvp-bot/internal/notify"
)

// Notifier delivers controller notifications as Telegram messages.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier returns a Notifier sending through s. logger may be nil.
func NewNotifier(s Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: s, logger: logger}
}

// Notify sends kind to chatID. It reports false when the kind is unknown or Telegram rejects the message.
func (n *Notifier) Notify(ctx context.Context, chatID int64, kind notify.Kind, params map[string]string) bool {
	text, kb, ok := render(kind, params)
	if !ok {
		n.logger.Error("bot: unknown notification kind", "kind", string(kind))
		return false
	}
	if _, err := n.sender.Send(htmlMessage(chatID, text, kb)); err != nil {
		n.logger.Warn("bot: notification failed", "chat_id", chatID, "kind", string(kind), "error", err)
		return false
	}
	return true
}

func render(kind notify.Kind, params map[string]string) (string, dialog.Keyboard, bool) {
	switch kind {
	case notify.KindInvitation:
		return fmt.Sprintf(textInvitation, params["deadline"]), dialog.KeyboardYesNo, true
	case notify.KindPromoted:
		return textPromoted, dialog.KeyboardYesNo, true
	case notify.KindConfirmed:
		return textConfirmed, dialog.KeyboardRemove, true
	case notify.KindWaitlisted:
		return fmt.Sprintf(textWaitlisted, params["position"]), dialog.KeyboardRemove, true
	case notify.KindDeclined:
		return textDeclined, dialog.KeyboardRemove, true
	default:
		return "", dialog.KeyboardRemove, false
	}
}
