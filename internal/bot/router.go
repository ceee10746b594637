package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	adminhandler "rsvp-bot/internal/admin/handler"
	"rsvp-bot/internal/dialog"
	"rsvp-bot/internal/notify"
	rsvpdomain "rsvp-bot/internal/rsvp/domain"
	rsvpservice "rsvp-bot/internal/rsvp/service"
)

const tracerName = "rsvp-bot/bot"

// Dialog is the registration conversation.
type Dialog interface {
	Active(ctx context.Context, chatID int64) bool
	Start(ctx context.Context, chatID int64) (dialog.Reply, error)
	Handle(ctx context.Context, chatID int64, in dialog.Input) (dialog.Reply, error)
}

// RSVP is the participant side of the admission controller.
type RSVP interface {
	RespondByChat(ctx context.Context, chatID int64, accepted bool) (rsvpservice.RespondResult, error)
	CancelByChat(ctx context.Context, chatID int64) (rsvpservice.RespondResult, error)
	StatusByChat(ctx context.Context, chatID int64) (*rsvpdomain.Record, error)
}

// Admin runs operator commands.
type Admin interface {
	Handle(ctx context.Context, chatID int64, command string) (*adminhandler.Reply, error)
}

// Router turns one inbound message into calls on the dialog, the controller or the operator commands
// and sends the replies. Messages of one chat must be routed sequentially.
type Router struct {
	sender Sender
	dialog Dialog
	rsvp   RSVP
	admin  Admin
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRouter returns a Router. admin may be nil, which disables operator commands.
func NewRouter(s Sender, d Dialog, r RSVP, admin Admin, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sender: s,
		dialog: d,
		rsvp:   r,
		admin:  admin,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// HandleMessage routes msg. Only private chats are served; group, supergroup and channel messages
// are dropped so registration data is never collected in public. Errors are logged and answered
// with a generic apology; nothing is returned.
func (r *Router) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !msg.Chat.IsPrivate() {
		r.logger.Debug("bot: ignoring non-private chat", "chat_id", chatID, "chat_type", msg.Chat.Type)
		return
	}
	ctx, span := r.tracer.Start(ctx, "bot.HandleMessage", trace.WithAttributes(attribute.Int64("chat.id", chatID)))
	defer span.End()

	var err error
	if msg.IsCommand() {
		cmd := msg.Command()
		span.SetAttributes(attribute.String("bot.command", cmd))
		err = r.command(ctx, chatID, cmd, msg.Text)
	} else {
		err = r.text(ctx, chatID, msg.Text)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("bot: handle message", "chat_id", chatID, "error", err)
		r.reply(chatID, textInternalError, dialog.KeyboardRemove)
	}
}

func (r *Router) command(ctx context.Context, chatID int64, cmd, raw string) error {
	switch cmd {
	case "start":
		reply, err := r.dialog.Start(ctx, chatID)
		if err != nil {
			return err
		}
		r.reply(chatID, reply.Text, reply.Keyboard)
		return nil
	case "cancel":
		res, err := r.rsvp.CancelByChat(ctx, chatID)
		if err != nil {
			return r.rsvpError(chatID, err)
		}
		if res.Outcome == rsvpservice.OutcomeStale {
			r.reply(chatID, textNothingToCancel, dialog.KeyboardRemove)
			return nil
		}
		r.reply(chatID, textCancelled, dialog.KeyboardRemove)
		return nil
	case "status":
		rec, err := r.rsvp.StatusByChat(ctx, chatID)
		if err != nil {
			return r.rsvpError(chatID, err)
		}
		text, kb := statusText(rec)
		r.reply(chatID, text, kb)
		return nil
	}
	if r.admin != nil && adminhandler.IsCommand(cmd) {
		reply, err := r.admin.Handle(ctx, chatID, cmd)
		switch {
		case errors.Is(err, adminhandler.ErrForbidden):
			// Not an operator: treat the command like any other text.
		case err != nil:
			return fmt.Errorf("admin %s: %w", cmd, err)
		default:
			r.adminReply(chatID, reply)
			return nil
		}
	}
	return r.text(ctx, chatID, raw)
}

func (r *Router) text(ctx context.Context, chatID int64, text string) error {
	in := Classify(text)
	if !r.dialog.Active(ctx, chatID) && (in.Kind == dialog.InputYes || in.Kind == dialog.InputNo) {
		return r.respond(ctx, chatID, in.Kind == dialog.InputYes)
	}
	reply, err := r.dialog.Handle(ctx, chatID, in)
	if err != nil {
		return err
	}
	r.reply(chatID, reply.Text, reply.Keyboard)
	return nil
}

func (r *Router) respond(ctx context.Context, chatID int64, accepted bool) error {
	res, err := r.rsvp.RespondByChat(ctx, chatID, accepted)
	if err != nil {
		return r.rsvpError(chatID, err)
	}
	var (
		text string
		kb   dialog.Keyboard
	)
	switch res.Outcome {
	case rsvpservice.OutcomeConfirmed:
		text, kb, _ = render(notify.KindConfirmed, nil)
	case rsvpservice.OutcomeWaitlisted:
		pos := ""
		if res.Record != nil && res.Record.WaitlistPosition != nil {
			pos = strconv.Itoa(*res.Record.WaitlistPosition)
		}
		text, kb, _ = render(notify.KindWaitlisted, map[string]string{"position": pos})
	case rsvpservice.OutcomeDeclined:
		text, kb, _ = render(notify.KindDeclined, nil)
	default:
		text, kb = staleText(res.Record)
	}
	r.reply(chatID, text, kb)
	return nil
}

// rsvpError answers not-registered chats and passes every other error up.
func (r *Router) rsvpError(chatID int64, err error) error {
	if errors.Is(err, rsvpservice.ErrRegistrationNotFound) {
		r.reply(chatID, textNotRegistered, dialog.KeyboardRemove)
		return nil
	}
	return err
}

func staleText(rec *rsvpdomain.Record) (string, dialog.Keyboard) {
	if rec == nil {
		return textRSVPNotOpen, dialog.KeyboardRemove
	}
	switch rec.Status {
	case rsvpdomain.StatusConfirmed:
		return textAlreadyConfirmed, dialog.KeyboardRemove
	case rsvpdomain.StatusDeclined:
		return textAlreadyDeclined, dialog.KeyboardRemove
	case rsvpdomain.StatusExpired:
		return textRSVPClosed, dialog.KeyboardRemove
	default:
		return textRSVPNotOpen, dialog.KeyboardRemove
	}
}

func statusText(rec *rsvpdomain.Record) (string, dialog.Keyboard) {
	if rec == nil {
		return textStatusRegistered, dialog.KeyboardRemove
	}
	switch rec.Status {
	case rsvpdomain.StatusAwaiting:
		return textStatusAwaiting, dialog.KeyboardYesNo
	case rsvpdomain.StatusInvited:
		return textStatusInvited, dialog.KeyboardYesNo
	case rsvpdomain.StatusWaitlisted:
		if rec.WaitlistPosition != nil {
			return fmt.Sprintf(textStatusWaitlisted, *rec.WaitlistPosition), dialog.KeyboardRemove
		}
		return textStatusRegistered, dialog.KeyboardRemove
	case rsvpdomain.StatusRegistered:
		return textStatusRegistered, dialog.KeyboardRemove
	default:
		return staleText(rec)
	}
}

func (r *Router) reply(chatID int64, text string, kb dialog.Keyboard) {
	if _, err := r.sender.Send(htmlMessage(chatID, text, kb)); err != nil {
		r.logger.Warn("bot: reply failed", "chat_id", chatID, "error", err)
	}
}

// adminReply sends operator output as plain text.
func (r *Router) adminReply(chatID int64, reply *adminhandler.Reply) {
	if reply == nil {
		return
	}
	var c tgbotapi.Chattable
	if reply.Document != nil {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: reply.Document.Name, Bytes: reply.Document.Data})
		doc.Caption = reply.Document.Caption
		c = doc
	} else {
		c = tgbotapi.NewMessage(chatID, reply.Text)
	}
	if _, err := r.sender.Send(c); err != nil {
		r.logger.Warn("bot: admin reply failed", "chat_id", chatID, "error", err)
	}
}
