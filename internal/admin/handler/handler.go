// Package handler implements the operator commands: /start_rsvp, /stats, /export and /promote.
package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"rsvp-bot/internal/admin/policy"
	regdomain "rsvp-bot/internal/registration/domain"
	rsvpdomain "rsvp-bot/internal/rsvp/domain"
	rsvpservice "rsvp-bot/internal/rsvp/service"
)

// ErrForbidden means the chat may not run the command. Callers treat the message as ordinary text.
var ErrForbidden = errors.New("admin: command not allowed")

// ExportFileName is the name of the /export document.
const ExportFileName = "registrations.csv"

const exportTimeLayout = time.RFC3339

// Authorizer decides whether a chat may run an operator command.
type Authorizer interface {
	Allow(ctx context.Context, chatID int64, command string) (bool, error)
}

// RSVP is the part of the admission controller the operator commands drive.
type RSVP interface {
	OpenAll(ctx context.Context, deadline time.Time) (rsvpservice.BatchResult, error)
	Stats(ctx context.Context) (rsvpservice.Stats, error)
	Records(ctx context.Context) (map[string]*rsvpdomain.Record, error)
	PromoteNext(ctx context.Context) (*rsvpservice.Promotion, error)
}

// Registrations is the read side of the registration store.
type Registrations interface {
	List(ctx context.Context) ([]*regdomain.Registration, error)
	Count(ctx context.Context) (int, error)
}

// Document is a file attached to a Reply.
type Document struct {
	Name    string
	Caption string
	Data    []byte
}

// Reply is what the operator gets back. Document is nil for plain text replies.
type Reply struct {
	Text     string
	Document *Document
}

// Handler runs operator commands after an authorisation check.
type Handler struct {
	auth   Authorizer
	rsvp   RSVP
	regs   Registrations
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler returns a Handler. window is the RSVP deadline offset used by /start_rsvp.
func NewHandler(auth Authorizer, rsvp RSVP, regs Registrations, window time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:   auth,
		rsvp:   rsvp,
		regs:   regs,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// IsCommand reports whether command (without the slash) is an operator command.
func IsCommand(command string) bool {
	switch command {
	case policy.CommandStartRSVP, policy.CommandStats, policy.CommandExport, policy.CommandPromote:
		return true
	}
	return false
}

// Handle runs command for chatID. Returns ErrForbidden when the policy denies it.
func (h *Handler) Handle(ctx context.Context, chatID int64, command string) (*Reply, error) {
	if h.auth == nil {
		return nil, ErrForbidden
	}
	ok, err := h.auth.Allow(ctx, chatID, command)
	if err != nil {
		return nil, fmt.Errorf("authorize %s: %w", command, err)
	}
	if !ok {
		return nil, ErrForbidden
	}
	h.logger.Info("admin: command", "chat_id", chatID, "command", command)

	switch command {
	case policy.CommandStartRSVP:
		return h.startRSVP(ctx)
	case policy.CommandStats:
		return h.stats(ctx)
	case policy.CommandExport:
		return h.export(ctx)
	case policy.CommandPromote:
		return h.promote(ctx)
	default:
		return nil, ErrForbidden
	}
}

func (h *Handler) startRSVP(ctx context.Context) (*Reply, error) {
	deadline := h.now().Add(h.window)
	res, err := h.rsvp.OpenAll(ctx, deadline)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		return &Reply{Text: textNoRegistrations}, nil
	}
	return &Reply{Text: fmt.Sprintf(textRSVPStarted,
		res.Invited, res.Undelivered, res.Skipped, res.Failed, deadline.Format(rsvpservice.DeadlineLayout))}, nil
}

func (h *Handler) stats(ctx context.Context) (*Reply, error) {
	total, err := h.regs.Count(ctx)
	if err != nil {
		return nil, err
	}
	st, err := h.rsvp.Stats(ctx)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, textStats, total, st.Confirmed, st.Capacity, st.Waitlisted)
	for _, s := range rsvpdomain.Statuses {
		if n := st.ByStatus[s]; n > 0 {
			fmt.Fprintf(&b, "\n%s: %d", s, n)
		}
	}
	return &Reply{Text: b.String()}, nil
}

func (h *Handler) promote(ctx context.Context) (*Reply, error) {
	p, err := h.rsvp.PromoteNext(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Reply{Text: textWaitlistEmpty}, nil
	}
	text := fmt.Sprintf(textPromoted, p.Registration.FullName)
	if !p.Notified {
		text += "\n" + textPromotedUndelivered
	}
	return &Reply{Text: text}, nil
}

var exportHeader = []string{
	"id", "chat_id", "full_name", "affiliation", "institution", "study_group",
	"passport_series", "passport_number", "university", "workplace", "created_at",
	"rsvp_status", "waitlist_position", "confirmed_at",
}

func (h *Handler) export(ctx context.Context) (*Reply, error) {
	regs, err := h.regs.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return &Reply{Text: textNoRegistrationsYet}, nil
	}
	records, err := h.rsvp.Records(ctx)
	if err != nil {
		return nil, err
	}
	data, err := ExportCSV(regs, records)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return &Reply{Document: &Document{Name: ExportFileName, Caption: textExportCaption, Data: data}}, nil
}

// ExportCSV renders registrations with their RSVP state, one row per registration. A registration
// with no RSVP record is reported as registered.
func ExportCSV(regs []*regdomain.Registration, records map[string]*rsvpdomain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range regs {
		row := []string{
			r.ID,
			strconv.FormatInt(r.ChatID, 10),
			r.FullName,
			string(r.Affiliation),
			"", "", "", "",
			deref(r.University),
			deref(r.Workplace),
			r.CreatedAt.UTC().Format(exportTimeLayout),
			string(rsvpdomain.StatusRegistered),
			"",
			"",
		}
		if r.Study != nil {
			row[4], row[5] = r.Study.Institution, r.Study.Group
		}
		if p, ok := r.PassportProof(); ok {
			row[6], row[7] = p.Series, p.Number
		}
		if rec := records[r.ID]; rec != nil {
			row[11] = string(rec.Status)
			if rec.WaitlistPosition != nil {
				row[12] = strconv.Itoa(*rec.WaitlistPosition)
			}
			if rec.ConfirmedAt != nil {
				row[13] = rec.ConfirmedAt.UTC().Format(exportTimeLayout)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
