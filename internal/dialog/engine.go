// Package dialog is the registration conversation: a per-chat state machine that collects and
// validates registration fields, with back navigation and editing of an existing registration.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	regdomain "rsvp-bot/internal/registration/domain"
	"rsvp-bot/internal/telemetry"
)

// Registrations is the registration store as seen by the dialog.
type Registrations interface {
	Create(ctx context.Context, chatID int64, f regdomain.Fields) (string, error)
	Update(ctx context.Context, id string, f regdomain.Fields) error
	LastByChat(ctx context.Context, chatID int64) (*regdomain.Registration, error)
	HasConsent(ctx context.Context, chatID int64) (bool, error)
	RecordConsent(ctx context.Context, chatID int64) error
}

// Engine drives registration dialogs. State lives in the StateStore; the engine itself holds none,
// so one Engine serves every chat. Calls for the same chat must not run concurrently.
type Engine struct {
	states           StateStore
	regs             Registrations
	affiliationLabel string
	logger           *slog.Logger
	events           telemetry.EventEmitter
	now              func() time.Time
}

// NewEngine returns an Engine. affiliationLabel is recorded as the institution of affiliated
// participants. logger and events may be nil.
func NewEngine(states StateStore, regs Registrations, affiliationLabel string, logger *slog.Logger, events telemetry.EventEmitter) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		states:           states,
		regs:             regs,
		affiliationLabel: affiliationLabel,
		logger:           logger,
		events:           events,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Active reports whether chatID is in the middle of a dialog.
func (e *Engine) Active(ctx context.Context, chatID int64) bool {
	st, err := e.states.Get(ctx, chatID)
	if err != nil {
		e.logger.Warn("dialog: state lookup failed", "chat_id", chatID, "error", err)
		return false
	}
	return st != nil
}

// Start discards any dialog in progress and enters it from the beginning: consent first, then the
// edit decision for returning participants or the full name for new ones.
func (e *Engine) Start(ctx context.Context, chatID int64) (Reply, error) {
	if err := e.states.Clear(ctx, chatID); err != nil {
		return Reply{}, fmt.Errorf("clear dialog state: %w", err)
	}
	ok, err := e.regs.HasConsent(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("check consent: %w", err)
	}
	if !ok {
		return e.move(ctx, chatID, &State{Step: StepConsent}, textConsent, KeyboardYesNo)
	}
	return e.entry(ctx, chatID)
}

func (e *Engine) entry(ctx context.Context, chatID int64) (Reply, error) {
	existing, err := e.regs.LastByChat(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("load registration: %w", err)
	}
	if existing != nil {
		st := &State{Step: StepEditDecision, RegistrationID: existing.ID}
		text := joinParagraphs(textAlreadyIntro, Review(existing.Fields()), textEditQuestion)
		return e.move(ctx, chatID, st, text, KeyboardYesNo)
	}
	return e.move(ctx, chatID, &State{Step: StepFullName}, joinParagraphs(textIntro, textAskFullName), KeyboardBack)
}

// Handle advances chatID's dialog by one input. Without an active dialog it only points at /start.
func (e *Engine) Handle(ctx context.Context, chatID int64, in Input) (Reply, error) {
	st, err := e.states.Get(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("load dialog state: %w", err)
	}
	if st == nil {
		return Reply{Text: textNoDialog, Keyboard: KeyboardRemove, Step: StepStart}, nil
	}

	switch st.Step {
	case StepConsent:
		return e.handleConsent(ctx, chatID, st, in)
	case StepEditDecision:
		return e.handleEditDecision(ctx, chatID, st, in)
	case StepFullName:
		return e.handleFullName(ctx, chatID, st, in)
	case StepAffiliation:
		return e.handleAffiliation(ctx, chatID, st, in)
	case StepStudyGroup:
		return e.handleStudyGroup(ctx, chatID, st, in)
	case StepPassport:
		return e.handlePassport(ctx, chatID, st, in)
	case StepUniversity:
		return e.handleUniversity(ctx, chatID, st, in)
	case StepWorkplace:
		return e.handleWorkplace(ctx, chatID, st, in)
	case StepConfirm:
		return e.handleConfirm(ctx, chatID, st, in)
	default:
		if err := e.states.Clear(ctx, chatID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: textNoDialog, Keyboard: KeyboardRemove, Step: StepStart}, nil
	}
}

func (e *Engine) handleConsent(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	switch in.Kind {
	case InputYes:
		if err := e.regs.RecordConsent(ctx, chatID); err != nil {
			return Reply{}, fmt.Errorf("record consent: %w", err)
		}
		st.Step = StepFullName
		return e.move(ctx, chatID, st, joinParagraphs(textIntro, textAskFullName), KeyboardBack)
	case InputNo:
		return stay(st, textConsentRequired, KeyboardYesNo), nil
	default:
		return stay(st, textInvalidChoice, KeyboardYesNo), nil
	}
}

func (e *Engine) handleEditDecision(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	switch in.Kind {
	case InputYes:
		st.Step = StepFullName
		return e.move(ctx, chatID, st, textAskFullName, KeyboardBack)
	case InputNo:
		if err := e.states.Clear(ctx, chatID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: textEditCancelled, Keyboard: KeyboardRemove, Step: StepStart}, nil
	default:
		return stay(st, textInvalidChoice, KeyboardYesNo), nil
	}
}

func (e *Engine) handleFullName(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	if in.Kind == InputBack {
		return e.Start(ctx, chatID)
	}
	name, ok := NormalizeFullName(textOf(in))
	if !ok {
		return stay(st, textInvalidFullName, KeyboardBack), nil
	}
	st.Values.FullName = name
	return e.askAffiliation(ctx, chatID, st)
}

func (e *Engine) askAffiliation(ctx context.Context, chatID int64, st *State) (Reply, error) {
	st.Step = StepAffiliation
	return e.move(ctx, chatID, st, fmt.Sprintf(textAskAffiliation, e.affiliationLabel), KeyboardYesNoBack)
}

func (e *Engine) handleAffiliation(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	v := &st.Values
	switch in.Kind {
	case InputBack:
		v.FullName = ""
		st.Step = StepFullName
		return e.move(ctx, chatID, st, textAskFullName, KeyboardBack)
	case InputYes:
		affiliated := true
		v.Affiliated = &affiliated
		v.Institution = e.affiliationLabel
		v.PassportSeries, v.PassportNumber = "", ""
		st.Step = StepStudyGroup
		return e.move(ctx, chatID, st, textAskStudyGroup, KeyboardBack)
	case InputNo:
		affiliated := false
		v.Affiliated = &affiliated
		v.Institution, v.StudyGroup = "", ""
		st.Step = StepPassport
		return e.move(ctx, chatID, st, textAskPassport, KeyboardBack)
	default:
		return stay(st, textInvalidChoice, KeyboardYesNoBack), nil
	}
}

func (e *Engine) backToAffiliation(ctx context.Context, chatID int64, st *State) (Reply, error) {
	v := &st.Values
	v.Affiliated = nil
	v.Institution, v.StudyGroup = "", ""
	v.PassportSeries, v.PassportNumber = "", ""
	return e.askAffiliation(ctx, chatID, st)
}

func (e *Engine) handleStudyGroup(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	if in.Kind == InputBack {
		return e.backToAffiliation(ctx, chatID, st)
	}
	group, ok := NormalizeStudyGroup(textOf(in))
	if !ok {
		return stay(st, textInvalidGroup, KeyboardBack), nil
	}
	st.Values.StudyGroup = group
	st.Step = StepUniversity
	return e.move(ctx, chatID, st, textAskUniversity, KeyboardBackSkip)
}

func (e *Engine) handlePassport(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	if in.Kind == InputBack {
		return e.backToAffiliation(ctx, chatID, st)
	}
	series, number, ok := ParsePassport(textOf(in))
	if !ok {
		return stay(st, textInvalidPassport, KeyboardBack), nil
	}
	st.Values.PassportSeries, st.Values.PassportNumber = series, number
	st.Step = StepUniversity
	return e.move(ctx, chatID, st, textAskUniversity, KeyboardBackSkip)
}

func (e *Engine) handleUniversity(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	v := &st.Values
	switch in.Kind {
	case InputBack:
		if v.Affiliated != nil && *v.Affiliated {
			v.StudyGroup = ""
			st.Step = StepStudyGroup
			return e.move(ctx, chatID, st, textAskStudyGroup, KeyboardBack)
		}
		v.PassportSeries, v.PassportNumber = "", ""
		st.Step = StepPassport
		return e.move(ctx, chatID, st, textAskPassport, KeyboardBack)
	case InputSkip:
		v.University = nil
	default:
		v.University = freeText(textOf(in))
	}
	st.Step = StepWorkplace
	return e.move(ctx, chatID, st, textAskWorkplace, KeyboardBackSkip)
}

func (e *Engine) handleWorkplace(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	v := &st.Values
	switch in.Kind {
	case InputBack:
		v.University = nil
		st.Step = StepUniversity
		return e.move(ctx, chatID, st, textAskUniversity, KeyboardBackSkip)
	case InputSkip:
		v.Workplace = nil
	default:
		v.Workplace = freeText(textOf(in))
	}
	st.Step = StepConfirm
	text := joinParagraphs(textReviewHeader, Review(v.fields()), textConfirmQuestion)
	return e.move(ctx, chatID, st, text, KeyboardYesNoBack)
}

func (e *Engine) handleConfirm(ctx context.Context, chatID int64, st *State, in Input) (Reply, error) {
	switch in.Kind {
	case InputBack:
		st.Values.Workplace = nil
		st.Step = StepWorkplace
		return e.move(ctx, chatID, st, textAskWorkplace, KeyboardBackSkip)
	case InputYes:
		return e.commit(ctx, chatID, st)
	case InputNo:
		return e.Start(ctx, chatID)
	default:
		return stay(st, textInvalidChoice, KeyboardYesNoBack), nil
	}
}

// commit persists the collected fields. On failure the dialog stays in Confirm so the participant can retry.
func (e *Engine) commit(ctx context.Context, chatID int64, st *State) (Reply, error) {
	fields := st.Values.fields()
	event := &telemetry.Event{ChatID: chatID, At: e.now()}
	if st.RegistrationID != "" {
		if err := e.regs.Update(ctx, st.RegistrationID, fields); err != nil {
			return Reply{}, fmt.Errorf("commit registration: %w", err)
		}
		event.Type, event.RegistrationID = telemetry.EventRegistrationUpdated, st.RegistrationID
	} else {
		id, err := e.regs.Create(ctx, chatID, fields)
		if err != nil {
			return Reply{}, fmt.Errorf("commit registration: %w", err)
		}
		event.Type, event.RegistrationID = telemetry.EventRegistrationCreated, id
	}
	if err := e.states.Clear(ctx, chatID); err != nil {
		return Reply{}, err
	}
	e.logger.Info("dialog: registration committed", "chat_id", chatID, "registration_id", event.RegistrationID, "event", event.Type)
	telemetry.EmitAsync(e.events, ctx, event)
	return Reply{Text: textFinished, Keyboard: KeyboardRemove, Step: StepFinalized}, nil
}

// move stores st and returns the prompt for its step.
func (e *Engine) move(ctx context.Context, chatID int64, st *State, text string, kb Keyboard) (Reply, error) {
	if err := e.states.Set(ctx, chatID, st); err != nil {
		return Reply{}, fmt.Errorf("save dialog state: %w", err)
	}
	return Reply{Text: text, Keyboard: kb, Step: st.Step}, nil
}

// stay re-prompts without touching the stored state.
func stay(st *State, text string, kb Keyboard) Reply {
	return Reply{Text: text, Keyboard: kb, Step: st.Step}
}

// textOf returns the text of a free-text answer. Button inputs arriving in a free-text step are read
// as their label.
func textOf(in Input) string {
	switch in.Kind {
	case InputYes:
		return ButtonYes
	case InputNo:
		return ButtonNo
	case InputSkip:
		return ButtonSkip
	case InputBack:
		return ButtonBack
	default:
		return in.Text
	}
}

func (v Values) fields() regdomain.Fields {
	f := regdomain.Fields{
		FullName:   v.FullName,
		University: cloneStr(v.University),
		Workplace:  cloneStr(v.Workplace),
	}
	switch {
	case v.Affiliated == nil:
		f.Affiliation = regdomain.AffiliationUnknown
	case *v.Affiliated:
		f.Affiliation = regdomain.AffiliationAffiliated
		f.Study = &regdomain.StudyProof{Institution: v.Institution, Group: v.StudyGroup}
	default:
		f.Affiliation = regdomain.AffiliationExternal
		f.Passport = &regdomain.Passport{Series: v.PassportSeries, Number: v.PassportNumber}
	}
	return f
}
