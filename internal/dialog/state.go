package dialog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Step is a dialog state.
type Step string

const (
	StepStart        Step = "start"
	StepConsent      Step = "consent"
	StepEditDecision Step = "edit_decision"
	StepFullName     Step = "full_name"
	StepAffiliation  Step = "affiliation"
	StepStudyGroup   Step = "study_group"
	StepPassport     Step = "passport"
	StepUniversity   Step = "university"
	StepWorkplace    Step = "workplace"
	StepConfirm      Step = "confirm"
	// StepFinalized is reported after a commit; no state is kept for it.
	StepFinalized Step = "finalized"
)

// Values are the fields collected so far.
type Values struct {
	FullName       string
	Affiliated     *bool // nil until AffiliationChoice is answered
	Institution    string
	StudyGroup     string
	PassportSeries string
	PassportNumber string
	University     *string
	Workplace      *string
}

// State is one conversation's dialog position. RegistrationID is set when editing an existing
// registration.
type State struct {
	Step           Step
	Values         Values
	RegistrationID string
}

func (s *State) clone() *State {
	c := *s
	if s.Values.Affiliated != nil {
		v := *s.Values.Affiliated
		c.Values.Affiliated = &v
	}
	c.Values.University = cloneStr(s.Values.University)
	c.Values.Workplace = cloneStr(s.Values.Workplace)
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StateStore keeps dialog state per chat. Get returns nil, nil when the chat has no active dialog.
type StateStore interface {
	Get(ctx context.Context, chatID int64) (*State, error)
	Set(ctx context.Context, chatID int64, st *State) error
	Clear(ctx context.Context, chatID int64) error
}

const cleanupInterval = 30 * time.Minute

// ErrBadState is returned by CacheStore.Get when the cached entry is not a dialog state.
var ErrBadState = errors.New("dialog: unexpected value in state cache")

// CacheStore is a StateStore on go-cache. Abandoned dialogs expire after the TTL; each Set
// restarts the TTL.
type CacheStore struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCacheStore returns a CacheStore whose entries live for ttl after the last update.
func NewCacheStore(ttl time.Duration) *CacheStore {
	return &CacheStore{cache: gocache.New(ttl, cleanupInterval), ttl: ttl}
}

func (s *CacheStore) Get(_ context.Context, chatID int64) (*State, error) {
	v, found := s.cache.Get(key(chatID))
	if !found {
		return nil, nil
	}
	st, ok := v.(*State)
	if !ok {
		return nil, fmt.Errorf("%w: chat %d holds %T", ErrBadState, chatID, v)
	}
	return st.clone(), nil
}

func (s *CacheStore) Set(_ context.Context, chatID int64, st *State) error {
	s.cache.Set(key(chatID), st.clone(), s.ttl)
	return nil
}

func (s *CacheStore) Clear(_ context.Context, chatID int64) error {
	s.cache.Delete(key(chatID))
	return nil
}

func key(chatID int64) string { return strconv.FormatInt(chatID, 10) }
