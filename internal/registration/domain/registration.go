package domain

import (
	"errors"
	"time"
)

// Affiliation is the declared relation to the hosting institution; it decides which identity proof is collected.
type Affiliation string

const (
	AffiliationUnknown    Affiliation = "unknown"
	AffiliationAffiliated Affiliation = "affiliated"
	AffiliationExternal   Affiliation = "external"
)

// Passport is the identity proof of a non-affiliated participant.
type Passport struct {
	Series string // 4 digits
	Number string // 6 digits
}

// StudyProof is the identity proof of an affiliated participant.
type StudyProof struct {
	Institution string
	Group       string
}

// Registration is one participant's submitted registration.
type Registration struct {
	ID          string
	ChatID      int64
	FullName    string
	Affiliation Affiliation
	Passport    *Passport   // set only for AffiliationExternal
	Study       *StudyProof // set only for AffiliationAffiliated
	University  *string     // nil when skipped
	Workplace   *string     // nil when skipped
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fields is the user-supplied part of a Registration, as committed by the registration dialog.
type Fields struct {
	FullName    string
	Affiliation Affiliation
	Passport    *Passport
	Study       *StudyProof
	University  *string
	Workplace   *string
}

var (
	ErrFullNameRequired   = errors.New("full name is required")
	ErrBothProofs         = errors.New("registration carries both passport and study proof")
	ErrMissingProof       = errors.New("registration carries no identity proof")
	ErrProofMismatch      = errors.New("identity proof does not match affiliation")
	ErrUnknownAffiliation = errors.New("unknown affiliation value")
)

// Validate checks the identity-proof invariant: exactly one branch is populated, matching the
// affiliation, unless the affiliation is still unknown.
func (f Fields) Validate() error {
	if f.FullName == "" {
		return ErrFullNameRequired
	}
	if f.Passport != nil && f.Study != nil {
		return ErrBothProofs
	}
	switch f.Affiliation {
	case AffiliationUnknown, "":
		return nil
	case AffiliationAffiliated:
		if f.Study == nil {
			if f.Passport != nil {
				return ErrProofMismatch
			}
			return ErrMissingProof
		}
	case AffiliationExternal:
		if f.Passport == nil {
			if f.Study != nil {
				return ErrProofMismatch
			}
			return ErrMissingProof
		}
	default:
		return ErrUnknownAffiliation
	}
	return nil
}

// Fields returns the user-supplied part of r.
func (r *Registration) Fields() Fields {
	return Fields{
		FullName:    r.FullName,
		Affiliation: r.Affiliation,
		Passport:    r.Passport,
		Study:       r.Study,
		University:  r.University,
		Workplace:   r.Workplace,
	}
}

// Apply overwrites the user-supplied fields of r with f.
func (r *Registration) Apply(f Fields) {
	r.FullName = f.FullName
	r.Affiliation = f.Affiliation
	r.Passport = f.Passport
	r.Study = f.Study
	r.University = f.University
	r.Workplace = f.Workplace
}

// PassportProof returns the passport and true, or the zero value and false when the participant
// declared an affiliation and no passport was collected.
func (r *Registration) PassportProof() (Passport, bool) {
	if r == nil || r.Passport == nil {
		return Passport{}, false
	}
	return *r.Passport, true
}

// StudyGroup returns the study group code and true for affiliated participants.
func (r *Registration) StudyGroup() (string, bool) {
	if r == nil || r.Study == nil {
		return "", false
	}
	return r.Study.Group, true
}
