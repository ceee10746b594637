package domain

import "time"

// Status is the RSVP state of one registration.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusAwaiting   Status = "awaiting"
	StatusConfirmed  Status = "confirmed"
	StatusDeclined   Status = "declined"
	StatusWaitlisted Status = "waitlisted"
	StatusInvited    Status = "invited"
	StatusExpired    Status = "expired"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusRegistered, StatusAwaiting, StatusInvited, StatusConfirmed,
	StatusWaitlisted, StatusDeclined, StatusExpired,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// AcceptsResponse reports whether a yes/no answer is meaningful in status s.
func (s Status) AcceptsResponse() bool {
	return s == StatusAwaiting || s == StatusInvited || s == StatusWaitlisted
}

// Final reports whether an RSVP window must leave the record alone.
func (s Status) Final() bool {
	return s == StatusConfirmed || s == StatusDeclined
}

// Record is the RSVP state of one registration, 1:1 by RegistrationID.
type Record struct {
	RegistrationID       string
	Status               Status
	ConfirmationDeadline *time.Time
	ConfirmedAt          *time.Time
	WaitlistPosition     *int // set iff Status == StatusWaitlisted
	ReminderCount        int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewRecord returns a fresh record in StatusRegistered.
func NewRecord(registrationID string, now time.Time) *Record {
	return &Record{
		RegistrationID: registrationID,
		Status:         StatusRegistered,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Status               *Status
	ConfirmationDeadline *time.Time
	ConfirmedAt          *time.Time
	WaitlistPosition     *int
	ReminderCount        *int
}

// Apply merges p into r. A status change away from waitlisted drops the waitlist position, and a
// position is only kept while the record is waitlisted.
func (r *Record) Apply(p Patch, now time.Time) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ConfirmationDeadline != nil {
		t := *p.ConfirmationDeadline
		r.ConfirmationDeadline = &t
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		r.ConfirmedAt = &t
	}
	if p.WaitlistPosition != nil {
		pos := *p.WaitlistPosition
		r.WaitlistPosition = &pos
	}
	if p.ReminderCount != nil {
		r.ReminderCount = *p.ReminderCount
	}
	if r.Status != StatusWaitlisted {
		r.WaitlistPosition = nil
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.ConfirmationDeadline != nil {
		t := *r.ConfirmationDeadline
		c.ConfirmationDeadline = &t
	}
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if r.WaitlistPosition != nil {
		p := *r.WaitlistPosition
		c.WaitlistPosition = &p
	}
	return &c
}

// StatusPtr returns &s; convenience for building a Patch.
func StatusPtr(s Status) *Status { return &s }

// IntPtr returns &n.
func IntPtr(n int) *int { return &n }

// TimePtr returns &t.
func TimePtr(t time.Time) *time.Time { return &t }
