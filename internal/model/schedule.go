package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the three schedule shapes. There is no per-kind
// subtype; variant-only fields on Schedule are simply unused for the
// other kinds.
type Kind string

const (
	KindRecurring   Kind = "recurring"
	KindAppointment Kind = "appointment"
	KindTemporary   Kind = "temporary"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRecurring, KindAppointment, KindTemporary:
		return true
	}
	return false
}

// Priority is an ordered scale; higher values win conflicts.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is within the known scale.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// DefaultPriority returns the priority a kind gets when the caller does
// not override it: recurring commitments outrank appointments, which
// outrank generated filler.
func DefaultPriority(k Kind) Priority {
	switch k {
	case KindRecurring:
		return PriorityCritical
	case KindAppointment:
		return PriorityMedium
	case KindTemporary:
		return PriorityLow
	}
	return PriorityMedium
}

// Collaboration is the negotiation state of a schedule that involves the
// human user. Confirmed and Declined are terminal.
type Collaboration string

const (
	CollaborationNone      Collaboration = "none"
	CollaborationPending   Collaboration = "pending"
	CollaborationConfirmed Collaboration = "confirmed"
	CollaborationDeclined  Collaboration = "declined"
)

// Valid reports whether c is one of the known states.
func (c Collaboration) Valid() bool {
	switch c {
	case CollaborationNone, CollaborationPending, CollaborationConfirmed, CollaborationDeclined:
		return true
	}
	return false
}

// Schedule is the sole entity the engine manages. For KindRecurring the
// record is a template: Anchor and Pattern define when it fires and no
// per-occurrence rows exist. For the other kinds Date is the single
// occurrence day.
type Schedule struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Location        string        `json:"location"`
	Kind            Kind          `json:"kind"`
	Priority        Priority      `json:"priority"`
	Start           Clock         `json:"start_time"`
	End             Clock         `json:"end_time"`
	Date            time.Time     `json:"date,omitzero"`
	Anchor          time.Time     `json:"anchor_date,omitzero"`
	RecurrenceRule  string        `json:"recurrence_rule,omitempty"`
	RecurrenceEnd   *time.Time    `json:"recurrence_end_date,omitempty"`
	Collaboration   Collaboration `json:"collaboration"`
	InvolvesUser    bool          `json:"involves_user"`
	IsQueryable     bool          `json:"is_queryable"`
	GeneratedReason string        `json:"generated_reason,omitempty"`
	Metadata        string        `json:"metadata,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// EffectiveDate returns the day that anchors the schedule: the anchor
// date for recurring templates, the occurrence date otherwise.
func (s *Schedule) EffectiveDate() time.Time {
	if s.Kind == KindRecurring {
		return s.Anchor
	}
	return s.Date
}

// Validate checks the invariants that must hold before any conflict
// logic runs.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("invalid priority %d", int(s.Priority))
	}
	if !s.Collaboration.Valid() {
		return fmt.Errorf("unknown collaboration state %q", s.Collaboration)
	}
	if s.End <= s.Start {
		return fmt.Errorf("end_time must be after start_time")
	}
	switch s.Kind {
	case KindRecurring:
		if s.Anchor.IsZero() {
			return fmt.Errorf("recurring schedule requires an anchor date")
		}
		if s.RecurrenceRule == "" {
			return fmt.Errorf("recurring schedule requires a recurrence rule")
		}
		if s.RecurrenceEnd != nil && s.RecurrenceEnd.Before(s.Anchor) {
			return fmt.Errorf("recurrence end date precedes anchor date")
		}
	case KindAppointment, KindTemporary:
		if s.Date.IsZero() {
			return fmt.Errorf("%s schedule requires a date", s.Kind)
		}
	}
	return nil
}

// Update is a partial update: only non-nil fields are applied. Exposing
// the legal fields as a struct means there is no column whitelist to
// maintain; identity, kind, and collaboration state are not updatable
// through this path.
type Update struct {
	Title         *string
	Description   *string
	Location      *string
	Priority      *Priority
	Start         *Clock
	End           *Clock
	Date          *time.Time
	Anchor        *time.Time
	RecurrenceEnd *time.Time
	Metadata      *string
}

// Apply copies the set fields of u onto s. It does not validate; callers
// run Validate on the result.
func (u Update) Apply(s *Schedule) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Location != nil {
		s.Location = *u.Location
	}
	if u.Priority != nil {
		s.Priority = *u.Priority
	}
	if u.Start != nil {
		s.Start = *u.Start
	}
	if u.End != nil {
		s.End = *u.End
	}
	if u.Date != nil {
		s.Date = DateOnly(*u.Date)
	}
	if u.Anchor != nil {
		s.Anchor = DateOnly(*u.Anchor)
	}
	if u.RecurrenceEnd != nil {
		end := DateOnly(*u.RecurrenceEnd)
		s.RecurrenceEnd = &end
	}
	if u.Metadata != nil {
		s.Metadata = *u.Metadata
	}
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
