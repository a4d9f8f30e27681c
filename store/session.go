package store

import (
	"strings"
	"time"
)

// Status is the position of a session in the instruction state machine.
type Status string

const (
	StatusNew                  Status = "NEW"
	StatusClassifying          Status = "CLASSIFYING"
	StatusAwaitingProcedure    Status = "AWAITING_PROCEDURE"
	StatusDeliveringStep       Status = "DELIVERING_STEP"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusResolved             Status = "RESOLVED"
	StatusEscalated            Status = "ESCALATED"
)

// IsTerminal reports whether the session is closed and read-only.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

// ParseStatus converts a user supplied value, case-insensitively.
func ParseStatus(v string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(v)))
	switch st {
	case StatusNew, StatusClassifying, StatusAwaitingProcedure, StatusDeliveringStep,
		StatusAwaitingConfirmation, StatusResolved, StatusEscalated:
		return st, true
	}
	return "", false
}

// Severity is an ordered scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityLow:
		return 1
	case SeverityModerate:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// EmergencyUnclear is the emergency type used when classification confidence is too low.
const EmergencyUnclear = "unclear"

// StepNone marks a session without a delivered step.
const StepNone = -1

// EmergencySignal is the structured result of classifying an utterance.
type EmergencySignal struct {
	EmergencyType string   `json:"emergency_type"`
	Severity      Severity `json:"severity"`
	KeySymptoms   []string `json:"key_symptoms,omitempty"`
	Confidence    float64  `json:"confidence"`
	Summary       string   `json:"summary,omitempty"`
}

// IsUnclear reports whether the signal needs clarification before acting on it.
func (s *EmergencySignal) IsUnclear() bool {
	return s == nil || s.EmergencyType == "" || s.EmergencyType == EmergencyUnclear
}

// Condition is a branch or stop trigger on a step.
//
// A condition matches when the reply interpretation names Predicate, when the
// lowercased reply contains any of Phrases, or when the CEL expression When
// evaluates to true.
type Condition struct {
	Predicate string   `json:"predicate" yaml:"predicate"`
	Phrases   []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`
	When      string   `json:"when,omitempty" yaml:"when,omitempty"`
	// Target is the step id to jump to. Only meaningful for branches.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Step is one instruction of a procedure.
type Step struct {
	ID          string      `json:"id" yaml:"id"`
	Instruction string      `json:"instruction" yaml:"instruction"`
	Branches    []Condition `json:"branches,omitempty" yaml:"branches,omitempty"`
	Stop        []Condition `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// Procedure is an ordered, branchable sequence of steps. Immutable once fetched.
type Procedure struct {
	EmergencyType  string      `json:"emergency_type" yaml:"emergency_type"`
	Title          string      `json:"title" yaml:"title"`
	Steps          []Step      `json:"steps" yaml:"steps"`
	Notes          []string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	StopConditions []Condition `json:"stop_conditions,omitempty" yaml:"stop_conditions,omitempty"`
	Fallback       bool        `json:"fallback,omitempty" yaml:"-"`
}

// ValidIndex reports whether i addresses a step of the procedure.
func (p *Procedure) ValidIndex(i int) bool {
	return p != nil && i >= 0 && i < len(p.Steps)
}

// IndexOf returns the index of the step with the given id, or StepNone.
func (p *Procedure) IndexOf(stepID string) int {
	if p == nil {
		return StepNone
	}
	for i, step := range p.Steps {
		if step.ID == stepID {
			return i
		}
	}
	return StepNone
}

// Session is the persisted state of one emergency interaction.
type Session struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
	Signal         *EmergencySignal  `json:"signal,omitempty"`
	Procedure      *Procedure        `json:"procedure,omitempty"`
	CurrentStep    int               `json:"current_step"`
	Status         Status            `json:"status"`
	Facts          map[string]string `json:"facts"`
	Events         []Event           `json:"events"`
	// Clarifications counts consecutive clarifying prompts since the last forward progress.
	Clarifications      int `json:"clarifications"`
	TotalClarifications int `json:"total_clarifications"`

	LastTurnID string `json:"last_turn_id,omitempty"`
	LastReply  string `json:"last_reply,omitempty"`
	Version    int64  `json:"version"`
}

// EmergencyType returns the classified type or an empty string.
func (s *Session) EmergencyType() string {
	if s.Signal == nil {
		return ""
	}
	return s.Signal.EmergencyType
}

// Step returns the current step, or nil when none is bound.
func (s *Session) Step() *Step {
	if !s.Procedure.ValidIndex(s.CurrentStep) {
		return nil
	}
	return &s.Procedure.Steps[s.CurrentStep]
}

// LastEvent returns the most recent event, or nil.
func (s *Session) LastEvent() *Event {
	if len(s.Events) == 0 {
		return nil
	}
	return &s.Events[len(s.Events)-1]
}

// Clone returns a deep copy. Procedures are immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	if s.Signal != nil {
		sig := *s.Signal
		sig.KeySymptoms = append([]string(nil), s.Signal.KeySymptoms...)
		c.Signal = &sig
	}
	c.Facts = make(map[string]string, len(s.Facts))
	for k, v := range s.Facts {
		c.Facts[k] = v
	}
	c.Events = append([]Event(nil), s.Events...)
	return &c
}

// FindSession filters ListSessions.
type FindSession struct {
	Status *Status
	Limit  int
}

// DeleteSessions selects sessions for retention cleanup.
type DeleteSessions struct {
	// InactiveBefore removes sessions whose last activity precedes this time.
	InactiveBefore time.Time
	// TerminalOnly keeps open sessions regardless of age.
	TerminalOnly bool
}
