// Package report builds the incident report handed to responders when a
// session terminates.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/plugin/ai/timeout"
	"github.com/hrygo/lifesaver/store"
)

// ErrSessionNotTerminal is returned when building a report for an open session.
var ErrSessionNotTerminal = errors.New("session not terminal")

// Builder assembles incident reports.
type Builder struct {
	reasoner reasoner.Reasoner
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithTimeout bounds narrative generation.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a builder. A nil reasoner disables the narrative.
func NewBuilder(r reasoner.Reasoner, opts ...Option) *Builder {
	b := &Builder{reasoner: r, timeout: timeout.ReportTimeout, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build derives the structured report from the session and adds the
// Reasoner's narrative. Narrative failure leaves it empty.
func (b *Builder) Build(ctx context.Context, sess *store.Session) (*store.IncidentReport, error) {
	if sess == nil || !sess.Status.IsTerminal() {
		return nil, ErrSessionNotTerminal
	}
	r := Derive(sess)
	r.Narrative = b.narrative(ctx, r)
	r.CreatedAt = b.now()
	return r, nil
}

func (b *Builder) narrative(ctx context.Context, r *store.IncidentReport) string {
	if b.reasoner == nil {
		return ""
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	start := time.Now()
	timeline := make([]string, 0, len(r.Timeline))
	for _, e := range r.Timeline {
		timeline = append(timeline, fmt.Sprintf("%s %s: %s", e.Timestamp.UTC().Format(time.RFC3339), e.Actor, e.Action))
	}
	res, err := b.reasoner.Reason(ctx, &reasoner.Request{
		Role: reasoner.RoleReport,
		Context: map[string]any{
			"emergency_type": r.EmergencyType,
			"severity":       string(r.Severity),
			"final_status":   string(r.FinalStatus),
			"symptoms":       r.Symptoms,
			"actions_taken":  r.ActionsTaken,
			"medications":    r.Medications,
			"facts":          r.Facts,
			"timeline":       timeline,
		},
	})
	if err != nil {
		slog.Warn("report narrative unavailable",
			"session_id", r.SessionID,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds())
		return ""
	}
	return res.String("narrative")
}

// Derive computes the structured fields of a report from the event log and
// facts alone. The same session always yields the same result.
func Derive(sess *store.Session) *store.IncidentReport {
	r := &store.IncidentReport{
		SessionID:          sess.ID,
		StartedAt:          sess.CreatedAt,
		EndedAt:            sess.LastActivityAt,
		FinalStatus:        sess.Status,
		Timeline:           []store.TimelineEntry{},
		Symptoms:           []string{},
		ActionsTaken:       []string{},
		Medications:        []string{},
		ClarificationCount: sess.TotalClarifications,
		FallbackProcedure:  sess.Procedure != nil && sess.Procedure.Fallback,
	}
	if sess.ClosedAt != nil {
		r.EndedAt = *sess.ClosedAt
	}
	if sess.Signal != nil {
		r.EmergencyType = sess.Signal.EmergencyType
		r.Severity = sess.Signal.Severity
	}
	if len(sess.Facts) > 0 {
		r.Facts = make(map[string]string, len(sess.Facts))
		for k, v := range sess.Facts {
			r.Facts[k] = v
		}
	}

	symptoms, meds, actions := newSet(), newSet(), newSet()
	for _, e := range sess.Events {
		for _, s := range e.Symptoms {
			symptoms.add(s)
		}
		for _, m := range e.Medications {
			meds.add(m)
		}
		switch e.Type {
		case store.EventConfirmation:
			actions.add(e.Text)
		case store.EventReassurance:
			continue
		}
		if action := describe(e); action != "" {
			r.Timeline = append(r.Timeline, store.TimelineEntry{Timestamp: e.Timestamp, Actor: e.Actor, Action: action})
		}
	}
	// A step in progress when responders arrived was being performed.
	if last := inProgress(sess); last != "" {
		actions.add(last + " (in progress)")
	}

	r.Symptoms = symptoms.list()
	r.Medications = meds.list()
	r.ActionsTaken = actions.list()
	return r
}

func describe(e store.Event) string {
	switch e.Type {
	case store.EventUtterance:
		return fmt.Sprintf("said %q", e.Text)
	case store.EventClassification:
		return fmt.Sprintf("classified as %s (%s)", humanize(e.EmergencyType), e.Severity)
	case store.EventClassificationChanged:
		return fmt.Sprintf("reclassified: %s", e.Detail)
	case store.EventClarification:
		return "asked for clarification"
	case store.EventToolCall:
		return e.Detail
	case store.EventProcedureFallback:
		return "no specific protocol; used general emergency procedure"
	case store.EventProcedureBound:
		return "started protocol: " + e.Detail
	case store.EventStepDelivered:
		return "instructed: " + e.Text
	case store.EventConfirmation:
		return "confirmed: " + e.Text
	case store.EventBranch:
		return fmt.Sprintf("%s, switched to step %s", humanize(e.Condition), e.Detail)
	case store.EventStopCondition:
		return "stopped: " + humanize(e.Condition)
	case store.EventFactRecorded:
		return "noted " + e.Detail
	case store.EventDegraded:
		return "degraded guidance: " + e.Detail
	case store.EventEscalation:
		return "escalated: " + e.Detail
	case store.EventSessionClosed:
		return "session closed: " + e.Detail
	}
	return ""
}

// inProgress returns the step being performed when a stop condition ended
// the procedure, if it was delivered but never confirmed.
func inProgress(sess *store.Session) string {
	var delivered, confirmed string
	stopped := false
	for _, e := range sess.Events {
		switch e.Type {
		case store.EventStepDelivered:
			delivered, stopped = e.StepID, false
		case store.EventConfirmation:
			confirmed = e.StepID
		case store.EventStopCondition:
			stopped = true
		}
	}
	if !stopped || delivered == "" || delivered == confirmed || sess.Procedure == nil {
		return ""
	}
	idx := sess.Procedure.IndexOf(delivered)
	if idx == store.StepNone {
		return ""
	}
	return sess.Procedure.Steps[idx].Instruction
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// set keeps first-seen order of case-insensitively distinct values.
type set struct {
	seen  map[string]bool
	items []string
}

func newSet() *set {
	return &set{seen: map[string]bool{}}
}

func (s *set) add(v string) {
	v = strings.TrimSpace(v)
	key := strings.ToLower(v)
	if key == "" || s.seen[key] {
		return
	}
	s.seen[key] = true
	s.items = append(s.items, v)
}

func (s *set) list() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

// SortedFactKeys returns the fact keys of r in order.
func SortedFactKeys(r *store.IncidentReport) []string {
	keys := make([]string, 0, len(r.Facts))
	for k := range r.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
