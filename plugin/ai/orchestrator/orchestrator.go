// Package orchestrator drives one emergency session turn by turn: it routes
// each inbound message through classification, the instruction loop and the
// calmer, persists the outcome and assembles the incident report on
// termination.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/lifesaver/plugin/ai/instruction"
	"github.com/hrygo/lifesaver/plugin/ai/observer"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/plugin/ai/report"
	"github.com/hrygo/lifesaver/plugin/ai/session"
	"github.com/hrygo/lifesaver/plugin/ai/timeout"
	"github.com/hrygo/lifesaver/plugin/ai/triage"
	"github.com/hrygo/lifesaver/store"
)

// MaxMessageLength bounds one inbound message, in runes.
const MaxMessageLength = 4000

var (
	// ErrEmptyMessage is returned for a blank inbound message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message too long")
)

// TurnRequest is one inbound message.
type TurnRequest struct {
	// SessionID is optional; a new session is created when empty or unknown.
	SessionID string
	Message   string
	// TurnID makes retries idempotent: a repeated id replays the previous reply.
	TurnID string
}

// TurnResponse is the user-facing outcome of a turn.
type TurnResponse struct {
	SessionID string                `json:"session_id"`
	ReplyText string                `json:"reply_text"`
	Status    store.Status          `json:"status"`
	Report    *store.IncidentReport `json:"report,omitempty"`
	// Degraded is set when a collaborator failed and guidance fell back to rules.
	Degraded bool `json:"degraded,omitempty"`
}

// Config holds orchestration policy.
type Config struct {
	ConfidenceThreshold float64       // default: 0.6
	ClarificationCap    int           // default: 3
	LookupTimeout       time.Duration // default: 5s
	ReportTimeout       time.Duration // default: 30s
}

// Orchestrator is safe for concurrent use. Turns of one session are
// serialized; different sessions never contend.
type Orchestrator struct {
	store       *store.Store
	classifier  *triage.Classifier
	lookup      protocol.Lookup
	matcher     *protocol.Matcher
	interpreter *instruction.Interpreter
	loop        *instruction.Loop
	calmer      *instruction.Calmer
	reports     *report.Builder
	locker      *session.Locker
	emitter     observer.Emitter
	newID       func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter publishes session events to e.
func WithEmitter(e observer.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an orchestrator.
func New(s *store.Store, r reasoner.Reasoner, lookup protocol.Lookup, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = timeout.LookupTimeout
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = timeout.ReportTimeout
	}
	matcher, err := protocol.NewMatcher()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:       s,
		classifier:  triage.NewClassifier(r, cfg.ConfidenceThreshold),
		lookup:      protocol.WithTimeout(lookup, cfg.LookupTimeout),
		matcher:     matcher,
		interpreter: instruction.NewInterpreter(r, matcher),
		loop:        instruction.NewLoop(cfg.ClarificationCap),
		calmer:      instruction.NewCalmer(r),
		reports:     report.NewBuilder(r, report.WithTimeout(cfg.ReportTimeout)),
		locker:      session.NewLocker(),
		emitter:     observer.Nop{},
		newID:       shortuuid.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// HandleTurn processes exactly one inbound message and commits all of its
// effects atomically.
func (o *Orchestrator) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = o.newID()
	}

	unlock, err := o.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.TurnID != "" && req.TurnID == sess.LastTurnID {
		slog.Info("duplicate turn replayed", "session_id", id, "turn_id", req.TurnID)
		return o.replay(ctx, sess), nil
	}
	if sess.Status.IsTerminal() {
		return nil, store.ErrSessionClosed
	}

	t := newTurn(sess, msg, req.TurnID)
	switch sess.Status {
	case store.StatusAwaitingConfirmation:
		err = o.confirm(ctx, t)
	case store.StatusAwaitingProcedure:
		if sess.Signal.IsUnclear() {
			err = o.classify(ctx, t)
		} else {
			err = o.bind(ctx, t, sess.Signal)
		}
	case store.StatusDeliveringStep:
		o.respond(ctx, t, o.loop.Resume(sess), "")
	default:
		err = o.classify(ctx, t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to handle turn: %w", err)
	}
	t.finish()

	committed, err := o.store.Commit(ctx, id, t.commit)
	if err != nil {
		if errors.Is(err, store.ErrSessionClosed) {
			slog.Info("turn aborted, session closed concurrently", "session_id", id)
		}
		return nil, err
	}

	resp := &TurnResponse{
		SessionID: id,
		ReplyText: t.reply,
		Status:    committed.Status,
		Degraded:  t.degraded,
	}
	if committed.Status.IsTerminal() {
		if resp.Report, err = o.finalize(ctx, committed); err != nil {
			slog.Error("failed to finalize incident report", "session_id", id, "error", err)
		}
	}

	o.publish(ctx, committed, t.commit.Events, time.Since(start))
	slog.Info("turn handled",
		"session_id", id,
		"status", committed.Status,
		"step", committed.CurrentStep,
		"degraded", t.degraded,
		"latency_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// Close terminates a session on an external signal. It does not wait for an
// in-flight turn; that turn's commit is discarded.
func (o *Orchestrator) Close(ctx context.Context, id string, status store.Status, reason string) (*TurnResponse, error) {
	if !status.IsTerminal() {
		return nil, store.ErrNotTerminalStatus
	}
	if reason == "" {
		reason = "closed externally"
	}
	sess, err := o.store.CloseSession(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}

	reply := instruction.ResolutionText(protocol.PredicateEMTArrived)
	if status == store.StatusEscalated {
		reply = instruction.EscalationText(reason)
	}
	resp := &TurnResponse{SessionID: id, ReplyText: reply, Status: sess.Status}
	if resp.Report, err = o.finalize(ctx, sess); err != nil {
		slog.Error("failed to finalize incident report", "session_id", id, "error", err)
	}
	o.publish(ctx, sess, nil, 0)
	return resp, nil
}

// Session returns the persisted session.
func (o *Orchestrator) Session(ctx context.Context, id string) (*store.Session, error) {
	return o.store.Get(ctx, id)
}

// Report returns the incident report of a terminal session, building it if
// an earlier attempt was not persisted.
func (o *Orchestrator) Report(ctx context.Context, id string) (*store.IncidentReport, error) {
	r, err := o.store.GetReport(ctx, id)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return r, err
	}
	sess, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.IsTerminal() {
		return nil, report.ErrSessionNotTerminal
	}
	return o.finalize(ctx, sess)
}

// RecentReports returns the stored reports of the most recently closed
// sessions, newest first.
func (o *Orchestrator) RecentReports(ctx context.Context, limit int) ([]*store.IncidentReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var closed []*store.Session
	for _, status := range []store.Status{store.StatusResolved, store.StatusEscalated} {
		list, err := o.store.ListSessions(ctx, &store.FindSession{Status: &status, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s sessions: %w", status, err)
		}
		closed = append(closed, list...)
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].LastActivityAt.After(closed[j].LastActivityAt)
	})

	reports := make([]*store.IncidentReport, 0, limit)
	for _, sess := range closed {
		if len(reports) == limit {
			break
		}
		r, err := o.store.GetReport(ctx, sess.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (*store.Session, error) {
	sess, err := o.store.Get(ctx, id)
	if !errors.Is(err, store.ErrNotFound) {
		return sess, err
	}
	sess, err = o.store.Create(ctx, id)
	if errors.Is(err, store.ErrSessionExists) {
		return o.store.Get(ctx, id)
	}
	if err == nil {
		slog.Info("session created", "session_id", id)
	}
	return sess, err
}

func (o *Orchestrator) replay(ctx context.Context, sess *store.Session) *TurnResponse {
	resp := &TurnResponse{SessionID: sess.ID, ReplyText: sess.LastReply, Status: sess.Status}
	if sess.Status.IsTerminal() {
		if r, err := o.store.GetReport(ctx, sess.ID); err == nil {
			resp.Report = r
		}
	}
	return resp
}

// finalize builds and stores the report once per session. A concurrent
// writer's report wins.
func (o *Orchestrator) finalize(ctx context.Context, sess *store.Session) (*store.IncidentReport, error) {
	ctx = context.WithoutCancel(ctx)
	r, err := o.reports.Build(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveReport(ctx, r); err != nil {
		if errors.Is(err, store.ErrReportExists) {
			return o.store.GetReport(ctx, sess.ID)
		}
		return r, fmt.Errorf("failed to save incident report: %w", err)
	}
	slog.Info("incident report saved",
		"session_id", sess.ID,
		"final_status", r.FinalStatus,
		"actions", len(r.ActionsTaken))
	return r, nil
}
