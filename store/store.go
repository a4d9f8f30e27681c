package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for an unknown session or report.
	ErrNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Create for a taken session id.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionClosed is returned by any mutation on a terminal session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrInvalidStep is returned when a step index does not address the bound procedure.
	ErrInvalidStep = errors.New("step index out of range")
	// ErrConcurrentTurn is returned when a commit was computed from a stale session.
	ErrConcurrentTurn = errors.New("session modified by a concurrent turn")
	// ErrReportExists is returned when a second report is written for a session.
	ErrReportExists = errors.New("incident report already exists")
	// ErrNotTerminalStatus is returned when closing with a non-terminal status.
	ErrNotTerminalStatus = errors.New("close requires a terminal status")
)

// Store enforces session semantics on top of a Driver.
type Store struct {
	driver Driver
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new instance of Store.
func New(driver Driver, opts ...Option) *Store {
	s := &Store{
		driver: driver,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Get returns the session or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	return s.driver.GetSession(ctx, id)
}

// Create creates a session in status NEW.
func (s *Store) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("create session: empty id")
	}
	now := s.now()
	sess := &Session{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
		CurrentStep:    StepNone,
		Status:         StatusNew,
		Facts:          map[string]string{},
		Version:        1,
	}
	if err := s.driver.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendEvent appends one event to the session's EventLog.
func (s *Store) AppendEvent(ctx context.Context, id string, event Event) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		s.appendEvent(sess, event)
		return nil
	})
}

// SetFact records a memory fact. Existing keys are overwritten.
func (s *Store) SetFact(ctx context.Context, id, key, value string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("set fact: empty key")
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		setFact(sess, key, value)
		return nil
	})
}

// AdvanceStep moves the step pointer. The index must address the bound procedure.
func (s *Store) AdvanceStep(ctx context.Context, id string, index int) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.Procedure.ValidIndex(index) {
			return ErrInvalidStep
		}
		sess.CurrentStep = index
		return nil
	})
}

// CloseSession moves the session to a terminal status, after which it is read-only.
func (s *Store) CloseSession(ctx context.Context, id string, status Status, reason string) (*Session, error) {
	if !status.IsTerminal() {
		return nil, ErrNotTerminalStatus
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		s.terminate(sess, status, reason)
		return nil
	})
}

// Commit applies the outcome of one turn atomically.
func (s *Store) Commit(ctx context.Context, id string, c *Commit) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if c.ExpectedVersion != 0 && sess.Version != c.ExpectedVersion {
			return ErrConcurrentTurn
		}
		return s.apply(sess, c)
	})
}

// SaveReport stores the report. A session has at most one report.
func (s *Store) SaveReport(ctx context.Context, report *IncidentReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now()
	}
	return s.driver.CreateReport(ctx, report)
}

// GetReport returns the stored report or ErrNotFound.
func (s *Store) GetReport(ctx context.Context, sessionID string) (*IncidentReport, error) {
	return s.driver.GetReport(ctx, sessionID)
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// DeleteExpired removes sessions inactive for longer than retention.
func (s *Store) DeleteExpired(ctx context.Context, retention time.Duration, terminalOnly bool) (int, error) {
	return s.driver.DeleteSessions(ctx, &DeleteSessions{
		InactiveBefore: s.now().Add(-retention),
		TerminalOnly:   terminalOnly,
	})
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	return s.driver.UpdateSession(ctx, id, func(sess *Session) error {
		if sess.Status.IsTerminal() {
			return ErrSessionClosed
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.LastActivityAt = s.monotonic(sess)
		sess.Version++
		return nil
	})
}

// monotonic returns now, clamped so the EventLog never goes back in time.
func (s *Store) monotonic(sess *Session) time.Time {
	now := s.now()
	if last := sess.LastEvent(); last != nil && now.Before(last.Timestamp) {
		now = last.Timestamp
	}
	if now.Before(sess.LastActivityAt) {
		now = sess.LastActivityAt
	}
	return now
}

func (s *Store) appendEvent(sess *Session, event Event) {
	var seq int64 = 1
	if last := sess.LastEvent(); last != nil {
		seq = last.Seq + 1
	}
	event.Seq = seq
	ts := s.monotonic(sess)
	if event.Timestamp.After(ts) {
		ts = event.Timestamp
	}
	event.Timestamp = ts
	sess.Events = append(sess.Events, event)
}

func (s *Store) terminate(sess *Session, status Status, reason string) {
	sess.Status = status
	now := s.monotonic(sess)
	sess.ClosedAt = &now
	s.appendEvent(sess, Event{
		Actor:  ActorSystem,
		Type:   EventSessionClosed,
		Text:   string(status),
		Detail: reason,
	})
}

func setFact(sess *Session, key, value string) {
	if sess.Facts == nil {
		sess.Facts = map[string]string{}
	}
	sess.Facts[key] = value
}
