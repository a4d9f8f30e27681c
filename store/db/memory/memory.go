// Package memory is an in-process store driver for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hrygo/lifesaver/store"
)

// DB keeps sessions and reports in maps guarded by one mutex.
type DB struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	reports  map[string]*store.IncidentReport
}

var _ store.Driver = (*DB)(nil)

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{
		sessions: make(map[string]*store.Session),
		reports:  make(map[string]*store.IncidentReport),
	}
}

func (d *DB) Close() error {
	return nil
}

func (d *DB) CreateSession(ctx context.Context, create *store.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[create.ID]; ok {
		return store.ErrSessionExists
	}
	d.sessions[create.ID] = create.Clone()
	return nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess.Clone(), nil
}

func (d *DB) UpdateSession(ctx context.Context, id string, fn func(*store.Session) error) (*store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	d.sessions[id] = next
	return next.Clone(), nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*store.Session, 0, len(d.sessions))
	for _, sess := range d.sessions {
		if find != nil && find.Status != nil && sess.Status != *find.Status {
			continue
		}
		list = append(list, sess.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActivityAt.After(list[j].LastActivityAt)
	})
	if find != nil && find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) DeleteSessions(ctx context.Context, del *store.DeleteSessions) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for id, sess := range d.sessions {
		if !sess.LastActivityAt.Before(del.InactiveBefore) {
			continue
		}
		if del.TerminalOnly && !sess.Status.IsTerminal() {
			continue
		}
		delete(d.sessions, id)
		delete(d.reports, id)
		count++
	}
	return count, nil
}

func (d *DB) CreateReport(ctx context.Context, create *store.IncidentReport) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.reports[create.SessionID]; ok {
		return store.ErrReportExists
	}
	cp := *create
	d.reports[create.SessionID] = &cp
	return nil
}

func (d *DB) GetReport(ctx context.Context, sessionID string) (*store.IncidentReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	report, ok := d.reports[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *report
	return &cp, nil
}
