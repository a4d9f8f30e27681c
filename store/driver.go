package store

import "context"

// Driver is an interface for store driver.
// It contains all methods that a session storage backend should implement.
type Driver interface {
	Close() error

	// CreateSession inserts a new session. Fails with ErrSessionExists.
	CreateSession(ctx context.Context, create *Session) error
	// GetSession fails with ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)
	// UpdateSession performs an atomic read-modify-write of one session.
	// fn receives a private copy; returning an error discards the change.
	UpdateSession(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	DeleteSessions(ctx context.Context, delete *DeleteSessions) (int, error)

	// CreateReport fails with ErrReportExists when a report is already stored.
	CreateReport(ctx context.Context, create *IncidentReport) error
	GetReport(ctx context.Context, sessionID string) (*IncidentReport, error)
}
