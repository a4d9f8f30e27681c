package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS emergency_session (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	version BIGINT NOT NULL,
	session_data JSONB NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emergency_session_updated_ts ON emergency_session (updated_ts);
CREATE TABLE IF NOT EXISTS incident_report (
	session_id TEXT PRIMARY KEY,
	report_data JSONB NOT NULL,
	created_ts BIGINT NOT NULL
);
`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

var _ store.Driver = (*DB)(nil)

func NewDB(profile *profile.Profile) (*DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Sessions are small JSON documents; a modest pool is enough.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	d := &DB{
		db:      db,
		profile: profile,
	}
	if err := d.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}
