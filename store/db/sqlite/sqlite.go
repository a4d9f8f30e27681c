package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/store"
)

// ============================================================================
// SQLITE SUPPORT (Development / single node)
// ============================================================================
// SQLite serializes writers, so one open connection is used and session
// updates are additionally guarded by the version column.
// ============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS emergency_session (
	id TEXT NOT NULL PRIMARY KEY,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	session_data TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emergency_session_updated_ts ON emergency_session (updated_ts);
CREATE TABLE IF NOT EXISTS incident_report (
	session_id TEXT NOT NULL PRIMARY KEY,
	report_data TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);
`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

var _ store.Driver = (*DB)(nil)

// NewDB opens the database file named by profile.DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	dsn := profile.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	db.SetMaxOpenConns(1)

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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
