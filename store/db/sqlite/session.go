package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/lifesaver/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) error {
	data, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	fields := []string{"id", "status", "version", "session_data", "created_ts", "updated_ts"}
	args := []any{create.ID, string(create.Status), create.Version, string(data), create.CreatedAt.Unix(), create.LastActivityAt.Unix()}
	stmt := `INSERT INTO emergency_session (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, _, err := d.getSession(ctx, d.db, id)
	return sess, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *DB) getSession(ctx context.Context, q queryer, id string) (*store.Session, int64, error) {
	var (
		data    string
		version int64
	)
	err := q.QueryRowContext(ctx, `SELECT session_data, version FROM emergency_session WHERE id = ?`, id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, store.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get session: %w", err)
	}
	sess := &store.Session{}
	if err := json.Unmarshal([]byte(data), sess); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Facts == nil {
		sess.Facts = map[string]string{}
	}
	return sess, version, nil
}

func (d *DB) UpdateSession(ctx context.Context, id string, fn func(*store.Session) error) (*store.Session, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, version, err := d.getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	stmt := `UPDATE emergency_session SET status = ?, version = ?, session_data = ?, updated_ts = ? WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, stmt, string(sess.Status), sess.Version, string(data), sess.LastActivityAt.Unix(), id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrConcurrentTurn
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session update: %w", err)
	}
	return sess, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil && find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}
	query := `SELECT session_data FROM emergency_session WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC`
	if find != nil && find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Session, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess := &store.Session{}
		if err := json.Unmarshal([]byte(data), sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		list = append(list, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteSessions(ctx context.Context, del *store.DeleteSessions) (int, error) {
	where, args := []string{"updated_ts < ?"}, []any{del.InactiveBefore.Unix()}
	if del.TerminalOnly {
		where = append(where, "status IN (?, ?)")
		args = append(args, string(store.StatusResolved), string(store.StatusEscalated))
	}
	res, err := d.db.ExecContext(ctx, `DELETE FROM emergency_session WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM incident_report WHERE session_id NOT IN (SELECT id FROM emergency_session)`); err != nil {
		return 0, fmt.Errorf("failed to delete orphan reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return int(n), nil
}
