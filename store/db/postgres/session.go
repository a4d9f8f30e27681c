package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hrygo/lifesaver/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) error {
	data, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	stmt := `INSERT INTO emergency_session (id, status, version, session_data, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = d.db.ExecContext(ctx, stmt, create.ID, string(create.Status), create.Version, string(data),
		create.CreatedAt.Unix(), create.LastActivityAt.Unix())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return store.ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT session_data FROM emergency_session WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(data)
}

func (d *DB) UpdateSession(ctx context.Context, id string, fn func(*store.Session) error) (*store.Session, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT session_data FROM emergency_session WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}

	next, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	stmt := `UPDATE emergency_session SET status = $1, version = $2, session_data = $3, updated_ts = $4 WHERE id = $5`
	if _, err := tx.ExecContext(ctx, stmt, string(sess.Status), sess.Version, string(next), sess.LastActivityAt.Unix(), id); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session update: %w", err)
	}
	return sess, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil && find.Status != nil {
		args = append(args, string(*find.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
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
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteSessions(ctx context.Context, del *store.DeleteSessions) (int, error) {
	where := "updated_ts < $1"
	if del.TerminalOnly {
		where += fmt.Sprintf(" AND status IN ('%s', '%s')", store.StatusResolved, store.StatusEscalated)
	}
	res, err := d.db.ExecContext(ctx, `DELETE FROM emergency_session WHERE `+where, del.InactiveBefore.Unix())
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

func decodeSession(data []byte) (*store.Session, error) {
	sess := &store.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Facts == nil {
		sess.Facts = map[string]string{}
	}
	return sess, nil
}
