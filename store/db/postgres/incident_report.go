package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hrygo/lifesaver/store"
)

func (d *DB) CreateReport(ctx context.Context, create *store.IncidentReport) error {
	data, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to marshal incident report: %w", err)
	}
	stmt := `INSERT INTO incident_report (session_id, report_data, created_ts) VALUES ($1, $2, $3)`
	if _, err := d.db.ExecContext(ctx, stmt, create.SessionID, string(data), create.CreatedAt.Unix()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return store.ErrReportExists
		}
		return fmt.Errorf("failed to create incident report: %w", err)
	}
	return nil
}

func (d *DB) GetReport(ctx context.Context, sessionID string) (*store.IncidentReport, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT report_data FROM incident_report WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident report: %w", err)
	}
	report := &store.IncidentReport{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident report: %w", err)
	}
	return report, nil
}
