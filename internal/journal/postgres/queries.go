package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"time"

	"github.com/alfredjeanlab/wagate/internal/model"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryRecord(ctx context.Context, db executor, e *model.Event) error {
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO lifecycle_events (tenant_id, name, session_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.TenantID, e.Name, nullString(e.SessionID), payload,
	).Scan(&e.ID, &e.CreatedAt)
}

func queryList(ctx context.Context, db executor, tenantID string, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, name, session_id, payload, created_at
		FROM lifecycle_events
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNewestFirst(rows)
}

func queryRecent(ctx context.Context, db executor, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, name, session_id, payload, created_at
		FROM lifecycle_events
		ORDER BY id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNewestFirst(rows)
}

func queryPrune(ctx context.Context, db executor, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM lifecycle_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanNewestFirst reads rows ordered newest first and returns them oldest first.
func scanNewestFirst(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		var (
			e         model.Event
			sessionID sql.NullString
			payload   []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &sessionID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
