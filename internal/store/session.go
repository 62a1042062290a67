package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gamezone/internal/backend"
	"gamezone/internal/session"
)

var _ session.Repository = (*DB)(nil)

// SaveSession stores the single staff session row.
func (db *DB) SaveSession(ctx context.Context, rec session.Record) error {
	staff, err := json.Marshal(rec.Staff)
	if err != nil {
		return fmt.Errorf("encode staff: %w", err)
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO staff_session (id, token, staff_json, expires_at, updated_at)
        VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(id) DO UPDATE SET
            token = excluded.token,
            staff_json = excluded.staff_json,
            expires_at = excluded.expires_at,
            updated_at = CURRENT_TIMESTAMP`,
		rec.Token, string(staff), rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session or nil.
func (db *DB) LoadSession(ctx context.Context) (*session.Record, error) {
	var (
		rec       session.Record
		staffJSON string
	)
	err := db.QueryRowContext(ctx, `SELECT token, staff_json, expires_at FROM staff_session WHERE id = 1`).
		Scan(&rec.Token, &staffJSON, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var staff backend.Staff
	if err := json.Unmarshal([]byte(staffJSON), &staff); err != nil {
		return nil, fmt.Errorf("decode staff: %w", err)
	}
	rec.Staff = staff
	return &rec, nil
}

// ClearSession removes the stored session.
func (db *DB) ClearSession(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM staff_session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
