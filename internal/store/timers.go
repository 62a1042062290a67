package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gamezone/internal/timer"
)

// Timers adapts the database to timer.Store.
type Timers struct {
	db *DB
}

// Timers returns the timer state repository.
func (db *DB) Timers() *Timers {
	return &Timers{db: db}
}

var _ timer.Store = (*Timers)(nil)

func (t *Timers) Get(ctx context.Context, bookingID string) (*timer.State, error) {
	var st timer.State
	err := t.db.QueryRowContext(ctx, `
        SELECT booking_id, started_at, base_minutes, applied_extension_minutes, remaining_seconds, updated_at
        FROM timer_states WHERE booking_id = ?`, bookingID).
		Scan(&st.BookingID, &st.StartedAt, &st.BaseMinutes, &st.AppliedExtensionMinutes, &st.RemainingSeconds, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get timer state: %w", err)
	}
	return &st, nil
}

func (t *Timers) Put(ctx context.Context, st timer.State) error {
	_, err := t.db.ExecContext(ctx, `
        INSERT INTO timer_states (booking_id, started_at, base_minutes, applied_extension_minutes, remaining_seconds, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(booking_id) DO UPDATE SET
            started_at = excluded.started_at,
            base_minutes = excluded.base_minutes,
            applied_extension_minutes = excluded.applied_extension_minutes,
            remaining_seconds = excluded.remaining_seconds,
            updated_at = excluded.updated_at`,
		st.BookingID, st.StartedAt.UTC(), st.BaseMinutes, st.AppliedExtensionMinutes, st.RemainingSeconds, st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("put timer state: %w", err)
	}
	return nil
}

func (t *Timers) Delete(ctx context.Context, bookingID string) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM timer_states WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("delete timer state: %w", err)
	}
	return nil
}

func (t *Timers) List(ctx context.Context) ([]timer.State, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT booking_id, started_at, base_minutes, applied_extension_minutes, remaining_seconds, updated_at
        FROM timer_states ORDER BY booking_id`)
	if err != nil {
		return nil, fmt.Errorf("list timer states: %w", err)
	}
	defer rows.Close()

	var out []timer.State
	for rows.Next() {
		var st timer.State
		if err := rows.Scan(&st.BookingID, &st.StartedAt, &st.BaseMinutes, &st.AppliedExtensionMinutes, &st.RemainingSeconds, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
