package store

import (
	"context"
	"fmt"
	"time"

	"gamezone/internal/models"
)

// RecordStop appends a stop snapshot and returns its row id.
func (db *DB) RecordStop(ctx context.Context, r models.StopRecord) (int64, error) {
	res, err := db.ExecContext(ctx, `
        INSERT INTO stop_records (
            booking_id, store_id, staff_name, customer_name, phone, screen, game,
            total_minutes, players, first_game_price, extended_minutes, extended_amount,
            extra_snacks_total, remaining_amount, mode, ledger_debit, stopped_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BookingID, r.StoreID, r.StaffName, r.CustomerName, r.Phone, r.Screen, r.Game,
		r.TotalMinutes, r.Players, r.FirstGamePrice, r.ExtendedMinutes, r.ExtendedAmount,
		r.ExtraSnacksTotal, r.RemainingAmount, r.Mode, r.LedgerDebit, r.StoppedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("record stop: %w", err)
	}
	return res.LastInsertId()
}

// ListStops returns stops in [from, to) ordered by time.
func (db *DB) ListStops(ctx context.Context, from, to time.Time) ([]models.StopRecord, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, booking_id, store_id, COALESCE(staff_name, ''), COALESCE(customer_name, ''), COALESCE(phone, ''),
               COALESCE(screen, ''), COALESCE(game, ''), total_minutes, players, first_game_price,
               extended_minutes, extended_amount, extra_snacks_total, remaining_amount, mode, ledger_debit, stopped_at
        FROM stop_records
        WHERE stopped_at >= ? AND stopped_at < ?
        ORDER BY stopped_at, id`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	defer rows.Close()

	var out []models.StopRecord
	for rows.Next() {
		var r models.StopRecord
		if err := rows.Scan(
			&r.ID, &r.BookingID, &r.StoreID, &r.StaffName, &r.CustomerName, &r.Phone,
			&r.Screen, &r.Game, &r.TotalMinutes, &r.Players, &r.FirstGamePrice,
			&r.ExtendedMinutes, &r.ExtendedAmount, &r.ExtraSnacksTotal, &r.RemainingAmount,
			&r.Mode, &r.LedgerDebit, &r.StoppedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteOldStops removes stop records older than olderThan.
func (db *DB) DeleteOldStops(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := db.ExecContext(ctx, `DELETE FROM stop_records WHERE stopped_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old stops: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleTimers removes timer rows not updated since olderThan. Rows of
// bookings stopped on another terminal are never cleared otherwise.
func (db *DB) DeleteStaleTimers(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := db.ExecContext(ctx, `DELETE FROM timer_states WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale timers: %w", err)
	}
	return res.RowsAffected()
}
