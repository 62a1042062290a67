package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gamezone/internal/backend"
	"gamezone/internal/models"
	"gamezone/internal/session"
	"gamezone/internal/timer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTimerStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	timers := openTestDB(t).Timers()

	st, err := timers.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, st)

	start := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, timers.Put(ctx, timer.State{
		BookingID:        "b1",
		StartedAt:        start,
		BaseMinutes:      60,
		RemainingSeconds: 3600,
		UpdatedAt:        start,
	}))
	require.NoError(t, timers.Put(ctx, timer.State{
		BookingID:               "b1",
		StartedAt:               start,
		BaseMinutes:             60,
		AppliedExtensionMinutes: 30,
		RemainingSeconds:        5000,
		UpdatedAt:               start.Add(time.Minute),
	}))

	st, err = timers.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.StartedAt.Equal(start))
	assert.Equal(t, 30, st.AppliedExtensionMinutes)
	assert.Equal(t, 5000, st.RemainingSeconds)

	list, err := timers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, timers.Delete(ctx, "b1"))
	st, err = timers.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestTimerBoardOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	board := timer.NewBoard(db.Timers(), timer.Hooks{}, nil, timer.WithClock(clock))
	_, err := board.Mount(ctx, timer.Spec{BookingID: "b1", BaseMinutes: 60})
	require.NoError(t, err)
	board.Close()

	now = now.Add(15 * time.Minute)
	restarted := timer.NewBoard(db.Timers(), timer.Hooks{}, nil, timer.WithClock(clock))
	remaining, err := restarted.Mount(ctx, timer.Spec{BookingID: "b1", BaseMinutes: 60, ExtensionMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 45*60+30*60, remaining)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	rec, err := db.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	exp := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSession(ctx, session.Record{
		Token:     "tok",
		Staff:     backend.Staff{Username: "ana", Store: "42"},
		ExpiresAt: exp,
	}))

	rec, err = db.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "tok", rec.Token)
	assert.Equal(t, "42", rec.Staff.Store)
	assert.True(t, rec.ExpiresAt.Equal(exp))

	require.NoError(t, db.ClearSession(ctx))
	rec, err = db.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStopRecords(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	at := time.Now().UTC().Truncate(time.Second)
	id, err := db.RecordStop(ctx, models.StopRecord{
		BookingID:       "b1",
		StoreID:         "42",
		CustomerName:    "Ravi",
		Screen:          "VR-1",
		RemainingAmount: 250,
		Mode:            models.StopLedger,
		LedgerDebit:     250,
		StoppedAt:       at,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	stops, err := db.ListStops(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, 250.0, stops[0].LedgerDebit)
	assert.Equal(t, "Ravi", stops[0].CustomerName)

	data, columns, err := db.GetTableData(ctx, "stop_records")
	require.NoError(t, err)
	assert.Contains(t, columns, "booking_id")
	require.Len(t, data, 1)
	assert.Equal(t, "b1", data[0]["booking_id"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)

	deleted, err := db.DeleteOldStops(ctx, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	logger := zerolog.Nop()

	db.RunBackup(ctx, dir, 24*time.Hour, &logger)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	old := filepath.Join(dir, entries[0].Name())
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	deleted, err := CleanupBackups(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
