package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	low     []string
	expired []string
	ticks   int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnTick: func(string, int) {
			r.mu.Lock()
			r.ticks++
			r.mu.Unlock()
		},
		OnLowTime: func(id string) {
			r.mu.Lock()
			r.low = append(r.low, id)
			r.mu.Unlock()
		},
		OnExpired: func(id string) {
			r.mu.Lock()
			r.expired = append(r.expired, id)
			r.mu.Unlock()
		},
	}
}

func newTestBoard(store Store, rec *recorder) (*Board, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	return NewBoard(store, rec.hooks(), nil, WithClock(clock.Now)), clock
}

// tickAll advances every mounted countdown by one second.
func tickAll(ctx context.Context, b *Board) {
	b.mu.Lock()
	list := make([]*Countdown, 0, len(b.countdowns))
	for _, c := range b.countdowns {
		list = append(list, c)
	}
	b.mu.Unlock()

	for _, c := range list {
		c.Tick(ctx)
	}
}

func TestRemainingAt(t *testing.T) {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	st := State{StartedAt: start, BaseMinutes: 60, AppliedExtensionMinutes: 30}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"at start", 0, 3600 + 1800},
		{"ten minutes in", 10 * time.Minute, 3000 + 1800},
		{"base exhausted", 90 * time.Minute, 1800},
		{"clock behind start", -time.Minute, 3600 + 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, st.RemainingAt(start.Add(tt.elapsed)))
		})
	}
}

func TestMountSeedsAndSurvivesRemount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &recorder{}
	board, clock := newTestBoard(store, rec)

	remaining, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 3600, remaining)

	st, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, clock.Now(), st.StartedAt)

	// view torn down and rebuilt 25 minutes later
	board.Close()
	clock.Advance(25 * time.Minute)

	remaining, err = board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 3600-25*60, remaining)
}

func TestBaseChangeResetsCountdown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	board, clock := newTestBoard(store, &recorder{})

	_, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 60, ExtensionMinutes: 30})
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	board.Close()

	remaining, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 120})
	require.NoError(t, err)
	assert.Equal(t, 7200, remaining)

	st, _ := store.Get(ctx, "b1")
	assert.Equal(t, 0, st.AppliedExtensionMinutes)
	assert.Equal(t, clock.Now(), st.StartedAt)
}

func TestBaseChangeKeepsCumulativeExtension(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	board, clock := newTestBoard(store, &recorder{})

	require.NoError(t, board.Sync(ctx, []Spec{{BookingID: "b1", BaseMinutes: 60, ExtensionMinutes: 30}}))
	got, _ := board.Remaining("b1")
	assert.Equal(t, 5400, got)
	clock.Advance(20 * time.Minute)

	// the refreshed record carries the new base and the same cumulative extension
	require.NoError(t, board.Sync(ctx, []Spec{{BookingID: "b1", BaseMinutes: 90, ExtensionMinutes: 30}}))
	got, _ = board.Remaining("b1")
	assert.Equal(t, 90*60+30*60, got)

	st, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 90, st.BaseMinutes)
	assert.Equal(t, 30, st.AppliedExtensionMinutes)
	assert.Equal(t, clock.Now(), st.StartedAt)

	// an unchanged extension total is not added a second time
	require.NoError(t, board.Sync(ctx, []Spec{{BookingID: "b1", BaseMinutes: 90, ExtensionMinutes: 30}}))
	got, _ = board.Remaining("b1")
	assert.Equal(t, 7200, got)
}

func TestExtensionDeltaIsAddedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	board, _ := newTestBoard(store, &recorder{})

	remaining, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 3600, remaining)

	board.ApplyExtension(ctx, "b1", 30)
	got, _ := board.Remaining("b1")
	assert.Equal(t, 3600+1800, got)

	// same cumulative total again is a no-op
	board.ApplyExtension(ctx, "b1", 30)
	got, _ = board.Remaining("b1")
	assert.Equal(t, 3600+1800, got)

	remaining, err = board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 60, ExtensionMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 3600+3600, remaining)

	st, _ := store.Get(ctx, "b1")
	assert.Equal(t, 60, st.AppliedExtensionMinutes)
}

func TestLowTimeFiresOnceAndExpiryClearsState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &recorder{}
	board, clock := newTestBoard(store, rec)

	_, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 10})
	require.NoError(t, err)

	// jump close to the threshold, then tick through it
	board.Close()
	clock.Advance(10*time.Minute - 302*time.Second)
	remaining, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 10})
	require.NoError(t, err)
	assert.Equal(t, 302, remaining)

	for i := 0; i < 5; i++ {
		tickAll(ctx, board)
	}
	got, _ := board.Remaining("b1")
	assert.Equal(t, 297, got)
	assert.Equal(t, []string{"b1"}, rec.low)

	for i := 0; i < 297; i++ {
		tickAll(ctx, board)
	}
	got, _ = board.Remaining("b1")
	assert.Equal(t, 0, got)
	assert.Equal(t, []string{"b1"}, rec.expired)
	assert.Equal(t, []string{"b1"}, rec.low)

	st, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, st)

	// extra ticks after expiry do nothing
	tickAll(ctx, board)
	assert.Equal(t, 302, rec.ticks)
}

func TestExtensionResumesExhaustedCountdown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &recorder{}
	board, clock := newTestBoard(store, rec)

	_, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 30})
	require.NoError(t, err)
	board.Close()
	clock.Advance(29*time.Minute + 59*time.Second)
	_, err = board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 30})
	require.NoError(t, err)

	tickAll(ctx, board)
	got, _ := board.Remaining("b1")
	assert.Equal(t, 0, got)
	require.Len(t, rec.expired, 1)

	board.ApplyExtension(ctx, "b1", 30)
	got, _ = board.Remaining("b1")
	assert.Equal(t, 1800, got)

	tickAll(ctx, board)
	got, _ = board.Remaining("b1")
	assert.Equal(t, 1799, got)

	st, _ := store.Get(ctx, "b1")
	require.NotNil(t, st)
	assert.Equal(t, 1799, st.RemainingSeconds)
}

func TestSyncUnmountsVanishedBookings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	board, _ := newTestBoard(store, &recorder{})

	require.NoError(t, board.Sync(ctx, []Spec{{BookingID: "a", BaseMinutes: 60}, {BookingID: "b", BaseMinutes: 30}}))
	assert.Len(t, board.Snapshot(), 2)

	require.NoError(t, board.Sync(ctx, []Spec{{BookingID: "b", BaseMinutes: 30}}))
	snap := board.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, 1800, snap["b"])

	// unmounted, not cleared
	st, _ := store.Get(ctx, "a")
	assert.NotNil(t, st)

	require.NoError(t, board.Clear(ctx, "b"))
	st, _ = store.Get(ctx, "b")
	assert.Nil(t, st)
	_, ok := board.Remaining("b")
	assert.False(t, ok)
}

func TestBoardTicksInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	board := NewBoard(NewMemoryStore(), rec.hooks(), nil, WithInterval(5*time.Millisecond))
	board.Start(ctx)

	_, err := board.Mount(ctx, Spec{BookingID: "b1", BaseMinutes: 1})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, _ := board.Remaining("b1")
		return got < 60
	}, time.Second, 5*time.Millisecond)

	board.Close()
}
