// Package timer keeps per-booking countdowns derived from persisted start times.
package timer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LowTimeSeconds is the remaining time at which the low-time callback fires.
const LowTimeSeconds = 300

// State is the persisted countdown state of one booking.
type State struct {
	BookingID               string
	StartedAt               time.Time
	BaseMinutes             int
	AppliedExtensionMinutes int
	RemainingSeconds        int
	UpdatedAt               time.Time
}

// RemainingAt derives the remaining seconds at now from the start time.
func (s State) RemainingAt(now time.Time) int {
	elapsed := int(now.Sub(s.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	base := s.BaseMinutes*60 - elapsed
	if base < 0 {
		base = 0
	}
	return base + s.AppliedExtensionMinutes*60
}

// Store persists timer states keyed by booking id.
// Get returns nil, nil when no state exists.
type Store interface {
	Get(ctx context.Context, bookingID string) (*State, error)
	Put(ctx context.Context, st State) error
	Delete(ctx context.Context, bookingID string) error
	List(ctx context.Context) ([]State, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Get(_ context.Context, bookingID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[bookingID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStore) Put(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.BookingID] = st
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, bookingID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingID < out[j].BookingID })
	return out, nil
}
