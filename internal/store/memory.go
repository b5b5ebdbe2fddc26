package store

import (
	"context"
	"sync"
	"time"

	"ledger-engine/internal/ledger"
)

// MemoryStore is an in-memory event store useful for tests and local
// development. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]ledger.Event
	clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]ledger.Event), clock: time.Now}
}

// SetClock overrides the timestamp source for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Upsert(ctx context.Context, ev ledger.Event) (ledger.Event, error) {
	_ = ctx
	if ev.ID == "" {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev.UpdatedAt = s.clock().UTC()
	s.events[ev.ID] = ev
	return ev, nil
}

func (s *MemoryStore) UpsertIf(ctx context.Context, ev ledger.Event, expected time.Time) (ledger.Event, error) {
	_ = ctx
	if ev.ID == "" {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[ev.ID]
	if ok {
		if !current.UpdatedAt.Equal(expected) {
			return ledger.Event{}, ErrConflict
		}
	} else if !expected.IsZero() {
		return ledger.Event{}, ErrConflict
	}

	ev.UpdatedAt = s.clock().UTC()
	s.events[ev.ID] = ev
	return ev, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (ledger.Event, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return ledger.Event{}, ErrNotFound
	}
	return ev, nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) ([]ledger.Event, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := s.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListIDs(ctx context.Context, limit int) ([]string, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.events))
	for id := range s.events {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, id)
	}
	return out, nil
}
