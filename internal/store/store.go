package store

import (
	"context"
	"errors"
	"time"

	"ledger-engine/internal/ledger"
)

// EventStore is the persistence contract for ledger events.
//
// Guarantees:
// - Reads observe the most recently committed write per key.
// - Writes are last-writer-wins; no cross-key transactional guarantee.
// - UpsertIf gives callers the conditional-write primitive needed to
//   serialize read-validate-write transition sequences.
type EventStore interface {
	// Upsert replaces the stored event, stamping UpdatedAt.
	Upsert(ctx context.Context, ev ledger.Event) (ledger.Event, error)

	// UpsertIf replaces the stored event only when its current UpdatedAt
	// equals expected. A missing event matches the zero time. Mismatch
	// returns ErrConflict; the caller should re-read and retry.
	UpsertIf(ctx context.Context, ev ledger.Event, expected time.Time) (ledger.Event, error)

	// Get returns the event or ErrNotFound.
	Get(ctx context.Context, id string) (ledger.Event, error)

	// GetMany returns events in input order, omitting missing ids.
	GetMany(ctx context.Context, ids []string) ([]ledger.Event, error)

	// ListIDs enumerates keys via an opaque cursor, stopping when the cursor
	// wraps to its initial value or limit is reached. limit <= 0 means all.
	ListIDs(ctx context.Context, limit int) ([]string, error)
}

var (
	ErrNotFound = errors.New("store: event not found")

	// ErrConflict signals a lost conditional write. It is retryable: re-read
	// the event, re-validate policy, and attempt the write again.
	ErrConflict = errors.New("store: concurrent modification")
)
