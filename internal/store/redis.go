package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ledger-engine/internal/ledger"
)

const (
	keyPrefix = "ledger:event:"

	// scanCount is the per-iteration hint passed to SCAN.
	scanCount = 256
)

// RedisStore keeps each event as a JSON value under ledger:event:<id>.
//
// ListIDs rides Redis SCAN cursors directly: enumeration terminates when the
// cursor returns to zero or the limit is reached. UpsertIf uses WATCH/MULTI so
// a concurrent write to the same key fails the transaction with ErrConflict.
type RedisStore struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, clock: time.Now}
}

func (s *RedisStore) Upsert(ctx context.Context, ev ledger.Event) (ledger.Event, error) {
	if ev.ID == "" {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}

	ev.UpdatedAt = s.clock().UTC()
	raw, err := json.Marshal(ev)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("store: marshal failed: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+ev.ID, raw, 0).Err(); err != nil {
		return ledger.Event{}, fmt.Errorf("store: redis set failed: %w", err)
	}
	return ev, nil
}

func (s *RedisStore) UpsertIf(ctx context.Context, ev ledger.Event, expected time.Time) (ledger.Event, error) {
	if ev.ID == "" {
		return ledger.Event{}, ledger.ErrInvalidEvent
	}

	key := keyPrefix + ev.ID
	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !expected.IsZero() {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			var stored ledger.Event
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("store: unmarshal failed: %w", err)
			}
			if !stored.UpdatedAt.Equal(expected) {
				return ErrConflict
			}
		}

		ev.UpdatedAt = s.clock().UTC()
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("store: marshal failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return ledger.Event{}, ErrConflict
	}
	if err != nil {
		return ledger.Event{}, err
	}
	return ev, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (ledger.Event, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.Event{}, ErrNotFound
	}
	if err != nil {
		return ledger.Event{}, fmt.Errorf("store: redis get failed: %w", err)
	}

	var ev ledger.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ledger.Event{}, fmt.Errorf("store: unmarshal failed: %w", err)
	}
	return ev, nil
}

func (s *RedisStore) GetMany(ctx context.Context, ids []string) ([]ledger.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis mget failed: %w", err)
	}

	out := make([]ledger.Event, 0, len(ids))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // missing key
		}
		var ev ledger.Event
		if err := json.Unmarshal([]byte(str), &ev); err != nil {
			return nil, fmt.Errorf("store: unmarshal failed: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisStore) ListIDs(ctx context.Context, limit int) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("store: redis scan failed: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, keyPrefix))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
