package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "ledger:changes"

// RedisBus broadcasts messages over a Redis pub/sub channel so multiple API
// processes share one change feed. Redis preserves per-publisher order on a
// channel, which is all the gateway requires.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, redisChannel, frame).Err(); err != nil {
		return fmt.Errorf("stream: redis publish failed: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, redisChannel)

	// Force the subscription onto the wire before returning so callers do not
	// miss messages published immediately after Subscribe.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("stream: redis subscribe failed: %w", err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan Message, subscriberBuffer)}
	go sub.pump(b.log)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Message
	once sync.Once
}

func (s *redisSubscription) pump(log *slog.Logger) {
	defer close(s.ch)
	for raw := range s.ps.Channel() {
		m, err := Decode([]byte(raw.Payload))
		if err != nil {
			log.Warn("stream: dropping undecodable frame", "err", err)
			continue
		}
		select {
		case s.ch <- m:
		default:
			// Slow consumer: drop rather than block the pump.
		}
	}
}

func (s *redisSubscription) C() <-chan Message { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
