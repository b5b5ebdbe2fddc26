package stream

import (
	"context"
	"sync"
)

// Publisher is the broadcast medium between committed writes and live
// consumers. Delivery is at-least-once and ordered per producer; a subscriber
// sees messages published after it subscribed.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one consumer's view of the bus. Close releases it; the
// channel is closed afterwards.
type Subscription interface {
	C() <-chan Message
	Close() error
}

// subscriberBuffer bounds each consumer's backlog. A consumer that falls this
// far behind loses frames; the client recovers state on reconnect via the
// snapshot.
const subscriberBuffer = 64

// MemoryBus is an in-process fan-out bus for tests and single-node
// deployments.
type MemoryBus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan Message)}
}

func (b *MemoryBus) Publish(ctx context.Context, m Message) error {
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- m:
		default:
			// Slow consumer: drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, error) {
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Message, subscriberBuffer)
	b.subs[id] = ch

	return &memorySubscription{bus: b, id: id, ch: ch}, nil
}

type memorySubscription struct {
	bus  *MemoryBus
	id   int
	ch   chan Message
	once sync.Once
}

func (s *memorySubscription) C() <-chan Message { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}
