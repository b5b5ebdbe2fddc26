package stream

import (
	"context"
	"testing"
	"time"

	"ledger-engine/internal/ledger"
)

func recvMessage(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return nil
}

func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus()

	s1, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s1.Close()
	s2, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s2.Close()

	want := EventUpsert{Event: ledger.Event{ID: "e1", Lane: ledger.LaneValue}}
	if err := bus.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []Subscription{s1, s2} {
		m := recvMessage(t, sub)
		up, ok := m.(EventUpsert)
		if !ok || up.Event.ID != "e1" {
			t.Fatalf("unexpected message %+v", m)
		}
	}
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()

	sub, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice must be safe.
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := bus.Publish(context.Background(), Ticker{At: time.Now()}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}

	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel")
	}
}

func TestMemoryBus_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	bus := NewMemoryBus()

	sub, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Overfill the buffer without draining; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(context.Background(), Ticker{At: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on slow consumer")
	}
}
