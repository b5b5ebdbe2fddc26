package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ledger-engine/internal/ledger"
)

func newStreamServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", g.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// readDataFrame scans lines until the next data or comment payload.
func readFrame(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		return line
	}
}

func TestServeSSE_HelloThenSnapshotThenUpdates(t *testing.T) {
	bus := NewMemoryBus()
	snapshot := func(ctx context.Context) (Snapshot, error) {
		return Snapshot{
			Events:    []ledger.Event{{ID: "e1", Lane: ledger.LaneValue, Title: "t"}},
			Summaries: []ledger.Summary{{Lane: ledger.LaneValue, Count: 1}},
		}, nil
	}
	g := NewGateway(bus, snapshot, nil)
	srv := newStreamServer(t, g)

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	br := bufio.NewReader(resp.Body)

	first := readFrame(t, br)
	if !strings.Contains(first, `"type":"hello"`) {
		t.Fatalf("expected hello first, got %q", first)
	}
	second := readFrame(t, br)
	if !strings.Contains(second, `"type":"snapshot"`) || !strings.Contains(second, `"e1"`) {
		t.Fatalf("expected snapshot with event, got %q", second)
	}

	// The subscription is taken before the hello frame, so having read the
	// snapshot guarantees this publish reaches the connection.
	if err := bus.Publish(context.Background(), EventUpsert{Event: ledger.Event{ID: "e2", Lane: ledger.LaneCost}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	third := readFrame(t, br)
	if !strings.Contains(third, `"type":"event_upsert"`) || !strings.Contains(third, `"e2"`) {
		t.Fatalf("expected event upsert, got %q", third)
	}
}

func TestServeSSE_KeepAliveComments(t *testing.T) {
	bus := NewMemoryBus()
	g := NewGateway(bus, func(ctx context.Context) (Snapshot, error) { return Snapshot{}, nil }, nil)
	g.SetKeepAlive(50 * time.Millisecond)
	srv := newStreamServer(t, g)

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	readFrame(t, br) // hello
	readFrame(t, br) // snapshot

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line := readFrame(t, br)
		if strings.HasPrefix(line, ":") {
			return
		}
	}
	t.Fatalf("no keepalive comment observed")
}
