package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// DefaultKeepAlive is the idle interval after which a comment frame is sent so
// intermediaries do not drop the connection as idle.
const DefaultKeepAlive = 15 * time.Second

// SnapshotFunc produces the full current state sent to every new connection.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// Gateway turns the change bus into a long-lived SSE feed, one goroutine per
// client connection.
//
// Per connection: hello frame, full snapshot, then every subsequent bus
// message in arrival order. A failed write to one client ends only that
// client's loop. Disconnect releases the subscription immediately.
type Gateway struct {
	bus       Publisher
	snapshot  SnapshotFunc
	keepAlive time.Duration
	clock     func() time.Time
	log       *slog.Logger
}

func NewGateway(bus Publisher, snapshot SnapshotFunc, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		bus:       bus,
		snapshot:  snapshot,
		keepAlive: DefaultKeepAlive,
		clock:     time.Now,
		log:       log,
	}
}

// SetKeepAlive overrides the keepalive interval (tests use short values).
func (g *Gateway) SetKeepAlive(d time.Duration) {
	if d > 0 {
		g.keepAlive = d
	}
}

// ServeSSE handles one stream connection until the client goes away.
func (g *Gateway) ServeSSE(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := g.bus.Subscribe(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
		return
	}
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	if err := g.writeFrame(c.Writer, Hello{ServerTime: g.clock().UTC()}); err != nil {
		return
	}

	snap, err := g.snapshot(ctx)
	if err != nil {
		g.log.Error("stream: snapshot failed", "err", err)
		return
	}
	if err := g.writeFrame(c.Writer, snap); err != nil {
		return
	}

	keep := time.NewTicker(g.keepAlive)
	defer keep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			if err := g.writeFrame(c.Writer, m); err != nil {
				return
			}
			keep.Reset(g.keepAlive)
		case <-keep.C:
			if err := writeComment(c.Writer); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) writeFrame(w gin.ResponseWriter, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		g.log.Error("stream: frame encode failed", "err", err)
		return err
	}
	if err := sse.Encode(w, sse.Event{Data: string(frame)}); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// writeComment emits an SSE comment line, ignored by clients but enough to
// keep the connection warm.
func writeComment(w gin.ResponseWriter) error {
	if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
