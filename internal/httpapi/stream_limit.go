package httpapi

import (
	"context"
	"net/http"
	"time"

	"ledger-engine/internal/auth"
	"ledger-engine/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// streamCapTTL bounds how long a crashed process can hold a slot.
const streamCapTTL = time.Hour

// StreamConnCap limits concurrent stream connections per caller identity.
// The slot is held for the lifetime of the SSE handler and released on
// disconnect. limit <= 0 disables the cap.
func StreamConnCap(rdb *redis.Client, limit int) gin.HandlerFunc {
	if rdb == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		id, err := auth.UserID(c.Request.Context())
		if err != nil || id == "" {
			id = c.ClientIP()
		}
		key := "ledger:stream:conns:" + id

		ok, err := utils.AcquireConcurrencyCap(c.Request.Context(), rdb, key, limit, streamCapTTL)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many stream connections"})
			return
		}
		// Release with a fresh context: the request context is already
		// canceled by the time the client disconnects.
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = utils.ReleaseConcurrencyCap(releaseCtx, rdb, key)
		}()

		c.Next()
	}
}
