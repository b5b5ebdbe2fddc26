package main

import (
	"database/sql"
	"time"

	"ledger-engine/internal/audit"
	"ledger-engine/internal/auth"
	"ledger-engine/internal/config"
	"ledger-engine/internal/engine"
	"ledger-engine/internal/httpapi"
	"ledger-engine/internal/rbac"
	"ledger-engine/internal/stream"
	"ledger-engine/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	cfg         config.Config
	authManager *auth.Manager
	engine      *engine.Service
	audit       *audit.Service
	gateway     *stream.Gateway
	db          *sql.DB
	rdb         *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := httpapi.Handlers{
		Auth:   deps.authManager,
		Engine: deps.engine,
		Audit:  deps.audit,
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if deps.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
				c.JSON(503, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Token exchange sits in front of the protected group.
	r.POST("/v1/auth/login", h.Login)

	// Ingestion path: shared-secret token, no user identity. Batch elements
	// fail individually.
	r.POST("/v1/ingest", auth.RequireIngestToken(deps.cfg.Ledger.IngestToken), h.Ingest)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(deps.authManager))
	{
		// EVENT routes
		events := v1.Group("/events")
		{
			events.GET("", h.ListEvents)
			events.GET("/:event_id", h.GetEvent)

			events.POST("", rbac.RequireAnyRole(rbac.RoleController), h.Ingest)
			events.POST("/:event_id/receipts", rbac.RequireAnyRole(rbac.RoleController, rbac.RoleApprover), h.AttachReceipt)
			events.POST("/:event_id/assign", rbac.RequireAnyRole(rbac.RoleController, rbac.RoleApprover), h.Assign)

			events.POST("/:event_id/approve", rbac.RequireAnyRole(rbac.RoleApprover), h.Approve)
			events.POST("/:event_id/close", rbac.RequireAnyRole(rbac.RoleApprover), h.Close)

			packetGroup := events.Group("/:event_id/packet")
			packetGroup.Use(rbac.RequireAnyRole(rbac.RoleApprover))
			{
				packetGroup.POST("/submit", h.PacketSubmit)
				packetGroup.POST("/approve", h.PacketApprove)
				packetGroup.POST("/close", h.PacketClose)
			}
		}

		// SUMMARY routes
		v1.GET("/summaries", h.Summaries)

		// AUDIT routes
		auditGroup := v1.Group("/audit")
		auditGroup.Use(rbac.RequireAnyRole(rbac.RoleAuditor))
		{
			auditGroup.GET("/recent", h.AuditRecent)
			auditGroup.GET("/events/:event_id", h.AuditForEvent)
		}

		// LIVE STREAM
		v1.GET("/stream",
			httpapi.StreamConnCap(deps.rdb, deps.cfg.Ledger.StreamMaxConns),
			deps.gateway.ServeSSE,
		)
	}
}
