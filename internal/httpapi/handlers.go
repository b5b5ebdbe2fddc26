package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ledger-engine/internal/audit"
	"ledger-engine/internal/auth"
	"ledger-engine/internal/engine"
	"ledger-engine/internal/ledger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// Policy denials are 200 responses with {ok:false, reasons:[...]}: they are
// expected outcomes, not faults.
type Handlers struct {
	Auth   *auth.Manager
	Engine *engine.Service
	Audit  *audit.Service
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credential validation sits in front of this service; this endpoint
// exchanges an already-authenticated identity for engine tokens.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

/* ===================== INGEST ===================== */

// Ingest accepts one event or a batch. Elements fail individually; the batch
// never fails as a whole.
func (h Handlers) Ingest(c *gin.Context) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var events []ledger.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		var single ledger.Event
		if err := json.Unmarshal(raw, &single); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "expected an event or an array of events"})
			return
		}
		events = []ledger.Event{single}
	}

	actor, _ := auth.UserID(c.Request.Context())
	report, err := h.Engine.Ingest(c.Request.Context(), events, actor)
	if err != nil {
		h.renderError(c, err)
		return
	}

	status := http.StatusOK
	if len(report.Rejected) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

/* ===================== READS ===================== */

func (h Handlers) ListEvents(c *gin.Context) {
	events, err := h.Engine.ListEvents(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h Handlers) GetEvent(c *gin.Context) {
	ev, err := h.Engine.GetEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h Handlers) Summaries(c *gin.Context) {
	summaries, err := h.Engine.Summaries(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

/* ===================== TRANSITIONS ===================== */

type assignRequest struct {
	Owner string `json:"owner"`
}

func (h Handlers) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	actor, _ := auth.UserID(c.Request.Context())
	res, err := h.Engine.Assign(c.Request.Context(), c.Param("event_id"), req.Owner, actor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type transitionFunc func(ctx context.Context, eventID, actor string) (engine.TransitionResult, error)

func (h Handlers) Approve(c *gin.Context)       { h.runTransition(c, h.Engine.Approve) }
func (h Handlers) Close(c *gin.Context)         { h.runTransition(c, h.Engine.Close) }
func (h Handlers) PacketSubmit(c *gin.Context)  { h.runTransition(c, h.Engine.PacketSubmit) }
func (h Handlers) PacketApprove(c *gin.Context) { h.runTransition(c, h.Engine.PacketApprove) }
func (h Handlers) PacketClose(c *gin.Context)   { h.runTransition(c, h.Engine.PacketClose) }

func (h Handlers) runTransition(c *gin.Context, op transitionFunc) {
	actor, _ := auth.UserID(c.Request.Context())
	res, err := op(c.Request.Context(), c.Param("event_id"), actor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

/* ===================== RECEIPTS ===================== */

type attachReceiptRequest struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Hash      string  `json:"hash"`
	Freshness float64 `json:"freshness"`
	URL       string  `json:"url"`
}

func (h Handlers) AttachReceipt(c *gin.Context) {
	var req attachReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	actor, _ := auth.UserID(c.Request.Context())
	res, err := h.Engine.AttachReceipt(c.Request.Context(), c.Param("event_id"), ledger.Receipt{
		ID:        req.ID,
		Title:     req.Title,
		Hash:      req.Hash,
		Freshness: req.Freshness,
		URL:       req.URL,
	}, actor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

/* ===================== AUDIT EXPORT ===================== */

type auditExportEntry struct {
	audit.Entry
	Token string `json:"token,omitempty"`
}

func (h Handlers) AuditRecent(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}

	entries, err := h.Audit.RecentGlobal(c.Request.Context(), limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.withTokens(entries)})
}

func (h Handlers) AuditForEvent(c *gin.Context) {
	entries, err := h.Audit.ForEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.withTokens(entries)})
}

func (h Handlers) withTokens(entries []audit.Entry) []auditExportEntry {
	out := make([]auditExportEntry, 0, len(entries))
	for _, e := range entries {
		item := auditExportEntry{Entry: e}
		if tok, err := h.Audit.PortableToken(e); err == nil {
			item.Token = tok
		}
		out = append(out, item)
	}
	return out
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

/* ===================== ERROR MAPPING ===================== */

func (h Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "event not found"})
	case errors.Is(err, engine.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "concurrent modification, retry"})
	default:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	}
}
