package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ledger-engine/internal/audit"
	"ledger-engine/internal/auth"
	"ledger-engine/internal/engine"
	"ledger-engine/internal/ledger"
	"ledger-engine/internal/packet"
	"ledger-engine/internal/policy"
	"ledger-engine/internal/signing"
	"ledger-engine/internal/store"
	"ledger-engine/internal/stream"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := signing.NewSigner("test-secret", "k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	auditSvc := audit.NewService(audit.NewMemoryRepo(), signer)
	engineSvc := engine.NewService(
		store.NewMemoryStore(),
		policy.NewEngine(policy.DefaultConfig()),
		packet.NewWorkflow(100000),
		auditSvc,
		stream.NewMemoryBus(),
		nil,
	)
	h := Handlers{Engine: engineSvc, Audit: auditSvc}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "tester", "admin"))
		c.Next()
	})
	r.POST("/v1/ingest", h.Ingest)
	r.GET("/v1/events", h.ListEvents)
	r.GET("/v1/events/:event_id", h.GetEvent)
	r.POST("/v1/events/:event_id/assign", h.Assign)
	r.POST("/v1/events/:event_id/approve", h.Approve)
	r.POST("/v1/events/:event_id/receipts", h.AttachReceipt)
	r.GET("/v1/audit/recent", h.AuditRecent)
	r.GET("/v1/audit/events/:event_id", h.AuditForEvent)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngest_SingleObjectAccepted(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/ingest", map[string]any{
		"id": "e1", "lane": "value", "title": "t", "confidence": 0.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var report engine.IngestReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Accepted) != 1 || report.Accepted[0].ID != "e1" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestIngest_PartialBatchIsMultiStatus(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/ingest", []map[string]any{
		{"id": "e1", "lane": "value", "title": "t"},
		{"lane": "value", "title": "no id"},
	})
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", w.Code, w.Body)
	}
}

func TestIngest_MalformedBody(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	r := newTestRouter(t)

	if w := doJSON(t, r, http.MethodGet, "/v1/events/ghost", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestApprove_DenialIsOKWithReasons(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/v1/ingest", map[string]any{"id": "e1", "lane": "value", "title": "t"})

	w := doJSON(t, r, http.MethodPost, "/v1/events/e1/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("denial must be a 200, got %d: %s", w.Code, w.Body)
	}

	var res engine.TransitionResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.OK {
		t.Fatalf("expected denial")
	}
	if len(res.Reasons) == 0 {
		t.Fatalf("expected reasons in body")
	}
}

func TestApprove_FullFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/v1/ingest", map[string]any{"id": "e1", "lane": "value", "title": "t", "confidence": 0.8})
	doJSON(t, r, http.MethodPost, "/v1/events/e1/assign", map[string]any{"owner": "carol"})
	doJSON(t, r, http.MethodPost, "/v1/events/e1/receipts", map[string]any{"title": "invoice"})
	doJSON(t, r, http.MethodPost, "/v1/events/e1/receipts", map[string]any{"title": "statement"})

	w := doJSON(t, r, http.MethodPost, "/v1/events/e1/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var res engine.TransitionResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected allow, got %v", res.Reasons)
	}
	if res.Event == nil || res.Event.State != ledger.StateApproved {
		t.Fatalf("expected approved event in response")
	}
}

func TestAuditExport_CarriesPortableTokens(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/v1/ingest", map[string]any{"id": "e1", "lane": "value", "title": "t"})

	w := doJSON(t, r, http.MethodGet, "/v1/audit/events/e1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Entries []struct {
			EventID string `json:"event_id"`
			Sig     string `json:"sig"`
			Token   string `json:"token"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(body.Entries))
	}
	if body.Entries[0].Sig == "" || body.Entries[0].Token == "" {
		t.Fatalf("expected signed entry with portable token: %+v", body.Entries[0])
	}
}

func TestAuditRecent_RespectsLimit(t *testing.T) {
	r := newTestRouter(t)
	for _, id := range []string{"a", "b", "c"} {
		doJSON(t, r, http.MethodPost, "/v1/ingest", map[string]any{"id": id, "lane": "cost", "title": id})
	}

	w := doJSON(t, r, http.MethodGet, "/v1/audit/recent?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.Entries))
	}
}
