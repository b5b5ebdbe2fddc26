package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func ingestRequest(t *testing.T, configured, header string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/ingest", RequireIngestToken(configured), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
	if header != "" {
		req.Header.Set(ingestTokenHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireIngestToken_AcceptsMatch(t *testing.T) {
	if code := ingestRequest(t, "s3cret", "s3cret"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireIngestToken_RejectsMismatch(t *testing.T) {
	if code := ingestRequest(t, "s3cret", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := ingestRequest(t, "s3cret", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for absent header, got %d", code)
	}
}

func TestRequireIngestToken_UnconfiguredAlwaysRejects(t *testing.T) {
	if code := ingestRequest(t, "", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no token configured, got %d", code)
	}
}
