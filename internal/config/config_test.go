package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "ledger")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "ledger")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "")
	t.Setenv("JWT_ACCESS_TTL", "")
	t.Setenv("JWT_REFRESH_TTL", "")
	t.Setenv("AUDIT_SIGNING_SECRET", "audit-secret")
	t.Setenv("AUDIT_SIGNING_KEY_ID", "")
	t.Setenv("DUAL_APPROVAL_THRESHOLD", "")
	t.Setenv("INGEST_TOKEN", "ingest-token")
	t.Setenv("STREAM_MAX_CONNS", "")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected local sslmode default disable, got %q", c.DB.SSLMode)
	}
	if c.Ledger.SigningKeyID != "primary" {
		t.Fatalf("expected default key id, got %q", c.Ledger.SigningKeyID)
	}
	if c.Ledger.DualApprovalThreshold != 100000 {
		t.Fatalf("expected default threshold, got %v", c.Ledger.DualApprovalThreshold)
	}
	if c.Ledger.StreamMaxConns != 0 {
		t.Fatalf("expected cap disabled by default, got %d", c.Ledger.StreamMaxConns)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected default access ttl, got %v", c.Auth.AccessTokenTTL)
	}
	if c.HTTPAddr() != ":8080" {
		t.Fatalf("unexpected http addr %q", c.HTTPAddr())
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}

func TestLoad_MissingSigningSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUDIT_SIGNING_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AUDIT_SIGNING_SECRET") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoad_MissingIngestToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INGEST_TOKEN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "INGEST_TOKEN") {
		t.Fatalf("expected ingest token error, got %v", err)
	}
}

func TestLoad_BadThreshold(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DUAL_APPROVAL_THRESHOLD", "lots")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DUAL_APPROVAL_THRESHOLD") {
		t.Fatalf("expected threshold parse error, got %v", err)
	}

	t.Setenv("DUAL_APPROVAL_THRESHOLD", "-5")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DUAL_APPROVAL_THRESHOLD") {
		t.Fatalf("expected threshold range error, got %v", err)
	}
}

func TestLoad_ProductionRequiresExplicitSSLMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_ISSUER", "ledger")
	t.Setenv("JWT_AUDIENCE", "ledger-clients")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected sslmode error, got %v", err)
	}

	t.Setenv("DB_SSLMODE", "verify-full")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.IsProduction() {
		t.Fatalf("expected production env")
	}
}

func TestLoad_InvalidEnvName(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "qa")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_ENV") {
		t.Fatalf("expected env name error, got %v", err)
	}
}

func TestPostgresDSN_ContainsAllParts(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dsn := c.PostgresDSN()
	for _, part := range []string{"host=localhost", "port=5432", "user=ledger", "dbname=ledger", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn missing %q: %s", part, dsn)
		}
	}
}
