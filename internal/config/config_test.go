package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("expected default session ttl 24h, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.InvitationTTL != 7*24*time.Hour {
		t.Errorf("expected default invitation ttl 168h, got %v", cfg.Auth.InvitationTTL)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("expected default memory backend, got %s", cfg.RateLimit.Backend)
	}
	if cfg.Audit.RecorderCapacity != 1000 {
		t.Errorf("expected default recorder capacity 1000, got %d", cfg.Audit.RecorderCapacity)
	}
	if !cfg.Audit.Persist {
		t.Error("expected audit persistence on by default")
	}
}

func TestLoad_YAMLOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9999
database:
  name: kpiflow_test
rate_limit:
  backend: redis
  redis_addr: localhost:6379
  auth_per_minute: 5
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Database.Name != "kpiflow_test" {
		t.Errorf("expected database kpiflow_test, got %s", cfg.Database.Name)
	}
	if cfg.RateLimit.Backend != "redis" || cfg.RateLimit.AuthPerMinute != 5 {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("KPF_SERVER_PORT", "7777")
	t.Setenv("KPF_DATABASE_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9999\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("env var should override yaml, got %d", cfg.Server.Port)
	}
	if cfg.Database.Password != "env-secret" {
		t.Errorf("expected password from env, got %q", cfg.Database.Password)
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: 0\n"},
		{"redis backend without addr", "rate_limit:\n  backend: redis\n"},
		{"unknown rate limit backend", "rate_limit:\n  backend: carrier-pigeon\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"oidc without issuer", "auth:\n  oidc:\n    enabled: true\n    client_id: x\n    client_secret: y\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Errorf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "kpiflow",
		Password: "pw", Name: "kpiflow", SSLMode: "require",
	}
	want := "host=db.internal port=5432 user=kpiflow password=pw dbname=kpiflow sslmode=require"
	if got := c.GetDSN(); got != want {
		t.Errorf("unexpected dsn: %s", got)
	}
}

func TestGetPublicURL_FallsBackToBaseURL(t *testing.T) {
	s := ServerConfig{BaseURL: "http://internal:8080"}
	if s.GetPublicURL() != "http://internal:8080" {
		t.Error("expected fallback to base_url")
	}
	s.PublicURL = "https://app.example.com"
	if s.GetPublicURL() != "https://app.example.com" {
		t.Error("expected public_url to win")
	}
}
