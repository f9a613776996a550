package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DASHBOARD_CONFIG", "API_BASE_URL", "API_NICKNAME", "API_PASSWORD",
		"API_TOTP_SECRET", "REDIS_ADDR", "REDIS_PASSWORD", "SQLITE_PATH",
		"HTTP_ADDR", "METRICS_ADDR", "SESSION_POLL_CRON", "EXPORT_DIR",
		"LOG_LEVEL", "API_TIMEOUT", "API_RPS", "REDIS_DB",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session.PollCron != "*/30 * * * * *" || cfg.API.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("redis should default to disabled, got %q", cfg.Redis.Addr)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "nickname") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	yaml := `
api:
  base_url: https://example.test/api/v1
  nickname: trader
  password: secret
  timeout: 3s
redis:
  addr: localhost:6379
stream:
  history_depth: 100
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DASHBOARD_CONFIG", path)
	t.Setenv("API_NICKNAME", "override")
	t.Setenv("API_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "https://example.test/api/v1" || cfg.API.Timeout != 3*time.Second {
		t.Fatalf("yaml not applied: %+v", cfg.API)
	}
	if cfg.API.Nickname != "override" || cfg.API.RequestsPerSecond != 2.5 {
		t.Fatalf("env not applied: %+v", cfg.API)
	}
	if cfg.Stream.HistoryDepth != 100 || cfg.Stream.Buffer != 256 {
		t.Fatalf("stream = %+v", cfg.Stream)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatal(err)
	}
}

func TestBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected API_TIMEOUT parse error")
	}

	clearEnv(t)
	t.Setenv("API_NICKNAME", "a")
	t.Setenv("API_PASSWORD", "b")
	t.Setenv("SESSION_POLL_CRON", "every now and then")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "poll_cron") {
		t.Fatalf("expected cron error, got %v", err)
	}
}
