package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	disabledLogger := zerolog.New(nil)

	cfg, resolved, err := Load(&disabledLogger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("unexpected path %q", resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.StaleTime != 30*time.Second || cfg.PageSize != 25 || cfg.QueryRetry != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DevServer.Addr != ":8080" {
		t.Fatalf("unexpected devserver addr %q", cfg.DevServer.Addr)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "base_url: https://api.example.test\n" +
		"page_size: 50\n" +
		"stale_time: 1m\n" +
		"devserver:\n" +
		"  addr: \":9090\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CALLDESK_IDENTITY", "agent-7")
	t.Setenv("CALLDESK_DEVSERVER_CALL_COST", "3")

	disabledLogger := zerolog.New(nil)
	cfg, _, err := Load(&disabledLogger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://api.example.test" || cfg.PageSize != 50 || cfg.StaleTime != time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DevServer.Addr != ":9090" {
		t.Fatalf("nested file value not applied: %q", cfg.DevServer.Addr)
	}
	if cfg.Identity != "agent-7" || cfg.DevServer.CallCost != 3 {
		t.Fatalf("env values not applied: identity=%q cost=%d", cfg.Identity, cfg.DevServer.CallCost)
	}
	if cfg.DefaultRegion != "US" {
		t.Fatalf("default lost: %q", cfg.DefaultRegion)
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Identity: "ops", DevServer: DevServer{Addr: ":7000"}})

	if cfg.Identity != "ops" || cfg.DevServer.Addr != ":7000" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.BaseURL != Default().BaseURL || cfg.DevServer.JWTSecret != Default().DevServer.JWTSecret {
		t.Fatalf("zero values overwrote defaults")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.SessionCookie = "sess-42"
	cfg.DevServer.DialsPerMinute = 3

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	disabledLogger := zerolog.New(nil)
	loaded, _, err := Load(&disabledLogger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SessionCookie != "sess-42" || loaded.DevServer.DialsPerMinute != 3 {
		t.Fatalf("saved values not loaded: cookie=%q dials=%d", loaded.SessionCookie, loaded.DevServer.DialsPerMinute)
	}
	if loaded.DevServer.StreamPoll != time.Second {
		t.Fatalf("unexpected stream poll %v", loaded.DevServer.StreamPoll)
	}
}
