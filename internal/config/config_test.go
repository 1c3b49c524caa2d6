package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usher/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	if cfg.Paths.APIBind != "127.0.0.1:7413" {
		t.Errorf("api bind = %q", cfg.Paths.APIBind)
	}
	if cfg.Push.Lane != "access" || cfg.Push.Format != "binary" {
		t.Errorf("push defaults = %+v", cfg.Push)
	}
	if !cfg.Upgrade.Auto {
		t.Error("auto upgrade should default on")
	}
	if cfg.MaxFrameAge() != 5*time.Minute {
		t.Errorf("max frame age = %v", cfg.MaxFrameAge())
	}
	if cfg.Heartbeat() != 15*time.Second {
		t.Errorf("heartbeat = %v", cfg.Heartbeat())
	}
	if cfg.PrepareInterval() != 5*time.Second {
		t.Errorf("prepare interval = %v", cfg.PrepareInterval())
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("exists should be false for a missing file")
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Push.Lane != "access" {
		t.Errorf("lane = %q, want default", cfg.Push.Lane)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
api_bind = " 127.0.0.1:9000 "
api_token = "sekrit"

[push]
lane = " Access "
format = "JSON"
heartbeat_seconds = 3

[upgrade]
auto = false
default_eta_seconds = 120

[receipts]
endpoint = "https://collector.example/receipts"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("exists should be true")
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Errorf("api bind = %q", cfg.Paths.APIBind)
	}
	if cfg.Push.Lane != "access" || cfg.Push.Format != "json" {
		t.Errorf("push = %+v, normalization failed", cfg.Push)
	}
	if cfg.Heartbeat() != 3*time.Second {
		t.Errorf("heartbeat = %v", cfg.Heartbeat())
	}
	if cfg.Upgrade.Auto {
		t.Error("auto should be overridden to false")
	}
	if cfg.DefaultUpgradeEta() != 2*time.Minute {
		t.Errorf("default eta = %v", cfg.DefaultUpgradeEta())
	}
	if cfg.Receipts.Endpoint != "https://collector.example/receipts" {
		t.Errorf("receipt endpoint = %q", cfg.Receipts.Endpoint)
	}
	// Defaults survive for sections the file omits.
	if cfg.Push.BufferFrames != 512 {
		t.Errorf("buffer frames = %d", cfg.Push.BufferFrames)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad bind", func(c *config.Config) { c.Paths.APIBind = "no-port" }, "api_bind"},
		{"bad push format", func(c *config.Config) { c.Push.Format = "xml" }, "push.format"},
		{"empty lane", func(c *config.Config) { c.Push.Lane = "" }, "push.lane"},
		{"zero buffer", func(c *config.Config) { c.Push.BufferFrames = 0 }, "buffer_frames"},
		{"negative frame age", func(c *config.Config) { c.Push.MaxFrameAgeSeconds = -1 }, "max_frame_age"},
		{"zero prepare interval", func(c *config.Config) { c.Upgrade.PrepareIntervalSeconds = 0 }, "prepare_interval"},
		{"negative receipt timeout", func(c *config.Config) { c.Receipts.RequestTimeout = -5 }, "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = "/var/lib/usher"
	cfg.Paths.LogDir = "/var/log/usher"

	if got := cfg.DatabasePath(); got != "/var/lib/usher/catalog.db" {
		t.Errorf("database path = %q", got)
	}
	if got := cfg.SocketPath(); got != "/var/log/usher/usherd.sock" {
		t.Errorf("socket path = %q", got)
	}
	if got := cfg.LockPath(); got != "/var/log/usher/usherd.lock" {
		t.Errorf("lock path = %q", got)
	}
	if got := cfg.PIDPath(); got != "/var/log/usher/usherd.pid" {
		t.Errorf("pid path = %q", got)
	}
}

func TestCreateSampleLoadsCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load sample: exists=%v err=%v", exists, err)
	}
}
