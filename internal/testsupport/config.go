// Package testsupport provides builders shared by package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"usher/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Push.HeartbeatSeconds = 1
	cfg.Upgrade.PrepareIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIToken sets the bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// WithReceiptEndpoint points receipt emission at a test collector.
func WithReceiptEndpoint(endpoint string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Receipts.Endpoint = endpoint
	}
}

// WithPushFormat overrides the SSE wire format.
func WithPushFormat(format string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Push.Format = format
	}
}
