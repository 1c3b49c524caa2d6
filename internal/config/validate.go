package config

import (
	"fmt"
	"net"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Catalog.SeedPath != "" {
		if c.Catalog.SeedPath, err = expandPath(c.Catalog.SeedPath); err != nil {
			return err
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Push.Lane = strings.ToLower(strings.TrimSpace(c.Push.Lane))
	c.Push.Format = strings.ToLower(strings.TrimSpace(c.Push.Format))
	c.Receipts.Endpoint = strings.TrimSpace(c.Receipts.Endpoint)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	if c.Paths.StateDir == "" {
		return fmt.Errorf("config: paths.state_dir is required")
	}
	if c.Paths.LogDir == "" {
		return fmt.Errorf("config: paths.log_dir is required")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			return fmt.Errorf("config: paths.api_bind %q: %w", c.Paths.APIBind, err)
		}
	}
	if c.Push.Lane == "" {
		return fmt.Errorf("config: push.lane is required")
	}
	switch c.Push.Format {
	case "binary", "json":
	default:
		return fmt.Errorf("config: push.format must be \"binary\" or \"json\", got %q", c.Push.Format)
	}
	if c.Push.MaxFrameAgeSeconds < 0 {
		return fmt.Errorf("config: push.max_frame_age_seconds must not be negative")
	}
	if c.Push.BufferFrames <= 0 {
		return fmt.Errorf("config: push.buffer_frames must be positive")
	}
	if c.Upgrade.PrepareIntervalSeconds <= 0 {
		return fmt.Errorf("config: upgrade.prepare_interval_seconds must be positive")
	}
	if c.Upgrade.DefaultEtaSeconds < 0 {
		return fmt.Errorf("config: upgrade.default_eta_seconds must not be negative")
	}
	if c.Receipts.RequestTimeout < 0 {
		return fmt.Errorf("config: receipts.request_timeout must not be negative")
	}
	return nil
}
