package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Push contains push-channel tuning for both the daemon hub and clients.
type Push struct {
	// Lane is the advertised lane name carrying access updates.
	Lane string `toml:"lane"`
	// Format selects the wire encoding for SSE lines: "binary" or "json".
	Format string `toml:"format"`
	// MaxFrameAgeSeconds is the staleness cutoff beyond which frames are dropped.
	MaxFrameAgeSeconds int `toml:"max_frame_age_seconds"`
	// HeartbeatSeconds is the SSE keepalive comment interval.
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
	// BufferFrames bounds the hub replay buffer.
	BufferFrames int `toml:"buffer_frames"`
}

// Upgrade controls upgrade orchestration policy and daemon-side preparation.
type Upgrade struct {
	// Auto applies a staged upgrade immediately when one becomes available.
	Auto bool `toml:"auto"`
	// DefaultEtaSeconds is assumed when a seeded item declares no ETA.
	DefaultEtaSeconds int `toml:"default_eta_seconds"`
	// PrepareIntervalSeconds is the preparer polling cadence.
	PrepareIntervalSeconds int `toml:"prepare_interval_seconds"`
}

// Receipts contains the write-only receipt emission settings.
type Receipts struct {
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Catalog controls daemon-side catalog seeding.
type Catalog struct {
	// SeedPath is an optional JSON file of items loaded at daemon startup.
	SeedPath string `toml:"seed_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for usher.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Push     Push     `toml:"push"`
	Upgrade  Upgrade  `toml:"upgrade"`
	Receipts Receipts `toml:"receipts"`
	Catalog  Catalog  `toml:"catalog"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/usher/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("usher.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories daemon operation requires.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the catalog database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "catalog.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "usherd.sock")
}

// LockPath returns the daemon singleton lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "usherd.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "usherd.pid")
}

// MaxFrameAge returns the staleness cutoff for push frames.
func (c *Config) MaxFrameAge() time.Duration {
	return time.Duration(c.Push.MaxFrameAgeSeconds) * time.Second
}

// Heartbeat returns the SSE keepalive interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Push.HeartbeatSeconds) * time.Second
}

// PrepareInterval returns the preparer polling cadence.
func (c *Config) PrepareInterval() time.Duration {
	return time.Duration(c.Upgrade.PrepareIntervalSeconds) * time.Second
}

// DefaultUpgradeEta returns the assumed preparation time for seeded items.
func (c *Config) DefaultUpgradeEta() time.Duration {
	return time.Duration(c.Upgrade.DefaultEtaSeconds) * time.Second
}

// ReceiptTimeout returns the receipt POST timeout.
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Receipts.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the given path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
