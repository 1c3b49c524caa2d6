package config

import (
	"os"
	"path/filepath"
)

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir(),
			APIBind:  "127.0.0.1:7413",
		},
		Push: Push{
			Lane:               "access",
			Format:             "binary",
			MaxFrameAgeSeconds: 300,
			HeartbeatSeconds:   15,
			BufferFrames:       512,
		},
		Upgrade: Upgrade{
			Auto:                   true,
			DefaultEtaSeconds:      30,
			PrepareIntervalSeconds: 5,
		},
		Receipts: Receipts{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && base != "" {
		return filepath.Join(base, "usher")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/state/usher"
	}
	return filepath.Join(home, ".local", "state", "usher")
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/share/usher/logs"
	}
	return filepath.Join(home, ".local", "share", "usher", "logs")
}
