// Package config loads, validates, and normalizes the TOML configuration
// shared by the usher CLI and the usherd daemon.
package config
