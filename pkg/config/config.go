// Package config resolves rbridge settings from rbridge.toml, the
// environment and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the caller-facing knob set. The bridge core receives these
// values; it never reads files or the environment itself.
type Config struct {
	// RPath locates the engine executable.
	RPath string `toml:"r_path"`

	// Args passed to the engine; empty selects the bridge defaults.
	Args []string `toml:"args"`

	// BasePort and PortWidth control the binary-channel handshake.
	BasePort  int `toml:"base_port"`
	PortWidth int `toml:"port_width"`

	// Transient closes the binary socket after each call.
	Transient bool `toml:"transient"`

	// Echo forwards engine output during eval.
	Echo bool `toml:"echo"`

	// HistoryDB is the transcript database path; empty disables
	// recording.
	HistoryDB string `toml:"history_db"`

	// Startup is the path to an optional YAML file of engine
	// statements evaluated once after launch.
	Startup string `toml:"startup"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	return Config{
		RPath:     "R",
		BasePort:  38442,
		PortWidth: 1000,
		Echo:      true,
		HistoryDB: filepath.Join(home, "history.db"),
	}
}

// Home returns the rbridge state directory: RBRIDGE_HOME or
// ~/.rbridge.
func Home() (string, error) {
	if v := os.Getenv("RBRIDGE_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rbridge"), nil
}

// Load resolves the effective configuration: defaults, overlaid by
// rbridge.toml in the state directory (when present), overlaid by
// environment variables. A missing config file is not an error.
func Load() (Config, error) {
	home, err := Home()
	if err != nil {
		return Config{}, err
	}
	cfg := Default(home)

	path := filepath.Join(home, "rbridge.toml")
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from the state dir
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv applies environment overrides on top of file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RBRIDGE_R_PATH"); v != "" {
		cfg.RPath = v
	}
	if v := os.Getenv("RBRIDGE_DB_PATH"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("RBRIDGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BasePort = n
		}
	}
}
