// Package ambientconfig holds the process-level settings that exist
// outside the versioned workflow document: server mode, logging, and
// hook execution limits. Precedence is environment variables > config
// file > defaults, loaded once at process start.
package ambientconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all ambient process configuration for a lattice binary
// (CLI, MCP server, or HTTP dashboard server).
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Hooks     HooksConfig     `toml:"hooks"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Integrity IntegrityConfig `toml:"integrity"`
}

// ServerConfig holds process identity metadata surfaced over MCP.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig controls how serve-mcp/serve-http bind.
type TransportConfig struct {
	// Mode names the MCP transport: "stdio" (default) or "http". It is
	// validated on load; the transport actually served is chosen by
	// running serve-mcp or serve-http, not by this field.
	Mode string `toml:"mode"`
	// Port is the HTTP listen port used by serve-http when --addr is unset.
	Port string `toml:"port"`
	// Host is the HTTP listen address used by serve-http when --addr is unset.
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins.
	CORSOrigins string `toml:"cors_origins"`
}

// LogConfig controls zerolog's level and format.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // "json" or "console"
}

// HooksConfig bounds the detached subprocesses TaskService spawns on
// post-write events.
type HooksConfig struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// IntegrityConfig controls the background doctor sweep a long-running
// serve-mcp/serve-http process runs against the store.
type IntegrityConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
}

// ConfigFileEnvVar names the environment override for the ambient config
// file's own location (distinct from LATTICE_ROOT, which locates the
// state directory).
const ConfigFileEnvVar = "LATTICE_CONFIG"

// Load builds a Config from defaults, then a TOML file, then environment
// variables, in that increasing-precedence order.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. LATTICE_CONFIG environment variable
//  3. ./lattice.toml (current directory)
//  4. ~/.config/lattice/lattice.toml (XDG-style)
//
// All fields are optional in the config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Name:    "lattice",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "7420",
			Host:        "127.0.0.1",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Hooks: HooksConfig{
			Enabled:        true,
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Integrity: IntegrityConfig{
			Enabled:         false,
			IntervalSeconds: 900,
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("ambientconfig: reading %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(ConfigFileEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat("lattice.toml"); err == nil {
		return "lattice.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/lattice/lattice.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) applyEnv() {
	envOverride("LATTICE_TRANSPORT", &c.Transport.Mode)
	envOverride("LATTICE_PORT", &c.Transport.Port)
	envOverride("LATTICE_HOST", &c.Transport.Host)
	envOverride("LATTICE_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("LATTICE_LOG_LEVEL", &c.Log.Level)
	envOverride("LATTICE_LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("LATTICE_HOOKS_ENABLED"); v != "" {
		c.Hooks.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LATTICE_HOOKS_TIMEOUT_SECONDS"); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			c.Hooks.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("LATTICE_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true" || v == "1"
	}
	envOverride("LATTICE_METRICS_ADDR", &c.Metrics.Addr)

	if v := os.Getenv("LATTICE_INTEGRITY_SWEEP_ENABLED"); v != "" {
		c.Integrity.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LATTICE_INTEGRITY_SWEEP_INTERVAL_SECONDS"); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			c.Integrity.IntervalSeconds = secs
		}
	}
}

// Validate checks that required fields are internally consistent.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("ambientconfig: invalid transport mode %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("ambientconfig: invalid log level %q", c.Log.Level)
	}
	return nil
}

func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
