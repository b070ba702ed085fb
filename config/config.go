// Package config loads the gateway's YAML configuration file. Command line
// flags and environment variables layered on top by the binaries take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Operator OperatorConfig `yaml:"operator"`
}

// GatewayConfig tunes the authentication engine.
type GatewayConfig struct {
	// MaxFailedAuthAttempts is the failure count at which a device is
	// quarantined.
	MaxFailedAuthAttempts int `yaml:"max_failed_auth_attempts"`

	// ChallengeWindowMinutes bounds how long an issued challenge nonce
	// stays answerable.
	ChallengeWindowMinutes int `yaml:"challenge_window_minutes"`

	// BaseTopic prefixes the messaging topics issued in device policies.
	BaseTopic string `yaml:"base_topic"`
}

// DatabaseConfig selects the device registry backend.
type DatabaseConfig struct {
	// DSN is a PostgreSQL connection string. Empty starts an embedded
	// PostgreSQL instance under DataDir, for development.
	DSN string `yaml:"dsn"`

	// DataDir holds embedded PostgreSQL state when DSN is empty.
	DataDir string `yaml:"data_dir"`

	// InMemory selects the in-process registry. No state survives a
	// restart; intended for tests and demos only.
	InMemory bool `yaml:"in_memory"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	EnablePprof  bool   `yaml:"enable_pprof"`
	DrainSeconds int64  `yaml:"drain_seconds"`
}

// OperatorConfig protects the provisioning and lifecycle endpoints with
// HTTP basic authentication. Both fields empty leaves them open.
type OperatorConfig struct {
	Username string `yaml:"username"`

	// PasswordHash is a bcrypt hash of the operator password.
	PasswordHash string `yaml:"password_hash"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			MaxFailedAuthAttempts:  5,
			ChallengeWindowMinutes: 5,
			BaseTopic:              "oneEdge",
		},
		Database: DatabaseConfig{
			DataDir: "./data",
		},
		Server: ServerConfig{
			ListenAddr:   "127.0.0.1:8080",
			MetricsAddr:  "127.0.0.1:8090",
			DrainSeconds: 45,
		},
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Gateway.MaxFailedAuthAttempts < 1 {
		return fmt.Errorf("gateway.max_failed_auth_attempts must be at least 1, got %d", c.Gateway.MaxFailedAuthAttempts)
	}
	if c.Gateway.ChallengeWindowMinutes < 1 {
		return fmt.Errorf("gateway.challenge_window_minutes must be at least 1, got %d", c.Gateway.ChallengeWindowMinutes)
	}
	if c.Gateway.BaseTopic == "" {
		return fmt.Errorf("gateway.base_topic must not be empty")
	}
	if (c.Operator.Username == "") != (c.Operator.PasswordHash == "") {
		return fmt.Errorf("operator.username and operator.password_hash must be set together")
	}
	return nil
}

// ChallengeWindow returns the challenge validity window as a duration.
func (c *GatewayConfig) ChallengeWindow() time.Duration {
	return time.Duration(c.ChallengeWindowMinutes) * time.Minute
}
