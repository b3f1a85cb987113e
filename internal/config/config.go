// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all relay server configuration.
//
// Tags:
//
//	env:        environment variable name
//	envDefault: default value if not set
type Config struct {
	// Server basics
	Addr string `env:"RELAY_ADDR" envDefault:":3002"`

	// Authentication
	JWTSecret string `env:"RELAY_JWT_SECRET,required"`

	// Liveness
	HeartbeatInterval time.Duration `env:"RELAY_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// Handshake
	HandshakeTimeout time.Duration `env:"RELAY_HANDSHAKE_TIMEOUT" envDefault:"10s"`

	// Connection admission (per-IP and global token buckets)
	IPRate      float64 `env:"RELAY_IP_RATE" envDefault:"1.0"`
	IPBurst     int     `env:"RELAY_IP_BURST" envDefault:"10"`
	GlobalRate  float64 `env:"RELAY_GLOBAL_RATE" envDefault:"50.0"`
	GlobalBurst int     `env:"RELAY_GLOBAL_BURST" envDefault:"300"`

	// Domain event ingress. Empty disables the bridge.
	NATSURL string `env:"NATS_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and the environment.
// Priority: ENV vars > .env file > defaults.
func Load() (*Config, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("RELAY_ADDR is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("RELAY_JWT_SECRET is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("RELAY_HEARTBEAT_INTERVAL must be > 0, got %s", c.HeartbeatInterval)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("RELAY_HANDSHAKE_TIMEOUT must be > 0, got %s", c.HandshakeTimeout)
	}
	if c.IPRate <= 0 || c.GlobalRate <= 0 {
		return fmt.Errorf("admission rates must be > 0")
	}
	if c.IPBurst < 1 || c.GlobalBurst < 1 {
		return fmt.Errorf("admission bursts must be >= 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}
