package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAY_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3002", cfg.Addr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_JWT_SECRET", "s3cret")
	t.Setenv("RELAY_ADDR", ":9000")
	t.Setenv("RELAY_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "pretty")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("RELAY_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Addr:              ":3002",
			JWTSecret:         "s3cret",
			HeartbeatInterval: 30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			IPRate:            1,
			IPBurst:           10,
			GlobalRate:        50,
			GlobalBurst:       300,
			LogLevel:          "info",
			LogFormat:         "json",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"valid", func(*Config) {}, true},
		{"empty addr", func(c *Config) { c.Addr = "" }, false},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, false},
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -time.Second }, false},
		{"zero ip rate", func(c *Config) { c.IPRate = 0 }, false},
		{"zero global burst", func(c *Config) { c.GlobalBurst = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
