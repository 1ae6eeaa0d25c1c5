package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, int64(10485760), cfg.MaxUploadSize)
	assert.Equal(t, 60, cfg.DefaultRPM)
	assert.Equal(t, 1440, cfg.DefaultRPD)
	assert.Equal(t, 32000, cfg.DefaultTPM)
	assert.Equal(t, 600*time.Second, cfg.MaxProcessingTime)
	assert.Equal(t, 300*time.Second, cfg.ReclaimInterval)
	assert.Equal(t, 60*time.Second, cfg.PollingTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollingCheckInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MAX_WORKERS", "10")
	t.Setenv("SCALE_CHECK_INTERVAL", "5s")
	t.Setenv("MAX_PROCESSING_TIME", "120") // bare seconds
	t.Setenv("LOG_JSON", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, 10, cfg.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.ScaleCheckInterval)
	assert.Equal(t, 120*time.Second, cfg.MaxProcessingTime)
	assert.False(t, cfg.LogJSON)
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SCALE_CHECK_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.ScaleCheckInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.ServerPort = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "min above max workers",
			mutate:  func(c *Config) { c.MinWorkers = 20; c.MaxWorkers = 5 },
			wantErr: "exceeds max workers",
		},
		{
			name:    "zero reclaim interval",
			mutate:  func(c *Config) { c.ReclaimInterval = 0 },
			wantErr: "reclaim interval",
		},
		{
			name:    "zero burst limit",
			mutate:  func(c *Config) { c.BurstRateLimit = 0 },
			wantErr: "rate limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 8000
	assert.Equal(t, "127.0.0.1:8000", cfg.ListenAddr())
}
