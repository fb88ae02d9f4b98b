package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadGen-sub001/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  host: localhost
  user: leadgen
  dbname: leadgen
services:
  apollo:
    base_url: https://apollo.example.com
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "leadgen", cfg.Redis.Prefix)
	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultPoolSize, cfg.Worker.PoolSize)
	assert.Equal(t, config.DefaultCleanupInterval, cfg.Worker.CleanupInterval)
	assert.Equal(t, config.DefaultMaxRecords, cfg.Campaign.MaxRecords)

	apollo := cfg.Services["apollo"]
	assert.Equal(t, "https://apollo.example.com", apollo.BaseURL)
	assert.Equal(t, config.DefaultServiceTimeout, apollo.Timeout)
	assert.Equal(t, config.DefaultRateLimitMax, apollo.RateLimit.MaxRequests)
	assert.Equal(t, config.DefaultRateLimitPeriod, apollo.RateLimit.Period)
	assert.Equal(t, config.DefaultFailureThreshold, apollo.Breaker.FailureThreshold)
	assert.Equal(t, config.DefaultBreakerCooldown, apollo.Breaker.Cooldown)
}

func TestLoadExplicitServiceSettings(t *testing.T) {
	path := writeConfigFile(t, `
database:
  host: localhost
  user: leadgen
  dbname: leadgen
worker:
  pool_size: 4
  cleanup_interval: 1m
services:
  openai:
    base_url: https://api.openai.example.com
    rate_limit:
      max_requests: 20
      period: 30s
    breaker:
      failure_threshold: 3
      cooldown: 2m
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.PoolSize)
	assert.Equal(t, time.Minute, cfg.Worker.CleanupInterval)

	openai := cfg.Services["openai"]
	assert.Equal(t, 20, openai.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, openai.RateLimit.Period)
	assert.Equal(t, 3, openai.Breaker.FailureThreshold)
	assert.Equal(t, 2*time.Minute, openai.Breaker.Cooldown)
	// Omitted fields still take defaults.
	assert.Equal(t, config.DefaultFailureWindow, openai.Breaker.FailureWindow)
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	path := writeConfigFile(t, `
redis:
  address: localhost:6379
`)

	cfg, err := config.Load(path)

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database host is required")
}

func TestValidateRejectsBadServiceSettings(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Database.Host = "localhost"
	cfg.Database.User = "leadgen"
	cfg.Database.DBName = "leadgen"
	cfg.Services["apollo"] = config.ServiceConfig{
		RateLimit: config.RateLimitConfig{MaxRequests: -1, Period: time.Minute},
		Breaker:   config.BreakerConfig{FailureThreshold: 5},
	}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_requests must be positive")
}
