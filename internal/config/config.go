// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ekemper/leadGen-sub001/internal/logger"
)

// Config is the root application configuration.
type Config struct {
	Logging  logger.Config  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	// Services holds per-service rate-limit and breaker settings keyed by
	// service name (apollo, millionverifier, perplexity, openai, instantly).
	Services map[string]ServiceConfig `mapstructure:"services"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Prefix namespaces all keys and streams written by this deployment.
	Prefix string `mapstructure:"prefix"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Debug        bool          `mapstructure:"debug"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// CleanupInterval is the cron-driven cadence of CLEANUP task enqueues.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CampaignConfig holds campaign validation bounds.
type CampaignConfig struct {
	// MaxRecords is the upper bound on the requested lead count per campaign.
	MaxRecords int `mapstructure:"max_records"`
	// AllowedSourceHosts whitelists hosts a campaign source URL may point at.
	AllowedSourceHosts []string `mapstructure:"allowed_source_hosts"`
}

// ServiceConfig holds per-third-party-service settings.
type ServiceConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	APIKey    string          `mapstructure:"api_key"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

// RateLimitConfig configures the fixed-window limiter for one service.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Period      time.Duration `mapstructure:"period"`
}

// BreakerConfig configures the circuit breaker for one service.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// Default values applied when the config file omits them.
const (
	DefaultServerPort      = 8080
	DefaultPoolSize        = 10
	DefaultJobTimeout      = 5 * time.Minute
	DefaultDrainTimeout    = 30 * time.Second
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxRecords      = 1000
	DefaultServiceTimeout  = 30 * time.Second

	DefaultRateLimitMax     = 60
	DefaultRateLimitPeriod  = time.Minute
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 5 * time.Minute
	DefaultBreakerCooldown  = 5 * time.Minute
	DefaultHTTPReadTimeout  = 15 * time.Second
	DefaultHTTPWriteTimeout = 15 * time.Second
)

// Load reads configuration from the given file (optional) plus LEADGEN_*
// environment variables and applies defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/leadgen")
	}

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine; env and defaults still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults fills unset fields with defaults.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()

	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "leadgen"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultHTTPReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultHTTPWriteTimeout
	}
	if c.Worker.PoolSize == 0 {
		c.Worker.PoolSize = DefaultPoolSize
	}
	if c.Worker.JobTimeout == 0 {
		c.Worker.JobTimeout = DefaultJobTimeout
	}
	if c.Worker.DrainTimeout == 0 {
		c.Worker.DrainTimeout = DefaultDrainTimeout
	}
	if c.Worker.CleanupInterval == 0 {
		c.Worker.CleanupInterval = DefaultCleanupInterval
	}
	if c.Campaign.MaxRecords == 0 {
		c.Campaign.MaxRecords = DefaultMaxRecords
	}

	if c.Services == nil {
		c.Services = make(map[string]ServiceConfig)
	}
	for name, svc := range c.Services {
		if svc.Timeout == 0 {
			svc.Timeout = DefaultServiceTimeout
		}
		if svc.RateLimit.MaxRequests == 0 {
			svc.RateLimit.MaxRequests = DefaultRateLimitMax
		}
		if svc.RateLimit.Period == 0 {
			svc.RateLimit.Period = DefaultRateLimitPeriod
		}
		if svc.Breaker.FailureThreshold == 0 {
			svc.Breaker.FailureThreshold = DefaultFailureThreshold
		}
		if svc.Breaker.FailureWindow == 0 {
			svc.Breaker.FailureWindow = DefaultFailureWindow
		}
		if svc.Breaker.Cooldown == 0 {
			svc.Breaker.Cooldown = DefaultBreakerCooldown
		}
		c.Services[name] = svc
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Database.User == "" {
		return errors.New("database user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database name is required")
	}
	if c.Campaign.MaxRecords < 1 {
		return fmt.Errorf("campaign max_records must be positive, got %d", c.Campaign.MaxRecords)
	}
	for name, svc := range c.Services {
		if svc.RateLimit.MaxRequests < 1 {
			return fmt.Errorf("service %s: rate limit max_requests must be positive", name)
		}
		if svc.RateLimit.Period <= 0 {
			return fmt.Errorf("service %s: rate limit period must be positive", name)
		}
		if svc.Breaker.FailureThreshold < 1 {
			return fmt.Errorf("service %s: breaker failure_threshold must be positive", name)
		}
	}
	return nil
}
