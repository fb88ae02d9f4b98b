// Package worker provides the bounded pool that executes queued tasks.
package worker

import (
	"errors"
	"time"
)

// Config holds worker pool configuration.
type Config struct {
	// PoolSize is the number of tasks processed concurrently.
	PoolSize int
	// TaskTimeout bounds one task execution end to end.
	TaskTimeout time.Duration
	// DrainTimeout bounds graceful shutdown.
	DrainTimeout time.Duration
}

// Default configuration values.
const (
	DefaultPoolSize     = 10
	DefaultTaskTimeout  = 5 * time.Minute
	DefaultDrainTimeout = 30 * time.Second

	maxPoolSize = 256
)

// SetDefaults applies defaults to unset fields.
func (c *Config) SetDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return errors.New("pool size must be at least 1")
	}
	if c.PoolSize > maxPoolSize {
		return errors.New("pool size exceeds maximum")
	}
	if c.TaskTimeout <= 0 {
		return errors.New("task timeout must be positive")
	}
	return nil
}
