package processproxy

import (
	"fmt"
	"time"
)

// Proxy defaults.
const (
	DefaultLaunchTimeout       = 30 * time.Second
	DefaultPollInterval        = 500 * time.Millisecond
	DefaultMaxPollAttempts     = 10
	DefaultShutdownWaitTime    = 5 * time.Second
	DefaultMinShutdownWaitTime = 15 * time.Second
)

// Config is the immutable configuration of a proxy.
type Config struct {
	// Endpoint is the scheduler endpoint URL, used for logging.
	Endpoint        string
	LaunchTimeout   time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int

	// ShutdownWaitTime is raised to MinShutdownWaitTime, never lowered.
	ShutdownWaitTime    time.Duration
	MinShutdownWaitTime time.Duration
}

// DefaultConfig returns the default proxy configuration.
func DefaultConfig() Config {
	return Config{
		LaunchTimeout:       DefaultLaunchTimeout,
		PollInterval:        DefaultPollInterval,
		MaxPollAttempts:     DefaultMaxPollAttempts,
		ShutdownWaitTime:    DefaultShutdownWaitTime,
		MinShutdownWaitTime: DefaultMinShutdownWaitTime,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = d.LaunchTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = d.MaxPollAttempts
	}
	if c.ShutdownWaitTime <= 0 {
		c.ShutdownWaitTime = d.ShutdownWaitTime
	}
	if c.MinShutdownWaitTime <= 0 {
		c.MinShutdownWaitTime = d.MinShutdownWaitTime
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollInterval > c.LaunchTimeout && c.LaunchTimeout > 0 {
		return fmt.Errorf("poll interval %s exceeds launch timeout %s", c.PollInterval, c.LaunchTimeout)
	}
	return nil
}

// EffectiveShutdownWaitTime returns the shutdown wait raised to the floor.
func (c Config) EffectiveShutdownWaitTime() time.Duration {
	if c.ShutdownWaitTime < c.MinShutdownWaitTime {
		return c.MinShutdownWaitTime
	}
	return c.ShutdownWaitTime
}
