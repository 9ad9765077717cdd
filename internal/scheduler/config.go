package scheduler

import (
	"time"

	"github.com/smallbiznis/promosync/internal/config"
)

// Config controls scheduler intervals and job timeouts.
type Config struct {
	RunInterval      time.Duration
	JobTimeout       time.Duration
	ReprocessEnabled bool
	ReprocessEvery   time.Duration
	ReprocessTimeout time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      5 * time.Minute,
		JobTimeout:       2 * time.Minute,
		ReprocessEvery:   24 * time.Hour,
		ReprocessTimeout: 30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:      cfg.Scheduler.RunInterval,
		ReprocessEnabled: cfg.Scheduler.ReprocessEnabled,
		ReprocessEvery:   cfg.Scheduler.ReprocessEvery,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ReprocessEvery <= 0 {
		c.ReprocessEvery = defaults.ReprocessEvery
	}
	if c.ReprocessTimeout <= 0 {
		c.ReprocessTimeout = defaults.ReprocessTimeout
	}
	return c
}
