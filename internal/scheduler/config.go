package scheduler

import "time"

// Config controls the tick cadence, per-job deadlines, and the wall-clock
// hours each periodic job fires at.
type Config struct {
	TickInterval time.Duration
	JobTimeout   time.Duration

	// MaxJobAttempts caps how many ticks a failing job is retried within
	// one period before the period is given up.
	MaxJobAttempts int

	InvoiceHour int
	DigestHour  int
	AlertHour   int

	// EnabledJobs empty means all jobs run (monolith mode).
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Minute,
		JobTimeout:     5 * time.Minute,
		MaxJobAttempts: 3,
		InvoiceHour:    2,
		DigestHour:     8,
		AlertHour:      9,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.MaxJobAttempts <= 0 {
		c.MaxJobAttempts = defaults.MaxJobAttempts
	}
	if c.InvoiceHour <= 0 {
		c.InvoiceHour = defaults.InvoiceHour
	}
	if c.DigestHour <= 0 {
		c.DigestHour = defaults.DigestHour
	}
	if c.AlertHour <= 0 {
		c.AlertHour = defaults.AlertHour
	}
	return c
}
