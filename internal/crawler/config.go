package crawler

import "time"

// Batch sizing thresholds. The engine collapses to sequential fetching when
// the upstream keeps answering 429 and only widens again once responses
// stay clean.
const (
	maxBatchSize          = 100
	reducedBatchSize      = 5
	consecutive429Ceiling = 2
	slowModePages         = 20
)

// Default pacing values.
const (
	defaultSequentialGap  = 500 * time.Millisecond
	defaultBatchSleep     = 1 * time.Second
	defaultSlowBatchSleep = 2 * time.Second
)

// Config holds crawl engine pacing configuration. The zero value is usable;
// tests shrink the sleeps so runs finish quickly.
type Config struct {
	// SequentialGap is the pause between requests when the batch size is 1.
	SequentialGap time.Duration `mapstructure:"sequential_gap"   yaml:"sequential_gap"`
	// BatchSleep is the pause between batches in normal operation.
	BatchSleep time.Duration `mapstructure:"batch_sleep"      yaml:"batch_sleep"`
	// SlowBatchSleep is the pause between batches while in slow mode.
	SlowBatchSleep time.Duration `mapstructure:"slow_batch_sleep" yaml:"slow_batch_sleep"`
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.SequentialGap <= 0 {
		c.SequentialGap = defaultSequentialGap
	}
	if c.BatchSleep <= 0 {
		c.BatchSleep = defaultBatchSleep
	}
	if c.SlowBatchSleep <= 0 {
		c.SlowBatchSleep = defaultSlowBatchSleep
	}
	return c
}
