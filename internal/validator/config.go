package validator

import "time"

// Default configuration values.
const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultRequestTimeout = 10 * time.Second
	defaultBatchSize      = 3
	defaultRetryBatchSize = 2
	defaultMaxRetryRounds = 10
	defaultRetryDelayBase = 2 * time.Second
	defaultRetryDelayCap  = 15 * time.Second
	defaultCheckJitterMin = 100 * time.Millisecond
	defaultCheckJitterMax = 500 * time.Millisecond
	defaultBatchSleepMin  = 2 * time.Second
	defaultBatchSleepMax  = 4 * time.Second
)

// Config holds link validator configuration.
type Config struct {
	UserAgent      string        `mapstructure:"user_agent"       yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	BatchSize      int           `mapstructure:"batch_size"       yaml:"batch_size"`
	RetryBatchSize int           `mapstructure:"retry_batch_size" yaml:"retry_batch_size"`
	MaxRetryRounds int           `mapstructure:"max_retry_rounds" yaml:"max_retry_rounds"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base" yaml:"retry_delay_base"`
	RetryDelayCap  time.Duration `mapstructure:"retry_delay_cap"  yaml:"retry_delay_cap"`
	CheckJitterMin time.Duration `mapstructure:"check_jitter_min" yaml:"check_jitter_min"`
	CheckJitterMax time.Duration `mapstructure:"check_jitter_max" yaml:"check_jitter_max"`
	BatchSleepMin  time.Duration `mapstructure:"batch_sleep_min"  yaml:"batch_sleep_min"`
	BatchSleepMax  time.Duration `mapstructure:"batch_sleep_max"  yaml:"batch_sleep_max"`
	// FetchTitles enables the follow-up GET that reads the title of pages
	// whose HEAD came back healthy.
	FetchTitles bool `mapstructure:"fetch_titles" yaml:"fetch_titles"`
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.RetryBatchSize <= 0 {
		c.RetryBatchSize = defaultRetryBatchSize
	}
	if c.MaxRetryRounds <= 0 {
		c.MaxRetryRounds = defaultMaxRetryRounds
	}
	if c.RetryDelayBase <= 0 {
		c.RetryDelayBase = defaultRetryDelayBase
	}
	if c.RetryDelayCap <= 0 {
		c.RetryDelayCap = defaultRetryDelayCap
	}
	if c.CheckJitterMin <= 0 {
		c.CheckJitterMin = defaultCheckJitterMin
	}
	if c.CheckJitterMax < c.CheckJitterMin {
		c.CheckJitterMax = defaultCheckJitterMax
	}
	if c.CheckJitterMax < c.CheckJitterMin {
		c.CheckJitterMax = c.CheckJitterMin
	}
	if c.BatchSleepMin <= 0 {
		c.BatchSleepMin = defaultBatchSleepMin
	}
	if c.BatchSleepMax < c.BatchSleepMin {
		c.BatchSleepMax = defaultBatchSleepMax
	}
	if c.BatchSleepMax < c.BatchSleepMin {
		c.BatchSleepMax = c.BatchSleepMin
	}
	return c
}
