package fetcher

import "time"

// Default configuration values.
const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxAttempts    = 10
	defaultBackoffBase    = 3 * time.Second
	defaultBackoffCap     = 60 * time.Second
	defaultJitterMin      = 2 * time.Second
	defaultJitterMax      = 4 * time.Second
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// Config holds fetch client configuration.
type Config struct {
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"    yaml:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"    yaml:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"     yaml:"backoff_cap"`
	JitterMin      time.Duration `mapstructure:"jitter_min"      yaml:"jitter_min"`
	JitterMax      time.Duration `mapstructure:"jitter_max"      yaml:"jitter_max"`
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.JitterMin <= 0 {
		c.JitterMin = defaultJitterMin
	}
	if c.JitterMax <= 0 {
		c.JitterMax = defaultJitterMax
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	return c
}
