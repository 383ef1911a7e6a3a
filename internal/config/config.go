// Package config loads application configuration from a YAML file and
// SITEWATCH_-prefixed environment variables, composing the per-component
// config structs.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonesrussell/sitewatch/internal/api"
	"github.com/jonesrussell/sitewatch/internal/crawler"
	"github.com/jonesrussell/sitewatch/internal/executor"
	"github.com/jonesrussell/sitewatch/internal/fetcher"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/maintenance"
	"github.com/jonesrussell/sitewatch/internal/notify"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/taskqueue"
	"github.com/jonesrussell/sitewatch/internal/validator"
	"github.com/jonesrussell/sitewatch/internal/worker"
)

// envPrefix namespaces environment overrides, e.g. SITEWATCH_DATABASE_URI.
const envPrefix = "SITEWATCH"

// AppConfig identifies the running service.
type AppConfig struct {
	Name        string `mapstructure:"name"        yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Config is the full application configuration.
type Config struct {
	App       AppConfig          `mapstructure:"app"       yaml:"app"`
	Log       logger.Config      `mapstructure:"log"       yaml:"log"`
	HTTP      api.Config         `mapstructure:"http"      yaml:"http"`
	Database  storage.Config     `mapstructure:"database"  yaml:"database"`
	Redis     taskqueue.Config   `mapstructure:"redis"     yaml:"redis"`
	Fetcher   fetcher.Config     `mapstructure:"fetcher"   yaml:"fetcher"`
	Crawler   crawler.Config     `mapstructure:"crawler"   yaml:"crawler"`
	Validator validator.Config   `mapstructure:"validator" yaml:"validator"`
	Worker    worker.Config      `mapstructure:"worker"    yaml:"worker"`
	Notify    notify.Config      `mapstructure:"notify"    yaml:"notify"`
	Retention maintenance.Config `mapstructure:"retention" yaml:"retention"`
}

// ExecutorConfig bundles the phase configs the way the executor wants them.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		Fetcher:   c.Fetcher,
		Crawler:   c.Crawler,
		Validator: c.Validator,
	}
}

// Validate checks the settings that have no workable default.
func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return fmt.Errorf("database.uri is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}

// Load reads configuration from the given file (optional), a .env file when
// present, and the environment.
func Load(configFile string) (*Config, error) {
	// Missing .env is fine; it only exists in development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sitewatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.SetDefaults()

	return &cfg, nil
}

// setDefaults registers every key so env-only deployments work without a
// config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sitewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")

	v.SetDefault("http.host", "")
	v.SetDefault("http.port", 8060)

	v.SetDefault("database.uri", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sitewatch")

	v.SetDefault("worker.concurrency", 2)

	v.SetDefault("retention.retention_days", 90)
	v.SetDefault("retention.schedule", "0 3 * * *")

	v.SetDefault("validator.fetch_titles", true)
}
