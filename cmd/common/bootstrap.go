// Package common holds the shared bootstrap used by every subcommand:
// configuration loading, logger construction, and dependency opening.
package common

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonesrussell/sitewatch/internal/config"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/taskqueue"
)

// Options carries the root command's persistent flags into subcommands.
type Options struct {
	ConfigFile string
	Debug      bool
}

// Bootstrap loads configuration and builds the logger.
func (o *Options) Bootstrap() (*config.Config, logger.Interface, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, nil, err
	}

	if o.Debug {
		cfg.Log.Level = logger.DebugLevel
		cfg.Log.Development = true
		cfg.HTTP.Debug = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	return cfg, log, nil
}

// OpenStore validates the config and opens the migrated Postgres store.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Interface) (*storage.PostgresStore, error) {
	if cfg.Database.URI == "" {
		return nil, fmt.Errorf("database.uri is required")
	}
	return storage.Open(ctx, cfg.Database, log)
}

// OpenQueue connects the Redis-backed task queue.
func OpenQueue(cfg *config.Config, log logger.Interface) (*taskqueue.Queue, *taskqueue.Client, error) {
	client, err := taskqueue.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return taskqueue.New(client, log), client, nil
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
