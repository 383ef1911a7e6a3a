// Package maintenance runs the background retention sweep that deletes runs
// older than the configured window, cascading to their pages, validations,
// graphs, sources, and change reports.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/storage"
)

// Defaults.
const (
	defaultRetentionDays = 90
	defaultSchedule      = "0 3 * * *" // daily at 03:00
	sweepTimeout         = 10 * time.Minute
)

// Config holds retention settings.
type Config struct {
	// RetentionDays is how long finished runs are kept. Zero means the
	// default; negative disables the sweep entirely.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	// Schedule is the cron expression for the sweep.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// Sweeper deletes expired runs on a cron schedule.
type Sweeper struct {
	store storage.Store
	log   logger.Interface
	cfg   Config
	cron  *cron.Cron
}

// NewSweeper creates a sweeper. Call Start to schedule it.
func NewSweeper(store storage.Store, log logger.Interface, cfg Config) *Sweeper {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}

	return &Sweeper{
		store: store,
		log:   log.WithComponent("maintenance"),
		cfg:   cfg,
		cron:  cron.New(),
	}
}

// Start schedules the sweep. Disabled when retention is negative.
func (s *Sweeper) Start() error {
	if s.cfg.RetentionDays < 0 {
		s.log.Info("retention sweep disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("retention sweep scheduled",
		"schedule", s.cfg.Schedule,
		"retention_days", s.cfg.RetentionDays,
	)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if err := s.Sweep(ctx); err != nil {
		s.log.Error("retention sweep failed", "error", err)
	}
}

// Sweep deletes runs older than the retention window. Exposed so operators
// can trigger it directly.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.store.DeleteRunsOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		s.log.Info("retention sweep removed runs", "deleted", deleted, "cutoff", cutoff)
	} else {
		s.log.Debug("retention sweep found nothing to remove", "cutoff", cutoff)
	}

	return nil
}
