// Package worker consumes run tasks from the queue and drives them through
// the executor with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/sitewatch/internal/executor"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/taskqueue"
)

// State represents the runner lifecycle.
type State int32

const (
	// StateStopped means the runner is not consuming.
	StateStopped State = iota

	// StateRunning means the runner is consuming tasks.
	StateRunning

	// StateDraining means the runner is finishing in-flight runs.
	StateDraining
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Default configuration values.
const (
	defaultConcurrency  = 2
	defaultDrainTimeout = 30 * time.Second
	readBatchSize       = 1
)

// Config holds worker configuration.
type Config struct {
	// Concurrency is how many runs execute in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Name identifies this consumer within the group. Defaults to
	// hostname plus a random suffix.
	Name string `mapstructure:"name" yaml:"name"`
	// DrainTimeout bounds the graceful stop.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "worker"
		}
		c.Name = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return c
}

// Runner pulls run tasks off the queue and executes them.
type Runner struct {
	queue *taskqueue.Queue
	exec  *executor.Executor
	log   logger.Interface
	cfg   Config

	state  atomic.Int32
	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	runsProcessed atomic.Int64
	runsSucceeded atomic.Int64
	runsFailed    atomic.Int64
}

// New creates a runner.
func New(queue *taskqueue.Queue, exec *executor.Executor, log logger.Interface, cfg Config) *Runner {
	cfg = cfg.WithDefaults()

	return &Runner{
		queue:  queue,
		exec:   exec,
		log:    log.WithComponent("worker"),
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.Concurrency),
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming. It returns once the consume loop is launched.
func (r *Runner) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return errors.New("runner is already running")
	}

	if err := r.queue.EnsureGroup(ctx); err != nil {
		r.state.Store(int32(StateStopped))
		return err
	}

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.Info("worker started",
		"consumer", r.cfg.Name,
		"concurrency", r.cfg.Concurrency,
	)

	return nil
}

// Stop drains in-flight runs and stops consuming.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return errors.New("runner is not running")
	}

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("worker stopped gracefully")
	case <-ctx.Done():
		r.log.Warn("worker stop interrupted")
	case <-time.After(r.cfg.DrainTimeout):
		r.log.Warn("worker drain timeout exceeded")
	}

	r.state.Store(int32(StateStopped))
	return nil
}

// State returns the runner's lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// loop reads tasks and hands them to execution slots.
func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		tasks, err := r.queue.Read(ctx, r.cfg.Name, readBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("read run tasks", "error", err)
			if sleepErr := sleepContext(ctx, time.Second); sleepErr != nil {
				return
			}
			continue
		}

		for _, task := range tasks {
			select {
			case r.sem <- struct{}{}:
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}

			r.wg.Add(1)
			go r.handle(ctx, task)
		}
	}
}

// handle executes one run task, reporting progress and polling cancellation
// through the queue.
func (r *Runner) handle(ctx context.Context, task taskqueue.ConsumedTask) {
	defer func() {
		<-r.sem
		r.wg.Done()
	}()

	r.log.Info("run task picked up", "run_id", task.RunID, "task_id", task.TaskID)

	hooks := executor.Hooks{
		Progress: func(ctx context.Context, percent int, message string) {
			if err := r.queue.ReportProgress(ctx, task.RunID, percent, message); err != nil {
				r.log.Warn("report progress", "run_id", task.RunID, "error", err)
			}
		},
		CancelRequested: func(ctx context.Context) bool {
			return r.queue.CancelRequested(ctx, task.RunID)
		},
	}

	err := r.exec.Execute(ctx, task.RunID, hooks)

	r.runsProcessed.Add(1)
	if err != nil {
		r.runsFailed.Add(1)
		r.log.Error("run failed", "run_id", task.RunID, "error", err)
	} else {
		r.runsSucceeded.Add(1)
		r.queue.ClearSignals(ctx, task.RunID)
	}

	// Ack regardless of outcome: the run row records the failure, and
	// redelivery would only repeat it.
	if ackErr := r.queue.Ack(ctx, task); ackErr != nil {
		r.log.Warn("ack run task", "task_id", task.TaskID, "error", ackErr)
	}
}

// Stats is a snapshot of the runner's counters.
type Stats struct {
	State         State  `json:"-"`
	StateName     string `json:"state"`
	Concurrency   int    `json:"concurrency"`
	RunsProcessed int64  `json:"runs_processed"`
	RunsSucceeded int64  `json:"runs_succeeded"`
	RunsFailed    int64  `json:"runs_failed"`
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	state := r.State()
	return Stats{
		State:         state,
		StateName:     state.String(),
		Concurrency:   r.cfg.Concurrency,
		RunsProcessed: r.runsProcessed.Load(),
		RunsSucceeded: r.runsSucceeded.Load(),
		RunsFailed:    r.runsFailed.Load(),
	}
}

// sleepContext sleeps for d or returns early with the context's error.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
