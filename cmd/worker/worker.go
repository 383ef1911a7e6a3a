// Package worker implements the crawl worker command.
package worker

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/sitewatch/cmd/common"
	"github.com/jonesrussell/sitewatch/internal/executor"
	"github.com/jonesrussell/sitewatch/internal/notify"
	"github.com/jonesrussell/sitewatch/internal/worker"
)

// stopTimeout bounds the drain on shutdown.
const stopTimeout = time.Minute

// Command returns the worker command.
func Command(opts *common.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the crawl worker",
		Long:  "Consumes run tasks from the queue and executes crawls until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
}

func run(ctx context.Context, opts *common.Options) error {
	cfg, log, err := opts.Bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := common.SignalContext(ctx)
	defer stop()

	store, err := common.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	queue, client, err := common.OpenQueue(cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	exec := executor.New(store, notify.FromConfig(cfg.Notify, log), log, cfg.ExecutorConfig())
	runner := worker.New(queue, exec, log, cfg.Worker)

	if err := runner.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down worker")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return runner.Stop(stopCtx)
}
