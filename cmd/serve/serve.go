// Package serve implements the API server command.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/sitewatch/cmd/common"
	"github.com/jonesrussell/sitewatch/internal/api"
	"github.com/jonesrussell/sitewatch/internal/maintenance"
)

// Command returns the serve command.
func Command(opts *common.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  "Serves the runs API and schedules the background retention sweep.",
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

	sweeper := maintenance.NewSweeper(store, log, cfg.Retention)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	server := api.NewServer(cfg.HTTP, store, queue, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down api server")
		return server.Shutdown(context.Background())
	}
}
