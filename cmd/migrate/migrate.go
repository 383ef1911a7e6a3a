// Package migrate implements the schema migration command.
package migrate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/sitewatch/cmd/common"
	"github.com/jonesrussell/sitewatch/internal/storage"
)

// Command returns the migrate command.
func Command(opts *common.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
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

	db, err := storage.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	log.Info("schema migrated")
	return nil
}
