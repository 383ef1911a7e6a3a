// Package cmd implements the sitewatch command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/sitewatch/cmd/common"
	"github.com/jonesrussell/sitewatch/cmd/migrate"
	"github.com/jonesrussell/sitewatch/cmd/report"
	"github.com/jonesrussell/sitewatch/cmd/serve"
	"github.com/jonesrussell/sitewatch/cmd/worker"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	opts = &common.Options{}

	rootCmd = &cobra.Command{
		Use:   "sitewatch",
		Short: "Website crawl and validation service",
		Long: "Crawls websites, validates their links, tracks page changes " +
			"between runs, and serves the results over an HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&opts.ConfigFile, "config", "",
		"config file (default is ./config.yaml or /etc/sitewatch/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("sitewatch version %s\n", version)
		},
	})

	rootCmd.AddCommand(serve.Command(opts))
	rootCmd.AddCommand(worker.Command(opts))
	rootCmd.AddCommand(report.Command(opts))
	rootCmd.AddCommand(migrate.Command(opts))
}
