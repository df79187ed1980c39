package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"
)

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Fetch every source once and write the national and state tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
			metrics := observability.NewMetrics()

			p, closeSinks, err := buildPipeline(cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer closeSinks()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := p.Run(ctx)
			if err != nil {
				logger.Error("compile failed", "error", err)
				return err
			}
			logger.Info("compile complete",
				"national", cfg.NationalPath(), "state", cfg.StatePath(), "run_id", summary.RunID)
			return summary.Print(cmd.OutOrStdout())
		},
	}
}
