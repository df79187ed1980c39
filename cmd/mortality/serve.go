package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/mortality-etl/internal/adapter/http"
	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/dashboard"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		compileFirst bool
		refresh      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compiled tables as dashboard series and metrics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
			metrics := observability.NewMetrics()
			return serve(cfg, logger, metrics, compileFirst, refresh)
		},
	}
	cmd.Flags().BoolVar(&compileFirst, "compile", false, "compile the tables before serving")
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "recompile and reload the tables at this interval (0 disables)")
	return cmd
}

func serve(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, compileFirst bool, refresh time.Duration) error {
	dash := dashboard.NewService(cfg.NationalPath(), cfg.StatePath(), cfg.ExpectedGrowthRate, logger)

	var p *pipeline.Pipeline
	if compileFirst || refresh > 0 {
		var closeSinks func()
		var err error
		p, closeSinks, err = buildPipeline(cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer closeSinks()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, dash, dash, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if compileFirst {
		recompile(ctx, p, dash, logger)
	} else if err := dash.Reload(); err != nil {
		logger.Warn("tables not loaded; run compile first", "error", err)
	}

	if refresh > 0 {
		go func() {
			ticker := time.NewTicker(refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					recompile(ctx, p, dash, logger)
				}
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// recompile runs the pipeline and reloads the dashboard. Failures keep the
// previously served tables.
func recompile(ctx context.Context, p *pipeline.Pipeline, dash *dashboard.Service, logger *slog.Logger) {
	if _, err := p.Run(ctx); err != nil {
		logger.Error("compile failed", "error", err)
		return
	}
	if err := dash.Reload(); err != nil {
		logger.Error("reload failed", "error", err)
	}
}
