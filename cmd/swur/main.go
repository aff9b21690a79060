package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/swurapp/swur/internal/client"
	"github.com/swurapp/swur/internal/config"
	"github.com/swurapp/swur/internal/errreport"
	"github.com/swurapp/swur/internal/metrics"
	"github.com/swurapp/swur/internal/models"
	"github.com/swurapp/swur/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run performs one reconciliation and returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	fs := config.NewFlagSet("swur")
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(out, err)
		return 1
	}

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	logger := config.NewLogger(cfg, out)

	reporter, err := errreport.New(errreport.Options{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "swur@" + config.Version,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Error reporting disabled")
		reporter, _ = errreport.New(errreport.Options{})
	}
	defer reporter.Flush(2 * time.Second)

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("ignore_tag_name", cfg.IgnoreTagName).
		Int("concurrency", cfg.Concurrency).
		Bool("dry_run", cfg.DryRun).
		Bool("search_on_monitor", cfg.SearchOnMonitor).
		Str("version", config.Version).
		Msg("Starting reconciliation")

	started := time.Now()
	summary, runErr := reconcile(ctx, cfg, logger)
	metrics.RecordRun(started, runErr)

	if err := metrics.Export(ctx, metrics.ExportOptions{
		PushGatewayURL: cfg.Metrics.PushGatewayURL,
		JobName:        cfg.Metrics.JobName,
		TextfilePath:   cfg.Metrics.TextfilePath,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to export metrics")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Dur("duration", time.Since(started)).Msg("Reconciliation failed")
		reporter.CaptureRunFailure(runErr, summary)
		return 1
	}

	logger.Info().
		Int("tracked_series", summary.TrackedSeries).
		Int("episodes_scanned", summary.EpisodesScanned).
		Int("monitored", len(summary.ToMonitor)).
		Int("unmonitored", len(summary.ToUnmonitor)).
		Bool("dry_run", summary.DryRun).
		Dur("duration", time.Since(started)).
		Msg("Reconciliation finished")
	return 0
}

func reconcile(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*models.RunSummary, error) {
	api, err := client.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer api.Close()

	reconciler := services.NewReconciler(api, services.OptionsFromConfig(cfg), logger)
	return reconciler.Run(ctx)
}
