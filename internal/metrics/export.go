package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ExportOptions selects where the metrics of a run end up. Empty fields are skipped.
type ExportOptions struct {
	PushGatewayURL string
	JobName        string
	TextfilePath   string
}

// ResetRun zeroes the gauges describing a single run.
func ResetRun() {
	TrackedSeries.Set(0)
	EpisodesScanned.Set(0)
	for _, action := range []string{"monitor", "unmonitor"} {
		EpisodesPending.WithLabelValues(action).Set(0)
		EpisodesUpdated.WithLabelValues(action).Set(0)
	}
}

// RecordRun stores the outcome of a run in the LastRun* gauges.
func RecordRun(started time.Time, err error) {
	finished := time.Now()
	LastRunDuration.Set(finished.Sub(started).Seconds())
	LastRunTimestamp.Set(float64(finished.Unix()))
	if err != nil {
		LastRunSuccess.Set(0)
		return
	}
	LastRunSuccess.Set(1)
}

// Export pushes Registry to a Pushgateway and/or writes it for the node_exporter textfile collector.
// Both targets are attempted even if the first one fails.
func Export(ctx context.Context, opts ExportOptions) error {
	return export(ctx, Registry, opts)
}

func export(ctx context.Context, g prometheus.Gatherer, opts ExportOptions) error {
	var errs []error

	if opts.PushGatewayURL != "" {
		job := opts.JobName
		if job == "" {
			job = "swur"
		}
		if err := push.New(opts.PushGatewayURL, job).Gatherer(g).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics to %s: %w", opts.PushGatewayURL, err))
		}
	}

	if opts.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(opts.TextfilePath, g); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile %s: %w", opts.TextfilePath, err))
		}
	}

	return errors.Join(errs...)
}
