package services

import (
	"context"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/swurapp/swur/internal/apperrors"
	"github.com/swurapp/swur/internal/metrics"
)

func TestReconciler_Run_EarlyFailureResetsRunGauges(t *testing.T) {
	r, _ := newTestReconciler(scenarioAPI(), Options{})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if v := promtestutil.ToFloat64(metrics.TrackedSeries); v != 1 {
		t.Fatalf("Expected 1 tracked series after first run, got %.0f", v)
	}

	failing := scenarioAPI()
	failing.seriesErr = apperrors.NewAPICallFailedError("GET", "/series", 500, "")
	r, _ = newTestReconciler(failing, Options{})
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("Expected second run to fail, got nil")
	}

	gauges := map[string]float64{
		"tracked series":    promtestutil.ToFloat64(metrics.TrackedSeries),
		"episodes scanned":  promtestutil.ToFloat64(metrics.EpisodesScanned),
		"pending monitor":   promtestutil.ToFloat64(metrics.EpisodesPending.WithLabelValues("monitor")),
		"pending unmonitor": promtestutil.ToFloat64(metrics.EpisodesPending.WithLabelValues("unmonitor")),
		"updated monitor":   promtestutil.ToFloat64(metrics.EpisodesUpdated.WithLabelValues("monitor")),
	}
	for name, v := range gauges {
		if v != 0 {
			t.Errorf("Expected %s to be 0 after a run that failed early, got %.0f", name, v)
		}
	}
}
