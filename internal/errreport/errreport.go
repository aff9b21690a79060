package errreport

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/swurapp/swur/internal/apperrors"
	"github.com/swurapp/swur/internal/models"
)

// Options configure a Reporter. An empty DSN disables reporting.
type Options struct {
	DSN         string
	Environment string
	Release     string
	BeforeSend  func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// Reporter sends failed runs to Sentry on its own hub
type Reporter struct {
	hub *sentry.Hub
}

// New creates a Reporter. With an empty DSN the returned Reporter drops everything.
func New(opts Options) (*Reporter, error) {
	if opts.DSN == "" {
		return &Reporter{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		BeforeSend:  opts.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether events are sent anywhere
func (r *Reporter) Enabled() bool {
	return r.hub != nil
}

// CaptureRunFailure reports err along with what the run got through before failing.
// summary may be nil.
func (r *Reporter) CaptureRunFailure(err error, summary *models.RunSummary) {
	if r.hub == nil || err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("transient", strconv.FormatBool(apperrors.IsTransient(err)))

		var apiErr *apperrors.ErrAPICallFailed
		var timeoutErr *apperrors.ErrRequestTimeout
		switch {
		case errors.As(err, &timeoutErr):
			scope.SetTag("endpoint", timeoutErr.Endpoint)
			scope.SetTag("kind", "timeout")
		case errors.As(err, &apiErr):
			scope.SetTag("endpoint", apiErr.Endpoint)
			scope.SetTag("status_code", strconv.Itoa(apiErr.StatusCode))
			scope.SetTag("kind", "api_call_failed")
		case errors.Is(err, &apperrors.ErrDecode{}):
			scope.SetTag("kind", "decode")
		}

		if summary != nil {
			scope.SetContext("run", sentry.Context{
				"tracked_series":   summary.TrackedSeries,
				"episodes_scanned": summary.EpisodesScanned,
				"to_monitor":       len(summary.ToMonitor),
				"to_unmonitor":     len(summary.ToUnmonitor),
				"dry_run":          summary.DryRun,
			})
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events to be delivered
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
