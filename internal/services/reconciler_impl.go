package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swurapp/swur/internal/config"
	"github.com/swurapp/swur/internal/metrics"
	"github.com/swurapp/swur/internal/models"
)

// Options tune a DefaultReconciler
type Options struct {
	IgnoreTagName   string
	Concurrency     int  // parallel episode fetches, values below 1 mean sequential
	DryRun          bool // log the batches instead of sending them
	SearchOnMonitor bool // request an EpisodeSearch for newly monitored episodes
	Now             func() time.Time
}

// OptionsFromConfig maps the run configuration onto reconciler options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IgnoreTagName:   cfg.IgnoreTagName,
		Concurrency:     cfg.Concurrency,
		DryRun:          cfg.DryRun,
		SearchOnMonitor: cfg.SearchOnMonitor,
	}
}

// DefaultReconciler implements Reconciler against a SonarrAPI
type DefaultReconciler struct {
	api    SonarrAPI
	opts   Options
	logger zerolog.Logger
}

// NewReconciler creates a reconciler. A zero IgnoreTagName falls back to the default tag,
// a nil Now to time.Now.
func NewReconciler(api SonarrAPI, opts Options, logger zerolog.Logger) *DefaultReconciler {
	if opts.IgnoreTagName == "" {
		opts.IgnoreTagName = config.DefaultIgnoreTagName
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DefaultReconciler{
		api:    api,
		opts:   opts,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

func (r *DefaultReconciler) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{DryRun: r.opts.DryRun}
	metrics.ResetRun()

	ignoreTagID, err := r.resolveIgnoreTag(ctx)
	if err != nil {
		return summary, err
	}
	summary.IgnoreTagID = ignoreTagID

	tracked, err := r.selectTrackedSeries(ctx, ignoreTagID)
	if err != nil {
		return summary, err
	}
	summary.TrackedSeries = len(tracked)
	metrics.TrackedSeries.Set(float64(len(tracked)))

	episodes, err := r.fetchEpisodes(ctx, tracked)
	if err != nil {
		return summary, err
	}
	summary.EpisodesScanned = len(episodes)
	metrics.EpisodesScanned.Set(float64(len(episodes)))

	summary.ToMonitor, summary.ToUnmonitor = models.ClassifyEpisodes(episodes)
	metrics.EpisodesPending.WithLabelValues(models.ActionMonitor.String()).Set(float64(len(summary.ToMonitor)))
	metrics.EpisodesPending.WithLabelValues(models.ActionUnmonitor.String()).Set(float64(len(summary.ToUnmonitor)))

	if !summary.HasChanges() {
		r.logger.Info().Msg("No new episodes to un/monitor")
		return summary, nil
	}

	if r.opts.DryRun {
		r.logger.Info().
			Ints("monitor", summary.ToMonitor).
			Ints("unmonitor", summary.ToUnmonitor).
			Msg("Dry run, not updating episodes")
		return summary, nil
	}

	if err := r.apply(ctx, summary.ToMonitor, models.ActionMonitor); err != nil {
		return summary, err
	}
	if err := r.apply(ctx, summary.ToUnmonitor, models.ActionUnmonitor); err != nil {
		return summary, err
	}

	if r.opts.SearchOnMonitor && len(summary.ToMonitor) > 0 {
		if err := r.api.SearchEpisodes(ctx, summary.ToMonitor); err != nil {
			return summary, fmt.Errorf("search monitored episodes: %w", err)
		}
		summary.Searched = summary.ToMonitor
		r.logger.Info().Ints("episodes", summary.ToMonitor).Msg("Requested search for newly monitored episodes")
	}

	return summary, nil
}

// resolveIgnoreTag returns the id of the ignore tag, or nil when it does not exist upstream.
func (r *DefaultReconciler) resolveIgnoreTag(ctx context.Context) (*int, error) {
	tags, err := r.api.GetTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve ignore tag: %w", err)
	}

	id := models.FindTagID(tags, r.opts.IgnoreTagName)
	if id == nil {
		r.logger.Info().Str("tag", r.opts.IgnoreTagName).Msg("Could not find a tag with this label. Tracking all series.")
		return nil, nil
	}
	r.logger.Info().Str("tag", r.opts.IgnoreTagName).Int("tag_id", *id).Msg("Ignore tag found")
	return id, nil
}

func (r *DefaultReconciler) selectTrackedSeries(ctx context.Context, ignoreTagID *int) ([]models.TrackedSeries, error) {
	series, err := r.api.GetSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	tracked := models.SelectTrackedSeries(series, ignoreTagID)
	r.logger.Info().Int("series", len(series)).Int("tracked", len(tracked)).Msg("Selected tracked series")
	for _, s := range tracked {
		r.logger.Debug().Int("series_id", s.ID).Str("title", s.Title).Int("season", s.LatestSeason).Msg("Tracking series")
	}
	return tracked, nil
}

// fetchEpisodes loads the latest-season episodes of every tracked series and resolves
// their air state. The result keeps tracked-series order whatever the concurrency.
func (r *DefaultReconciler) fetchEpisodes(ctx context.Context, tracked []models.TrackedSeries) ([]models.Episode, error) {
	perSeries := make([][]models.Episode, len(tracked))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, s := range tracked {
		g.Go(func() error {
			upstream, err := r.api.GetEpisodes(gctx, s.ID, s.LatestSeason)
			if err != nil {
				return fmt.Errorf("list episodes of series %d season %d: %w", s.ID, s.LatestSeason, err)
			}

			now := r.opts.Now()
			episodes := make([]models.Episode, 0, len(upstream))
			for _, up := range upstream {
				if ep, ok := models.NewEpisode(up, now); ok {
					episodes = append(episodes, ep)
				}
			}
			perSeries[i] = episodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Episode
	for _, episodes := range perSeries {
		all = append(all, episodes...)
	}
	return all, nil
}

// apply sends one bulk update for ids. An empty batch is skipped.
func (r *DefaultReconciler) apply(ctx context.Context, ids []int, action models.MonitorAction) error {
	if len(ids) == 0 {
		return nil
	}

	monitored := action == models.ActionMonitor
	if err := r.api.SetEpisodesMonitored(ctx, ids, monitored); err != nil {
		return fmt.Errorf("%s %d episodes: %w", action, len(ids), err)
	}

	metrics.EpisodesUpdated.WithLabelValues(action.String()).Set(float64(len(ids)))
	r.logger.Info().Str("action", action.String()).Ints("episodes", ids).Msgf("Updated %d episodes", len(ids))
	return nil
}
