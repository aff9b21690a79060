package services

import (
	"context"

	"github.com/swurapp/swur/internal/models"
)

// Reconciler brings the monitored flag of every tracked episode in line with its air state
type Reconciler interface {
	// Run performs one reconciliation pass. Any upstream failure aborts the pass.
	Run(ctx context.Context) (*models.RunSummary, error)
}

// SonarrAPI is the part of the upstream gateway the reconciler depends on
type SonarrAPI interface {
	GetTags(ctx context.Context) ([]models.Tag, error)
	GetSeries(ctx context.Context) ([]models.SeriesSummary, error)
	GetEpisodes(ctx context.Context, seriesID, seasonNumber int) ([]models.UpstreamEpisode, error)
	SetEpisodesMonitored(ctx context.Context, episodeIDs []int, monitored bool) error
	SearchEpisodes(ctx context.Context, episodeIDs []int) error
}
