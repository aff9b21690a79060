package client

import (
	"context"

	"github.com/swurapp/swur/internal/models"
)

// GetSeries lists every series with its tags and seasons.
func (c *client) GetSeries(ctx context.Context) ([]models.SeriesSummary, error) {
	resources, err := getJSON[seriesResource](ctx, c, "/series", nil)
	if err != nil {
		return nil, err
	}

	series := make([]models.SeriesSummary, len(resources))
	for i, r := range resources {
		series[i] = r.toModel()
	}
	c.logger.Debug().Int("count", len(series)).Msg("Fetched series")
	return series, nil
}
