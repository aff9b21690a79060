package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/swurapp/swur/internal/models"
)

// GetEpisodes lists the episodes of one season of a series.
func (c *client) GetEpisodes(ctx context.Context, seriesID, seasonNumber int) ([]models.UpstreamEpisode, error) {
	query := url.Values{}
	query.Set("seriesId", strconv.Itoa(seriesID))
	query.Set("seasonNumber", strconv.Itoa(seasonNumber))

	resources, err := getJSON[episodeResource](ctx, c, "/episode", query)
	if err != nil {
		return nil, err
	}

	episodes := make([]models.UpstreamEpisode, len(resources))
	for i, r := range resources {
		episodes[i] = r.toModel()
	}
	c.logger.Debug().
		Int("series_id", seriesID).
		Int("season", seasonNumber).
		Int("count", len(episodes)).
		Msg("Fetched episodes")
	return episodes, nil
}

// SetEpisodesMonitored sets the monitored flag of all episodeIDs in one bulk call.
func (c *client) SetEpisodesMonitored(ctx context.Context, episodeIDs []int, monitored bool) error {
	resp, err := c.Call(ctx, http.MethodPut, "/episode/monitor", nil, monitorRequest{
		EpisodeIDs: episodeIDs,
		Monitored:  monitored,
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
