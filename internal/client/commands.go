package client

import (
	"context"
	"net/http"
)

// EpisodeSearchCommand is the upstream command that searches for specific episodes.
const EpisodeSearchCommand = "EpisodeSearch"

// SearchEpisodes queues a search for the given episodes upstream.
func (c *client) SearchEpisodes(ctx context.Context, episodeIDs []int) error {
	resp, err := c.Call(ctx, http.MethodPost, "/command", nil, commandRequest{
		Name:       EpisodeSearchCommand,
		EpisodeIDs: episodeIDs,
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
