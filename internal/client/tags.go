package client

import (
	"context"

	"github.com/swurapp/swur/internal/models"
)

// GetTags lists every tag defined upstream.
func (c *client) GetTags(ctx context.Context) ([]models.Tag, error) {
	resources, err := getJSON[tagResource](ctx, c, "/tag", nil)
	if err != nil {
		return nil, err
	}

	tags := make([]models.Tag, len(resources))
	for i, r := range resources {
		tags[i] = r.toModel()
	}
	return tags, nil
}
