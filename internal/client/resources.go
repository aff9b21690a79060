package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/swurapp/swur/internal/apperrors"
	"github.com/swurapp/swur/internal/models"
)

// Wire shapes of the upstream resources. Pointers mark fields that must be
// present; validation rejects a payload that lacks them instead of defaulting.

type tagResource struct {
	ID    *int    `json:"id" validate:"required"`
	Label *string `json:"label" validate:"required"`
}

type seasonResource struct {
	SeasonNumber *int  `json:"seasonNumber" validate:"required"`
	Monitored    *bool `json:"monitored" validate:"required"`
}

type seriesResource struct {
	ID        *int             `json:"id" validate:"required"`
	Title     string           `json:"title"`
	Monitored *bool            `json:"monitored" validate:"required"`
	Tags      []int            `json:"tags" validate:"required"`
	Seasons   []seasonResource `json:"seasons" validate:"required,dive"`
}

type episodeResource struct {
	ID         *int     `json:"id" validate:"required"`
	Title      string   `json:"title"`
	AirDateUTC *airDate `json:"airDateUtc"`
	Monitored  *bool    `json:"monitored" validate:"required"`
}

type monitorRequest struct {
	EpisodeIDs []int `json:"episodeIds"`
	Monitored  bool  `json:"monitored"`
}

type commandRequest struct {
	Name       string `json:"name"`
	EpisodeIDs []int  `json:"episodeIds"`
}

// airDate decodes airDateUtc strictly with models.AirDateLayout.
type airDate struct {
	time.Time
}

func (d *airDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("airDateUtc: %w", err)
	}
	t, err := time.Parse(models.AirDateLayout, raw)
	if err != nil {
		return fmt.Errorf("airDateUtc: %w", err)
	}
	d.Time = t
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report upstream field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// getJSON calls GET endpoint, decodes the body into a slice of T and validates every element.
func getJSON[T any](ctx context.Context, c *client, endpoint string, query url.Values) ([]T, error) {
	resp, err := c.Call(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, apperrors.NewDecodeError(endpoint, err)
	}
	for i := range items {
		if err := validate.Struct(items[i]); err != nil {
			return nil, apperrors.NewDecodeError(endpoint, fmt.Errorf("item %d: %w", i, err))
		}
	}
	return items, nil
}

func (r tagResource) toModel() models.Tag {
	return models.Tag{ID: *r.ID, Label: *r.Label}
}

func (r seriesResource) toModel() models.SeriesSummary {
	seasons := make([]models.SeasonSummary, len(r.Seasons))
	for i, s := range r.Seasons {
		seasons[i] = models.SeasonSummary{SeasonNumber: *s.SeasonNumber, Monitored: *s.Monitored}
	}
	return models.SeriesSummary{
		ID:        *r.ID,
		Title:     r.Title,
		Monitored: *r.Monitored,
		Tags:      r.Tags,
		Seasons:   seasons,
	}
}

func (r episodeResource) toModel() models.UpstreamEpisode {
	ep := models.UpstreamEpisode{ID: *r.ID, Title: r.Title, Monitored: *r.Monitored}
	if r.AirDateUTC != nil {
		t := r.AirDateUTC.Time
		ep.AirDateUTC = &t
	}
	return ep
}
