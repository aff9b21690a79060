package models

import "slices"

// SeasonSummary is the per-season part of a series listing
type SeasonSummary struct {
	SeasonNumber int
	Monitored    bool
}

// SeriesSummary is a series as returned by the series listing
type SeriesSummary struct {
	ID        int
	Title     string
	Monitored bool
	Tags      []int
	Seasons   []SeasonSummary
}

// TrackedSeries is a series whose latest season gets reconciled during this run
type TrackedSeries struct {
	ID           int
	Title        string
	LatestSeason int
}

// LatestSeason returns the season with the highest season number.
// When several seasons share that number, the last one in listing order wins.
// The second return value is false for a series without seasons.
func (s SeriesSummary) LatestSeason() (SeasonSummary, bool) {
	if len(s.Seasons) == 0 {
		return SeasonSummary{}, false
	}

	latest := s.Seasons[0]
	for _, season := range s.Seasons[1:] {
		if season.SeasonNumber >= latest.SeasonNumber {
			latest = season
		}
	}
	return latest, true
}

// HasTag reports whether the series carries the tag with the given id
func (s SeriesSummary) HasTag(tagID int) bool {
	return slices.Contains(s.Tags, tagID)
}

// Track decides whether the series is tracked this run.
// A nil ignoreTagID disables the tag filter.
func (s SeriesSummary) Track(ignoreTagID *int) (TrackedSeries, bool) {
	if !s.Monitored {
		return TrackedSeries{}, false
	}
	if ignoreTagID != nil && s.HasTag(*ignoreTagID) {
		return TrackedSeries{}, false
	}

	latest, ok := s.LatestSeason()
	if !ok || !latest.Monitored {
		return TrackedSeries{}, false
	}

	return TrackedSeries{
		ID:           s.ID,
		Title:        s.Title,
		LatestSeason: latest.SeasonNumber,
	}, true
}

// SelectTrackedSeries filters series down to the tracked ones, keeping listing order
func SelectTrackedSeries(series []SeriesSummary, ignoreTagID *int) []TrackedSeries {
	tracked := make([]TrackedSeries, 0, len(series))
	for _, s := range series {
		if t, ok := s.Track(ignoreTagID); ok {
			tracked = append(tracked, t)
		}
	}
	return tracked
}
