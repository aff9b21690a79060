package services

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/swurapp/swur/internal/apperrors"
	"github.com/swurapp/swur/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func aired(days int) *time.Time {
	t := testNow.AddDate(0, 0, -days)
	return &t
}

func upcoming(days int) *time.Time {
	t := testNow.AddDate(0, 0, days)
	return &t
}

type monitorCall struct {
	ids       []int
	monitored bool
}

type episodeKey struct {
	seriesID int
	season   int
}

// fakeAPI is an in-memory SonarrAPI that records every call in order
type fakeAPI struct {
	mu sync.Mutex

	tags     []models.Tag
	series   []models.SeriesSummary
	episodes map[episodeKey][]models.UpstreamEpisode
	delays   map[int]time.Duration

	tagsErr     error
	seriesErr   error
	episodesErr map[int]error
	monitorErr  map[bool]error
	searchErr   error

	calls         []string
	episodeCalls  []episodeKey
	monitorCalls  []monitorCall
	searchCalls   [][]int
	applyUpstream bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		episodes:    make(map[episodeKey][]models.UpstreamEpisode),
		delays:      make(map[int]time.Duration),
		episodesErr: make(map[int]error),
		monitorErr:  make(map[bool]error),
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) GetTags(ctx context.Context) ([]models.Tag, error) {
	f.record("GetTags")
	return f.tags, f.tagsErr
}

func (f *fakeAPI) GetSeries(ctx context.Context) ([]models.SeriesSummary, error) {
	f.record("GetSeries")
	return f.series, f.seriesErr
}

func (f *fakeAPI) GetEpisodes(ctx context.Context, seriesID, seasonNumber int) ([]models.UpstreamEpisode, error) {
	f.record("GetEpisodes")
	f.mu.Lock()
	f.episodeCalls = append(f.episodeCalls, episodeKey{seriesID, seasonNumber})
	delay := f.delays[seriesID]
	err := f.episodesErr[seriesID]
	episodes := slices.Clone(f.episodes[episodeKey{seriesID, seasonNumber}])
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return episodes, nil
}

func (f *fakeAPI) SetEpisodesMonitored(ctx context.Context, ids []int, monitored bool) error {
	f.record("SetEpisodesMonitored")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitorCalls = append(f.monitorCalls, monitorCall{ids: slices.Clone(ids), monitored: monitored})
	if err := f.monitorErr[monitored]; err != nil {
		return err
	}
	if f.applyUpstream {
		for key, episodes := range f.episodes {
			for i := range episodes {
				if slices.Contains(ids, episodes[i].ID) {
					episodes[i].Monitored = monitored
				}
			}
			f.episodes[key] = episodes
		}
	}
	return nil
}

func (f *fakeAPI) SearchEpisodes(ctx context.Context, ids []int) error {
	f.record("SearchEpisodes")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, slices.Clone(ids))
	return f.searchErr
}

func newTestReconciler(api SonarrAPI, opts Options) (*DefaultReconciler, *bytes.Buffer) {
	var buf bytes.Buffer
	opts.Now = func() time.Time { return testNow }
	return NewReconciler(api, opts, zerolog.New(&buf)), &buf
}

// scenarioAPI serves one tracked series {id:1, latest season 2} with one episode per classification outcome.
func scenarioAPI() *fakeAPI {
	api := newFakeAPI()
	api.tags = []models.Tag{{ID: 1, Label: "anime"}, {ID: 9, Label: "ignore"}}
	api.series = []models.SeriesSummary{
		{ID: 1, Title: "The Show", Monitored: true, Tags: []int{1}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}, {SeasonNumber: 2, Monitored: true}}},
	}
	api.episodes[episodeKey{1, 2}] = []models.UpstreamEpisode{
		{ID: 101, AirDateUTC: aired(7), Monitored: false},
		{ID: 102, AirDateUTC: upcoming(7), Monitored: true},
		{ID: 103, AirDateUTC: aired(14), Monitored: true},
		{ID: 104, AirDateUTC: upcoming(14), Monitored: false},
	}
	return api
}

func TestReconciler_Run_Scenario(t *testing.T) {
	api := scenarioAPI()
	r, _ := newTestReconciler(api, Options{})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !slices.Equal(summary.ToMonitor, []int{101}) {
		t.Errorf("Expected toMonitor [101], got %v", summary.ToMonitor)
	}
	if !slices.Equal(summary.ToUnmonitor, []int{102}) {
		t.Errorf("Expected toUnmonitor [102], got %v", summary.ToUnmonitor)
	}
	if summary.IgnoreTagID == nil || *summary.IgnoreTagID != 9 {
		t.Errorf("Expected ignore tag id 9, got %v", summary.IgnoreTagID)
	}
	if summary.TrackedSeries != 1 || summary.EpisodesScanned != 4 {
		t.Errorf("Expected 1 tracked series and 4 scanned episodes, got %d / %d", summary.TrackedSeries, summary.EpisodesScanned)
	}

	if len(api.monitorCalls) != 2 {
		t.Fatalf("Expected 2 mutation calls, got %d", len(api.monitorCalls))
	}
	if got := api.monitorCalls[0]; !slices.Equal(got.ids, []int{101}) || !got.monitored {
		t.Errorf("Expected first call to monitor [101], got %+v", got)
	}
	if got := api.monitorCalls[1]; !slices.Equal(got.ids, []int{102}) || got.monitored {
		t.Errorf("Expected second call to unmonitor [102], got %+v", got)
	}
	if !slices.Equal(api.episodeCalls, []episodeKey{{1, 2}}) {
		t.Errorf("Expected episodes of series 1 season 2 only, got %v", api.episodeCalls)
	}
	if len(api.searchCalls) != 0 {
		t.Errorf("Expected no search without search_on_monitor, got %v", api.searchCalls)
	}
}

func TestReconciler_Run_CallOrder(t *testing.T) {
	api := scenarioAPI()
	r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"GetTags", "GetSeries", "GetEpisodes", "SetEpisodesMonitored", "SetEpisodesMonitored", "SearchEpisodes"}
	if !slices.Equal(api.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, api.calls)
	}
}

func TestReconciler_Run_NothingToDo(t *testing.T) {
	api := newFakeAPI()
	api.series = []models.SeriesSummary{
		{ID: 1, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
	}
	api.episodes[episodeKey{1, 1}] = []models.UpstreamEpisode{
		{ID: 1, AirDateUTC: aired(1), Monitored: true},
		{ID: 2, AirDateUTC: upcoming(1), Monitored: false},
	}
	r, logs := newTestReconciler(api, Options{SearchOnMonitor: true})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.HasChanges() {
		t.Errorf("Expected no changes, got %+v", summary)
	}
	if len(api.monitorCalls) != 0 || len(api.searchCalls) != 0 {
		t.Errorf("Expected zero mutation calls, got %d PUT and %d search", len(api.monitorCalls), len(api.searchCalls))
	}
	if n := strings.Count(logs.String(), "No new episodes to un/monitor"); n != 1 {
		t.Errorf("Expected one 'No new episodes to un/monitor' log, got %d in:\n%s", n, logs.String())
	}
}

func TestReconciler_Run_MonitorFailureAbortsRun(t *testing.T) {
	api := scenarioAPI()
	api.monitorErr[true] = apperrors.NewAPICallFailedError("PUT", "/episode/monitor", 500, "boom")
	r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

	_, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *apperrors.ErrAPICallFailed
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("Expected ErrAPICallFailed with status 500, got: %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected error message to mention 500, got: %v", err)
	}
	if len(api.monitorCalls) != 1 {
		t.Errorf("Expected the unmonitor batch to be skipped, got %d mutation calls", len(api.monitorCalls))
	}
	if len(api.searchCalls) != 0 {
		t.Error("Expected no search after a failed mutation")
	}
}

func TestReconciler_Run_UnmonitorFailure(t *testing.T) {
	api := scenarioAPI()
	api.monitorErr[false] = apperrors.NewAPICallFailedError("PUT", "/episode/monitor", 500, "")
	r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

	if _, err := r.Run(context.Background()); !errors.Is(err, &apperrors.ErrAPICallFailed{}) {
		t.Fatalf("Expected ErrAPICallFailed, got: %v", err)
	}
	if len(api.searchCalls) != 0 {
		t.Error("Expected no search when the unmonitor batch fails")
	}
}

func TestReconciler_Run_ReadFailuresAbort(t *testing.T) {
	failure := apperrors.NewAPICallFailedError("GET", "/x", 503, "")

	tests := []struct {
		name   string
		mutate func(api *fakeAPI)
	}{
		{name: "tags", mutate: func(api *fakeAPI) { api.tagsErr = failure }},
		{name: "series", mutate: func(api *fakeAPI) { api.seriesErr = failure }},
		{name: "episodes", mutate: func(api *fakeAPI) { api.episodesErr[1] = failure }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := scenarioAPI()
			tt.mutate(api)
			r, _ := newTestReconciler(api, Options{})

			_, err := r.Run(context.Background())
			if !errors.Is(err, &apperrors.ErrAPICallFailed{}) {
				t.Fatalf("Expected ErrAPICallFailed, got: %v", err)
			}
			if len(api.monitorCalls) != 0 {
				t.Errorf("Expected no mutation after a failed read, got %d", len(api.monitorCalls))
			}
		})
	}
}

func TestReconciler_Run_SecondRunIsIdempotent(t *testing.T) {
	api := scenarioAPI()
	api.applyUpstream = true
	r, _ := newTestReconciler(api, Options{})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if len(api.monitorCalls) != 2 {
		t.Fatalf("Expected 2 mutation calls on first run, got %d", len(api.monitorCalls))
	}

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.HasChanges() {
		t.Errorf("Expected no changes on second run, got %+v", summary)
	}
	if len(api.monitorCalls) != 2 {
		t.Errorf("Expected no new mutation calls on second run, got %d total", len(api.monitorCalls))
	}
}

func TestReconciler_Run_SkipsEpisodesWithoutAirDate(t *testing.T) {
	api := newFakeAPI()
	api.series = []models.SeriesSummary{
		{ID: 1, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 3, Monitored: true}}},
	}
	api.episodes[episodeKey{1, 3}] = []models.UpstreamEpisode{
		{ID: 1, Monitored: true},
		{ID: 2, Monitored: false},
		{ID: 3, AirDateUTC: aired(1), Monitored: false},
	}
	r, _ := newTestReconciler(api, Options{})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.EpisodesScanned != 1 {
		t.Errorf("Expected 1 scanned episode, got %d", summary.EpisodesScanned)
	}
	if !slices.Equal(summary.ToMonitor, []int{3}) || len(summary.ToUnmonitor) != 0 {
		t.Errorf("Expected only episode 3 to change, got monitor=%v unmonitor=%v", summary.ToMonitor, summary.ToUnmonitor)
	}
}

func TestReconciler_Run_IgnoreTag(t *testing.T) {
	series := []models.SeriesSummary{
		{ID: 1, Monitored: true, Tags: []int{9}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
		{ID: 2, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
	}

	t.Run("tag found", func(t *testing.T) {
		api := newFakeAPI()
		api.tags = []models.Tag{{ID: 9, Label: "ignore"}}
		api.series = series
		r, logs := newTestReconciler(api, Options{})

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if summary.TrackedSeries != 1 || !slices.Equal(api.episodeCalls, []episodeKey{{2, 1}}) {
			t.Errorf("Expected only series 2 tracked, got %d tracked, calls %v", summary.TrackedSeries, api.episodeCalls)
		}
		if !strings.Contains(logs.String(), `"tag_id":9`) {
			t.Errorf("Expected log with resolved tag id, got:\n%s", logs.String())
		}
	})

	t.Run("tag missing tracks all", func(t *testing.T) {
		api := newFakeAPI()
		api.tags = []models.Tag{{ID: 9, Label: "Ignore"}}
		api.series = series
		r, logs := newTestReconciler(api, Options{})

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if summary.IgnoreTagID != nil {
			t.Errorf("Expected no ignore tag for case mismatch, got %d", *summary.IgnoreTagID)
		}
		if summary.TrackedSeries != 2 {
			t.Errorf("Expected both series tracked, got %d", summary.TrackedSeries)
		}
		if !strings.Contains(logs.String(), "Tracking all series") {
			t.Errorf("Expected 'Tracking all series' log, got:\n%s", logs.String())
		}
	})

	t.Run("custom tag name", func(t *testing.T) {
		api := newFakeAPI()
		api.tags = []models.Tag{{ID: 9, Label: "ignore"}, {ID: 4, Label: "skip"}}
		api.series = []models.SeriesSummary{
			{ID: 1, Monitored: true, Tags: []int{4}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
			{ID: 2, Monitored: true, Tags: []int{9}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
		}
		r, _ := newTestReconciler(api, Options{IgnoreTagName: "skip"})

		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !slices.Equal(api.episodeCalls, []episodeKey{{2, 1}}) {
			t.Errorf("Expected only series 2 fetched, got %v", api.episodeCalls)
		}
	})
}

func TestReconciler_Run_ConcurrentFetchKeepsOrder(t *testing.T) {
	api := newFakeAPI()
	for id := 1; id <= 5; id++ {
		api.series = append(api.series, models.SeriesSummary{
			ID: id, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}},
		})
		api.episodes[episodeKey{id, 1}] = []models.UpstreamEpisode{{ID: id * 100, AirDateUTC: aired(1)}}
		// earlier series answer last
		api.delays[id] = time.Duration(6-id) * 10 * time.Millisecond
	}
	r, _ := newTestReconciler(api, Options{Concurrency: 5})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []int{100, 200, 300, 400, 500}
	if !slices.Equal(summary.ToMonitor, want) {
		t.Errorf("Expected toMonitor %v, got %v", want, summary.ToMonitor)
	}
	if len(api.monitorCalls) != 1 || !slices.Equal(api.monitorCalls[0].ids, want) {
		t.Errorf("Expected a single monitor call with %v, got %+v", want, api.monitorCalls)
	}
}

func TestReconciler_Run_ConcurrentFetchFailure(t *testing.T) {
	api := newFakeAPI()
	for id := 1; id <= 3; id++ {
		api.series = append(api.series, models.SeriesSummary{
			ID: id, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}},
		})
		api.episodes[episodeKey{id, 1}] = []models.UpstreamEpisode{{ID: id, AirDateUTC: aired(1)}}
	}
	api.episodesErr[2] = apperrors.NewAPICallFailedError("GET", "/episode", 500, "")
	r, _ := newTestReconciler(api, Options{Concurrency: 3})

	if _, err := r.Run(context.Background()); !errors.Is(err, &apperrors.ErrAPICallFailed{}) {
		t.Fatalf("Expected ErrAPICallFailed, got: %v", err)
	}
	if len(api.monitorCalls) != 0 {
		t.Error("Expected no mutation after a failed episode fetch")
	}
}

func TestReconciler_Run_DryRun(t *testing.T) {
	api := scenarioAPI()
	r, logs := newTestReconciler(api, Options{DryRun: true, SearchOnMonitor: true})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.DryRun {
		t.Error("Expected summary to be marked as dry run")
	}
	if !slices.Equal(summary.ToMonitor, []int{101}) || !slices.Equal(summary.ToUnmonitor, []int{102}) {
		t.Errorf("Expected batches to be computed, got monitor=%v unmonitor=%v", summary.ToMonitor, summary.ToUnmonitor)
	}
	if len(api.monitorCalls) != 0 || len(api.searchCalls) != 0 {
		t.Errorf("Expected zero mutations in dry run, got %d PUT and %d search", len(api.monitorCalls), len(api.searchCalls))
	}
	if !strings.Contains(logs.String(), "Dry run") {
		t.Errorf("Expected dry run log, got:\n%s", logs.String())
	}
}

func TestReconciler_Run_SearchOnMonitor(t *testing.T) {
	t.Run("searches monitored batch", func(t *testing.T) {
		api := scenarioAPI()
		r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

		summary, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(api.searchCalls) != 1 || !slices.Equal(api.searchCalls[0], []int{101}) {
			t.Errorf("Expected one search for [101], got %v", api.searchCalls)
		}
		if !slices.Equal(summary.Searched, []int{101}) {
			t.Errorf("Expected searched [101], got %v", summary.Searched)
		}
	})

	t.Run("no search without monitored episodes", func(t *testing.T) {
		api := scenarioAPI()
		api.episodes[episodeKey{1, 2}] = []models.UpstreamEpisode{{ID: 102, AirDateUTC: upcoming(1), Monitored: true}}
		r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(api.monitorCalls) != 1 || len(api.searchCalls) != 0 {
			t.Errorf("Expected only the unmonitor call, got %d PUT and %d search", len(api.monitorCalls), len(api.searchCalls))
		}
	})

	t.Run("search failure is reported", func(t *testing.T) {
		api := scenarioAPI()
		api.searchErr = apperrors.NewAPICallFailedError("POST", "/command", 500, "")
		r, _ := newTestReconciler(api, Options{SearchOnMonitor: true})

		_, err := r.Run(context.Background())
		if !errors.Is(err, &apperrors.ErrAPICallFailed{}) {
			t.Fatalf("Expected ErrAPICallFailed, got: %v", err)
		}
		if len(api.monitorCalls) != 2 {
			t.Errorf("Expected both batches sent before the search, got %d", len(api.monitorCalls))
		}
	})
}

func TestReconciler_Run_AirTimeIsStrict(t *testing.T) {
	now := testNow
	api := newFakeAPI()
	api.series = []models.SeriesSummary{
		{ID: 1, Monitored: true, Tags: []int{}, Seasons: []models.SeasonSummary{{SeasonNumber: 1, Monitored: true}}},
	}
	api.episodes[episodeKey{1, 1}] = []models.UpstreamEpisode{{ID: 1, AirDateUTC: &now, Monitored: true}}
	r, _ := newTestReconciler(api, Options{})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !slices.Equal(summary.ToUnmonitor, []int{1}) {
		t.Errorf("Expected an episode airing exactly now to count as not aired, got unmonitor=%v", summary.ToUnmonitor)
	}
}
