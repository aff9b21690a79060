package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// FakeAPIKey is the key a FakeSonarr accepts unless APIKey is changed.
const FakeAPIKey = "test-api-key"

// FakeSeason is a season entry of a FakeSeries
type FakeSeason struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
}

// FakeSeries is a series served by /api/v3/series
type FakeSeries struct {
	ID        int          `json:"id"`
	Title     string       `json:"title"`
	Monitored bool         `json:"monitored"`
	Tags      []int        `json:"tags"`
	Seasons   []FakeSeason `json:"seasons"`
}

// FakeEpisode is an episode served by /api/v3/episode. An empty AirDateUTC is omitted from the payload.
type FakeEpisode struct {
	ID           int    `json:"id"`
	SeriesID     int    `json:"seriesId"`
	SeasonNumber int    `json:"seasonNumber"`
	Title        string `json:"title"`
	AirDateUTC   string `json:"airDateUtc,omitempty"`
	Monitored    bool   `json:"monitored"`
}

// RecordedRequest is a request received by a FakeSonarr
type RecordedRequest struct {
	Method   string
	Path     string // full request path, including any base URL prefix
	Endpoint string // path below /api/v3
	Query    url.Values
	Header   http.Header
	Body     []byte
}

type failure struct {
	status int
	body   string
}

// FakeSonarr is an in-process stand-in for the upstream API.
// PUT /episode/monitor updates the served episodes so consecutive runs observe their own changes.
type FakeSonarr struct {
	Server *httptest.Server
	APIKey string

	mu       sync.Mutex
	tags     []map[string]any
	series   []FakeSeries
	episodes []*FakeEpisode
	failures map[string]failure
	requests []RecordedRequest
}

// NewFakeSonarr starts a fake upstream that is shut down when the test ends.
func NewFakeSonarr(t testing.TB) *FakeSonarr {
	t.Helper()
	f := &FakeSonarr{
		APIKey:   FakeAPIKey,
		failures: make(map[string]failure),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake upstream
func (f *FakeSonarr) URL() string {
	return f.Server.URL
}

// AddTag registers a tag
func (f *FakeSonarr) AddTag(id int, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, map[string]any{"id": id, "label": label})
}

// AddSeries registers a series
func (f *FakeSonarr) AddSeries(s FakeSeries) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Tags == nil {
		s.Tags = []int{}
	}
	if s.Seasons == nil {
		s.Seasons = []FakeSeason{}
	}
	f.series = append(f.series, s)
}

// AddEpisode registers an episode of seriesID / seasonNumber
func (f *FakeSonarr) AddEpisode(seriesID, seasonNumber int, e FakeEpisode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.SeriesID = seriesID
	e.SeasonNumber = seasonNumber
	f.episodes = append(f.episodes, &e)
}

// FailWith makes every request to method endpoint answer with status and body.
func (f *FakeSonarr) FailWith(method, endpoint string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+endpoint] = failure{status: status, body: body}
}

// Episode returns the current state of an episode
func (f *FakeSonarr) Episode(id int) (FakeEpisode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.episodes {
		if e.ID == id {
			return *e, true
		}
	}
	return FakeEpisode{}, false
}

// Requests returns every request received so far
func (f *FakeSonarr) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// RequestsTo returns the requests received for method endpoint
func (f *FakeSonarr) RequestsTo(method, endpoint string) []RecordedRequest {
	var matched []RecordedRequest
	for _, r := range f.Requests() {
		if r.Method == method && r.Endpoint == endpoint {
			matched = append(matched, r)
		}
	}
	return matched
}

func (f *FakeSonarr) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	endpoint := r.URL.Path
	if i := strings.Index(endpoint, "/api/v3"); i >= 0 {
		endpoint = endpoint[i+len("/api/v3"):]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		Endpoint: endpoint,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
		Body:     body,
	})

	if r.URL.Query().Get("apiKey") != f.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if fail, ok := f.failures[r.Method+" "+endpoint]; ok {
		w.WriteHeader(fail.status)
		_, _ = io.WriteString(w, fail.body)
		return
	}

	switch {
	case r.Method == http.MethodGet && endpoint == "/tag":
		writeJSON(w, http.StatusOK, nonNil(f.tags))
	case r.Method == http.MethodGet && endpoint == "/series":
		writeJSON(w, http.StatusOK, nonNil(f.series))
	case r.Method == http.MethodGet && endpoint == "/episode":
		f.serveEpisodes(w, r.URL.Query())
	case r.Method == http.MethodPut && endpoint == "/episode/monitor":
		f.serveMonitor(w, body)
	case r.Method == http.MethodPost && endpoint == "/command":
		writeJSON(w, http.StatusCreated, map[string]any{"id": len(f.requests), "status": "queued"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakeSonarr) serveEpisodes(w http.ResponseWriter, query url.Values) {
	seriesID, err1 := strconv.Atoi(query.Get("seriesId"))
	season, err2 := strconv.Atoi(query.Get("seasonNumber"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "seriesId and seasonNumber are required"})
		return
	}

	matched := []FakeEpisode{}
	for _, e := range f.episodes {
		if e.SeriesID == seriesID && e.SeasonNumber == season {
			matched = append(matched, *e)
		}
	}
	writeJSON(w, http.StatusOK, matched)
}

func (f *FakeSonarr) serveMonitor(w http.ResponseWriter, body []byte) {
	var req struct {
		EpisodeIDs []int `json:"episodeIds"`
		Monitored  bool  `json:"monitored"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	updated := []FakeEpisode{}
	for _, e := range f.episodes {
		if slices.Contains(req.EpisodeIDs, e.ID) {
			e.Monitored = req.Monitored
			updated = append(updated, *e)
		}
	}
	writeJSON(w, http.StatusAccepted, updated)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
