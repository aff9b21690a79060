package models

// RunSummary describes what a reconciliation run found and changed
type RunSummary struct {
	IgnoreTagID     *int  // nil when the ignore tag does not exist upstream
	TrackedSeries   int   // number of series whose latest season was inspected
	EpisodesScanned int   // episodes with an air date across all tracked series
	ToMonitor       []int // episode ids switched to monitored
	ToUnmonitor     []int // episode ids switched to unmonitored
	Searched        []int // episode ids an EpisodeSearch was requested for
	DryRun          bool  // true when no mutation was sent
}

// HasChanges reports whether the run found at least one episode to update
func (s *RunSummary) HasChanges() bool {
	return len(s.ToMonitor) > 0 || len(s.ToUnmonitor) > 0
}
