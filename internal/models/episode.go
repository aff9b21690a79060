package models

import "time"

// AirDateLayout is the upstream format of airDateUtc
const AirDateLayout = "2006-01-02T15:04:05Z"

// UpstreamEpisode is an episode as returned by the episode listing.
// AirDateUTC is nil when upstream does not know the air date yet.
type UpstreamEpisode struct {
	ID         int
	Title      string
	AirDateUTC *time.Time
	Monitored  bool
}

// Episode is an episode with its air state resolved against a point in time
type Episode struct {
	ID          int
	Title       string
	HasAired    bool
	IsMonitored bool
}

// NewEpisode resolves the air state of an upstream episode at now.
// Episodes without an air date are not eligible and return false.
func NewEpisode(up UpstreamEpisode, now time.Time) (Episode, bool) {
	if up.AirDateUTC == nil {
		return Episode{}, false
	}
	return Episode{
		ID:          up.ID,
		Title:       up.Title,
		HasAired:    up.AirDateUTC.Before(now),
		IsMonitored: up.Monitored,
	}, true
}

// MonitorAction is the change an episode needs
type MonitorAction int

const (
	ActionNone MonitorAction = iota
	ActionMonitor
	ActionUnmonitor
)

// String returns the metric/log label of the action
func (a MonitorAction) String() string {
	switch a {
	case ActionMonitor:
		return "monitor"
	case ActionUnmonitor:
		return "unmonitor"
	default:
		return "none"
	}
}

// Action returns what has to happen to the episode's monitored flag
func (e Episode) Action() MonitorAction {
	switch {
	case e.HasAired && !e.IsMonitored:
		return ActionMonitor
	case !e.HasAired && e.IsMonitored:
		return ActionUnmonitor
	default:
		return ActionNone
	}
}

// ClassifyEpisodes splits episodes into the ids to monitor and the ids to unmonitor,
// preserving input order. Episodes already in the desired state are left out.
func ClassifyEpisodes(episodes []Episode) (toMonitor, toUnmonitor []int) {
	for _, e := range episodes {
		switch e.Action() {
		case ActionMonitor:
			toMonitor = append(toMonitor, e.ID)
		case ActionUnmonitor:
			toUnmonitor = append(toUnmonitor, e.ID)
		}
	}
	return toMonitor, toUnmonitor
}
