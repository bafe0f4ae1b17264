package insight

import (
	"encoding/json"
	"time"
)

// Report summarizes a user's activity log.
type Report struct {
	TotalEvents   int            `json:"total_events"`
	ByType        map[string]int `json:"by_type"`
	TasksCreated  int            `json:"tasks_created"`
	Interactions  int            `json:"interactions"`
	TotalDuration time.Duration  `json:"-"`
	AvgDuration   time.Duration  `json:"-"`
	LastActivity  *time.Time     `json:"last_activity,omitempty"`
	Sequences     [][]string     `json:"sequences,omitempty"`
}

// MarshalJSON writes the durations as whole milliseconds.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		TotalDurationMs int64 `json:"total_duration_ms"`
		AvgDurationMs   int64 `json:"avg_duration_ms"`
	}{
		Alias:           Alias(r),
		TotalDurationMs: r.TotalDuration.Milliseconds(),
		AvgDurationMs:   r.AvgDuration.Milliseconds(),
	})
}

// Report computes activity statistics.
func (t *Tracker) Report(u *UserInsights) Report {
	r := Report{
		TotalEvents:  len(u.Activity),
		ByType:       make(map[string]int),
		Interactions: u.Interactions,
	}

	var timed int
	for _, e := range u.Activity {
		r.ByType[e.Type]++
		if e.Type == EventTaskCreated {
			r.TasksCreated++
		}
		if e.Duration > 0 {
			r.TotalDuration += e.Duration
			timed++
		}
		if r.LastActivity == nil || e.Timestamp.After(*r.LastActivity) {
			ts := e.Timestamp
			r.LastActivity = &ts
		}
	}
	if timed > 0 {
		r.AvgDuration = r.TotalDuration / time.Duration(timed)
	}
	for _, s := range u.Sequences {
		r.Sequences = append(r.Sequences, append([]string(nil), s...))
	}
	return r
}
