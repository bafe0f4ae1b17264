package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Goal types.
const (
	GoalDailyTasks    = "daily_tasks"
	GoalWeeklyTasks   = "weekly_tasks"
	GoalDailyTurns    = "daily_turns"
	GoalRoutinesSaved = "routines_saved"
)

var (
	ErrUnknownGoalType = errors.New("unknown goal type")
	ErrInvalidTarget   = errors.New("goal target must be positive")
)

// goalSpec says which events count toward a goal and from when.
type goalSpec struct {
	event string
	since func(now, created time.Time) time.Time
}

var goalSpecs = map[string]goalSpec{
	GoalDailyTasks:    {EventTaskCreated, func(now, _ time.Time) time.Time { return startOfDay(now) }},
	GoalWeeklyTasks:   {EventTaskCreated, func(now, _ time.Time) time.Time { return startOfDay(now).AddDate(0, 0, -6) }},
	GoalDailyTurns:    {EventTurnCompleted, func(now, _ time.Time) time.Time { return startOfDay(now) }},
	GoalRoutinesSaved: {EventRoutineSaved, func(_, created time.Time) time.Time { return created }},
}

// GoalTypes lists the accepted goal types, sorted.
func GoalTypes() []string {
	types := make([]string, 0, len(goalSpecs))
	for t := range goalSpecs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Goal is a target the user set for their own activity.
type Goal struct {
	ID        string    `json:"goal_id"`
	Type      string    `json:"goal_type"`
	Target    int       `json:"target_value"`
	CreatedAt time.Time `json:"created_at"`
}

// GoalProgress is a goal together with how far the activity log gets it.
type GoalProgress struct {
	Goal
	Progress int  `json:"progress"`
	Achieved bool `json:"achieved"`
}

// CreateGoal sets a goal. A user has at most one goal per type; setting the
// same type again replaces the old target.
func (t *Tracker) CreateGoal(u *UserInsights, goalType string, target int) (Goal, error) {
	goalType = strings.ToLower(strings.TrimSpace(goalType))
	if _, ok := goalSpecs[goalType]; !ok {
		return Goal{}, fmt.Errorf("%w %q (want one of %s)", ErrUnknownGoalType, goalType, strings.Join(GoalTypes(), ", "))
	}
	if target <= 0 {
		return Goal{}, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}

	g := Goal{ID: t.newID(), Type: goalType, Target: target, CreatedAt: t.now()}
	for i := range u.Goals {
		if u.Goals[i].Type == goalType {
			u.Goals[i] = g
			return g, nil
		}
	}
	u.Goals = append(u.Goals, g)
	return g, nil
}

// Goals returns every goal with its current progress, oldest first.
func (t *Tracker) Goals(u *UserInsights) []GoalProgress {
	now := t.now()
	out := make([]GoalProgress, 0, len(u.Goals))
	for _, g := range u.Goals {
		spec := goalSpecs[g.Type]
		since := spec.since(now, g.CreatedAt)
		n := 0
		for _, e := range u.Activity {
			if e.Type == spec.event && !e.Timestamp.Before(since) {
				n++
			}
		}
		out = append(out, GoalProgress{Goal: g, Progress: n, Achieved: n >= g.Target})
	}
	return out
}

// Metrics are productivity figures derived from the activity log.
type Metrics struct {
	TasksToday        int           `json:"tasks_today"`
	TasksThisWeek     int           `json:"tasks_this_week"`
	ActiveDays        int           `json:"active_days"`
	TasksPerActiveDay float64       `json:"tasks_per_active_day"`
	StreakDays        int           `json:"streak_days"`
	AvgTurnDuration   time.Duration `json:"-"`
	GoalsTotal        int           `json:"goals_total"`
	GoalsAchieved     int           `json:"goals_achieved"`
	GoalCompletion    float64       `json:"goal_completion_rate"`
}

// MarshalJSON writes AvgTurnDuration as whole milliseconds.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type Alias Metrics
	return json.Marshal(&struct {
		Alias
		AvgTurnDurationMs int64 `json:"avg_turn_duration_ms"`
	}{
		Alias:             Alias(m),
		AvgTurnDurationMs: m.AvgTurnDuration.Milliseconds(),
	})
}

// Metrics computes productivity figures over the trailing seven days.
// ActiveDays counts days in that week with any event; StreakDays counts
// consecutive active days ending today.
func (t *Tracker) Metrics(u *UserInsights) Metrics {
	now := t.now()
	today := startOfDay(now)
	weekStart := today.AddDate(0, 0, -6)

	var (
		m      Metrics
		turns  int
		active = make(map[time.Time]bool)
	)
	for _, e := range u.Activity {
		day := startOfDay(e.Timestamp.In(now.Location()))
		active[day] = true
		if e.Type == EventTaskCreated {
			if !day.Before(today) {
				m.TasksToday++
			}
			if !day.Before(weekStart) {
				m.TasksThisWeek++
			}
		}
		if e.Type == EventTurnCompleted && e.Duration > 0 {
			m.AvgTurnDuration += e.Duration
			turns++
		}
	}
	if turns > 0 {
		m.AvgTurnDuration /= time.Duration(turns)
	}

	for day := range active {
		if !day.Before(weekStart) && !day.After(today) {
			m.ActiveDays++
		}
	}
	if m.ActiveDays > 0 {
		m.TasksPerActiveDay = float64(m.TasksThisWeek) / float64(m.ActiveDays)
	}
	for day := today; active[day]; day = day.AddDate(0, 0, -1) {
		m.StreakDays++
	}

	for _, g := range t.Goals(u) {
		m.GoalsTotal++
		if g.Achieved {
			m.GoalsAchieved++
		}
	}
	if m.GoalsTotal > 0 {
		m.GoalCompletion = float64(m.GoalsAchieved) / float64(m.GoalsTotal)
	}
	return m
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
