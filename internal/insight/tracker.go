package insight

import (
	"sort"
	"strings"
	"time"

	"taskflow/internal/graph"

	"github.com/google/uuid"
)

// UserInsights holds the behavioral counters kept for one user.
type UserInsights struct {
	Interactions   int                  `json:"interactions"`
	AskedQuestions map[string]time.Time `json:"asked_questions,omitempty"`
	Preferences    map[string]string    `json:"preferences,omitempty"`
	Sequences      [][]string           `json:"sequences,omitempty"`
	Activity       []Event              `json:"activity,omitempty"`
	Goals          []Goal               `json:"goals,omitempty"`
}

// New returns empty insights.
func New() *UserInsights {
	return &UserInsights{
		AskedQuestions: make(map[string]time.Time),
		Preferences:    make(map[string]string),
	}
}

// Clone returns a deep copy.
func (u *UserInsights) Clone() *UserInsights {
	if u == nil {
		return New()
	}
	c := &UserInsights{
		Interactions:   u.Interactions,
		AskedQuestions: make(map[string]time.Time, len(u.AskedQuestions)),
		Preferences:    make(map[string]string, len(u.Preferences)),
		Sequences:      make([][]string, 0, len(u.Sequences)),
		Activity:       make([]Event, len(u.Activity)),
		Goals:          append([]Goal(nil), u.Goals...),
	}
	for k, v := range u.AskedQuestions {
		c.AskedQuestions[k] = v
	}
	for k, v := range u.Preferences {
		c.Preferences[k] = v
	}
	for _, s := range u.Sequences {
		c.Sequences = append(c.Sequences, append([]string(nil), s...))
	}
	for i, e := range u.Activity {
		e.Data = cloneData(e.Data)
		c.Activity[i] = e
	}
	return c
}

func (u *UserInsights) ensure() {
	if u.AskedQuestions == nil {
		u.AskedQuestions = make(map[string]time.Time)
	}
	if u.Preferences == nil {
		u.Preferences = make(map[string]string)
	}
}

// Tracker applies every change to UserInsights. It holds no per-user state;
// callers pass the insights owned by the user's session.
type Tracker struct {
	horizon     time.Duration
	maxActivity int
	now         func() time.Time
	newID       func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator sets the event ID source.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// NewTracker creates a tracker. Questions are suppressed for horizon after
// being asked; the activity log keeps at most maxActivity events (0 = no limit).
func NewTracker(horizon time.Duration, maxActivity int, opts ...Option) *Tracker {
	t := &Tracker{
		horizon:     horizon,
		maxActivity: maxActivity,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordInteraction counts one loop invocation.
func (t *Tracker) RecordInteraction(u *UserInsights) {
	u.Interactions++
}

// RecordQuestion records that a clarifying question was asked and reports
// whether it was fresh. A question asked within the horizon is not fresh and
// its timestamp is left alone.
func (t *Tracker) RecordQuestion(u *UserInsights, id string) bool {
	u.ensure()
	now := t.now()
	if last, ok := u.AskedQuestions[id]; ok && now.Sub(last) < t.horizon {
		return false
	}
	u.AskedQuestions[id] = now
	return true
}

// RecentQuestions returns the ids asked within the horizon, sorted.
func (t *Tracker) RecentQuestions(u *UserInsights) []string {
	now := t.now()
	var ids []string
	for id, at := range u.AskedQuestions {
		if now.Sub(at) < t.horizon {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetPreference stores a learned preference. An empty value deletes it.
func (t *Tracker) SetPreference(u *UserInsights, key, value string) {
	u.ensure()
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if value == "" {
		delete(u.Preferences, key)
		return
	}
	u.Preferences[key] = value
}

// sequenceLen is the window size used when looking for recurring chains.
const sequenceLen = 3

// DetectSequences finds chains of three tasks, each linked to the next by an
// edge, that occur in at least two of the user's saved routines or the
// current graph. The result replaces u.Sequences.
func (t *Tracker) DetectSequences(u *UserInsights, g *graph.Graph) [][]string {
	sources := make([]*graph.Graph, 0, len(g.Routines)+1)
	sources = append(sources, g)
	for _, name := range g.RoutineNames() {
		snap := g.Routines[name]
		sources = append(sources, &graph.Graph{Tasks: snap.Tasks, Edges: snap.Edges})
	}

	counts := make(map[string]int)
	chains := make(map[string][]string)
	for _, src := range sources {
		seen := make(map[string]bool)
		for _, chain := range linkedWindows(src) {
			key := strings.Join(chain, "\x00")
			if seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
			chains[key] = chain
		}
	}

	var keys []string
	for key, n := range counts {
		if n >= 2 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	u.Sequences = make([][]string, 0, len(keys))
	for _, key := range keys {
		u.Sequences = append(u.Sequences, chains[key])
	}
	return u.Sequences
}

// linkedWindows returns every run of sequenceLen consecutive tasks (in display
// order, Start excluded) where each task has an edge to the next.
func linkedWindows(g *graph.Graph) [][]string {
	var out [][]string
	tasks := make([]string, 0, len(g.Tasks))
	for _, name := range g.Tasks {
		if name != graph.StartTask {
			tasks = append(tasks, name)
		}
	}
	for i := 0; i+sequenceLen <= len(tasks); i++ {
		window := tasks[i : i+sequenceLen]
		linked := true
		for j := 0; j+1 < len(window); j++ {
			if !g.Connected(window[j], window[j+1]) {
				linked = false
				break
			}
		}
		if linked {
			out = append(out, append([]string(nil), window...))
		}
	}
	return out
}

// Snapshot returns a copy safe to hand to readers outside the session.
func (t *Tracker) Snapshot(u *UserInsights) *UserInsights {
	return u.Clone()
}

// Reset clears every counter and preference along with the activity log and goals.
func (t *Tracker) Reset(u *UserInsights) {
	*u = *New()
}

// LogEvent appends an event, filling in its ID and timestamp when unset.
func (t *Tracker) LogEvent(u *UserInsights, e Event) Event {
	if e.ID == "" {
		e.ID = t.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	e.Data = cloneData(e.Data)
	u.Activity = append(u.Activity, e)

	if t.maxActivity > 0 && len(u.Activity) > t.maxActivity {
		drop := len(u.Activity) - t.maxActivity
		u.Activity = append([]Event(nil), u.Activity[drop:]...)
	}
	return e
}

// Query returns events matching f, newest first.
func (t *Tracker) Query(u *UserInsights, f Filter) []Event {
	var out []Event
	for i := len(u.Activity) - 1; i >= 0; i-- {
		e := u.Activity[i]
		if !e.Matches(f) {
			continue
		}
		e.Data = cloneData(e.Data)
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
