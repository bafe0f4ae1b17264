package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/logging"
	"taskflow/internal/loop"
	"taskflow/internal/store"
	"taskflow/internal/tools"
)

const maxUserIDLength = 128

// GraphView is the read model of a user's graph.
type GraphView struct {
	UserID   string       `json:"user_id"`
	Tasks    []string     `json:"tasks"`
	Edges    []graph.Edge `json:"edges"`
	LastTask string       `json:"last_task"`
	Routines []string     `json:"routines"`
	Rendered string       `json:"rendered"`
}

func viewOf(userID string, g *graph.Graph) GraphView {
	return GraphView{
		UserID:   userID,
		Tasks:    append([]string(nil), g.Tasks...),
		Edges:    append([]graph.Edge{}, g.Edges...),
		LastTask: g.LastTask,
		Routines: sortedRoutines(g),
		Rendered: graph.Render(g),
	}
}

func sortedRoutines(g *graph.Graph) []string {
	names := g.RoutineNames()
	sort.Strings(names)
	return names
}

// TurnResult is the outcome of one utterance.
type TurnResult struct {
	Graph      GraphView       `json:"graph"`
	Reply      string          `json:"reply"`
	Iterations int             `json:"iterations"`
	Partial    bool            `json:"partial"`
	Warning    string          `json:"warning,omitempty"`
	Question   *tools.Question `json:"question,omitempty"`
	Applied    []string        `json:"applied"`
	Sequences  [][]string      `json:"sequences,omitempty"`
}

// RoutineInfo describes a saved routine.
type RoutineInfo struct {
	Name      string    `json:"name"`
	SavedAt   time.Time `json:"saved_at"`
	TaskCount int       `json:"task_count"`
}

// Service is the graph query surface. Every method runs inside the user's
// exclusive section, so concurrent calls for one user are serialized and
// calls for different users are independent.
type Service struct {
	store   *store.Store
	loop    *loop.Loop
	engine  *graph.Engine
	tracker *insight.Tracker
	now     func() time.Time
}

// NewService wires the service. engine is used by the direct mutators; the
// loop carries its own.
func NewService(st *store.Store, lp *loop.Loop, engine *graph.Engine, tracker *insight.Tracker) *Service {
	if engine == nil {
		engine = graph.NewEngine()
	}
	return &Service{
		store:   st,
		loop:    lp,
		engine:  engine,
		tracker: tracker,
		now:     time.Now,
	}
}

func checkUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return NewAppError(ErrCodeInvalidInput, "user id is empty", nil)
	}
	if len(userID) > maxUserIDLength {
		return NewAppError(ErrCodeInvalidInput, fmt.Sprintf("user id longer than %d bytes", maxUserIDLength), nil)
	}
	for _, r := range userID {
		if unicode.IsControl(r) || r == '/' {
			return NewAppError(ErrCodeInvalidInput, "user id contains invalid characters", nil)
		}
	}
	return nil
}

// GetGraph returns the user's current graph.
func (s *Service) GetGraph(ctx context.Context, userID string) (GraphView, error) {
	if err := checkUserID(userID); err != nil {
		return GraphView{}, err
	}
	var view GraphView
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		view = viewOf(userID, sess.Graph)
		return nil
	})
	return view, err
}

// UpdateGraph runs one utterance through the loop. A loop that stops early
// still commits what it applied and reports Partial. When the extractor's
// service is unreachable the session is left as it was and the error is
// returned.
func (s *Service) UpdateGraph(ctx context.Context, userID, utterance string) (TurnResult, error) {
	if err := checkUserID(userID); err != nil {
		return TurnResult{}, err
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return TurnResult{}, NewAppError(ErrCodeInvalidInput, "utterance is empty", nil)
	}

	var out TurnResult
	err := s.store.With(ctx, userID, func(sess *store.Session) error {
		started := s.now()
		before := sess.Graph
		s.tracker.RecordInteraction(sess.Insights)

		res, err := s.loop.Run(ctx, loop.Input{
			Utterance:       utterance,
			Graph:           before,
			Insights:        s.tracker.Snapshot(sess.Insights),
			RecentQuestions: s.tracker.RecentQuestions(sess.Insights),
		})
		if err != nil {
			return fmt.Errorf("update graph: %w", err)
		}
		sess.Graph = res.Graph

		s.recordApplied(sess, before, res.Applied)
		if res.Question != nil {
			if s.tracker.RecordQuestion(sess.Insights, res.Question.ID) {
				out.Question = res.Question
			} else {
				logging.Debug("suppressed repeated question", "user", userID, "question", res.Question.ID)
			}
		}

		turn := insight.Event{
			Type: insight.EventTurnCompleted,
			Data: map[string]any{
				"utterance":  utterance,
				"iterations": res.Iterations,
				"partial":    res.Partial,
				"operations": len(res.Applied),
			},
			Duration: s.now().Sub(started),
		}
		s.tracker.LogEvent(sess.Insights, turn)

		out.Graph = viewOf(userID, res.Graph)
		out.Reply = res.Reply
		out.Iterations = res.Iterations
		out.Partial = res.Partial
		if res.Err != nil {
			out.Warning = res.Err.Error()
		}
		out.Applied = make([]string, 0, len(res.Applied))
		for _, op := range res.Applied {
			out.Applied = append(out.Applied, op.String())
		}
		out.Sequences = s.tracker.DetectSequences(sess.Insights, res.Graph)

		logging.ForUser(userID).Info("turn completed",
			"iterations", res.Iterations,
			"partial", res.Partial,
			"applied", len(res.Applied))
		return nil
	})
	return out, err
}

// recordApplied logs activity events for what a batch changed.
func (s *Service) recordApplied(sess *store.Session, before *graph.Graph, applied []graph.Operation) {
	for _, t := range sess.Graph.Tasks {
		if !before.HasTask(t) && !renamedTo(applied, t) {
			s.tracker.LogEvent(sess.Insights, insight.Event{
				Type:        insight.EventTaskCreated,
				Data:        map[string]any{"task": t},
				TaskContext: t,
			})
		}
	}
	for _, op := range applied {
		switch op := op.(type) {
		case graph.RenameTask:
			s.tracker.LogEvent(sess.Insights, insight.Event{
				Type:        insight.EventTaskRenamed,
				Data:        map[string]any{"old": op.Old, "new": op.New},
				TaskContext: op.New,
			})
		case graph.SaveSnapshot:
			s.tracker.SetPreference(sess.Insights, "last_routine", op.Name)
			s.tracker.LogEvent(sess.Insights, insight.Event{
				Type: insight.EventRoutineSaved,
				Data: map[string]any{"routine": op.Name, "tasks": len(sess.Graph.Tasks)},
			})
		case graph.RestoreSnapshot:
			s.tracker.SetPreference(sess.Insights, "last_routine", op.Name)
			s.tracker.LogEvent(sess.Insights, insight.Event{
				Type: insight.EventRoutineLoaded,
				Data: map[string]any{"routine": op.Name},
			})
		case graph.Clear:
			s.tracker.LogEvent(sess.Insights, insight.Event{Type: insight.EventGraphCleared})
		}
	}
}

func renamedTo(ops []graph.Operation, name string) bool {
	for _, op := range ops {
		if r, ok := op.(graph.RenameTask); ok && r.New == name {
			return true
		}
	}
	return false
}

// mutate applies one operation directly, bypassing the extractor.
func (s *Service) mutate(ctx context.Context, userID string, op graph.Operation) (GraphView, error) {
	if err := checkUserID(userID); err != nil {
		return GraphView{}, err
	}
	var view GraphView
	err := s.store.With(ctx, userID, func(sess *store.Session) error {
		before := sess.Graph
		next, _, err := s.engine.Apply(before, op)
		if err != nil {
			return err
		}
		sess.Graph = next
		s.recordApplied(sess, before, []graph.Operation{op})
		view = viewOf(userID, next)
		return nil
	})
	if err != nil {
		logging.ForUser(userID).Debug("direct mutation failed", "op", op.String(), "error", err)
	}
	return view, err
}

// ClearGraph resets the graph to Start. Saved routines survive.
func (s *Service) ClearGraph(ctx context.Context, userID string) (GraphView, error) {
	return s.mutate(ctx, userID, graph.Clear{})
}

// SaveRoutine stores the current graph under name.
func (s *Service) SaveRoutine(ctx context.Context, userID, name string) (GraphView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GraphView{}, NewAppError(ErrCodeInvalidInput, "routine name is empty", nil)
	}
	return s.mutate(ctx, userID, graph.SaveSnapshot{Name: name})
}

// LoadRoutine replaces the graph with the routine saved under name.
func (s *Service) LoadRoutine(ctx context.Context, userID, name string) (GraphView, error) {
	return s.mutate(ctx, userID, graph.RestoreSnapshot{Name: strings.TrimSpace(name)})
}

// RebuildGraph replaces tasks and edges wholesale.
func (s *Service) RebuildGraph(ctx context.Context, userID string, tasks []string, edges []graph.Edge) (GraphView, error) {
	return s.mutate(ctx, userID, graph.Rebuild{Tasks: tasks, Edges: edges})
}

// AddTask adds a task without going through the extractor. The name is
// normalized first.
func (s *Service) AddTask(ctx context.Context, userID, name, previous, label string) (GraphView, error) {
	norm := graph.NormalizeName(name)
	if norm == "" {
		return GraphView{}, NewAppError(ErrCodeInvalidInput, "task name is empty", nil)
	}
	return s.mutate(ctx, userID, graph.AddTask{Name: norm, Previous: previous, Label: label})
}

// RenameTask renames a task without going through the extractor. The new
// name is normalized first.
func (s *Service) RenameTask(ctx context.Context, userID, oldName, newName string) (GraphView, error) {
	return s.mutate(ctx, userID, graph.RenameTask{Old: oldName, New: graph.NormalizeName(newName)})
}

// ListRoutines describes the user's saved routines, sorted by name.
func (s *Service) ListRoutines(ctx context.Context, userID string) ([]RoutineInfo, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	var out []RoutineInfo
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		out = make([]RoutineInfo, 0, len(sess.Graph.Routines))
		for _, name := range sortedRoutines(sess.Graph) {
			snap := sess.Graph.Routines[name]
			out = append(out, RoutineInfo{Name: name, SavedAt: snap.SavedAt, TaskCount: len(snap.Tasks)})
		}
		return nil
	})
	return out, err
}

// ResetSession clears the graph and forgets everything learned about the
// user. Saved routines are kept.
func (s *Service) ResetSession(ctx context.Context, userID string) (GraphView, error) {
	if err := checkUserID(userID); err != nil {
		return GraphView{}, err
	}
	var view GraphView
	err := s.store.With(ctx, userID, func(sess *store.Session) error {
		next, _, err := s.engine.Apply(sess.Graph, graph.Clear{})
		if err != nil {
			return err
		}
		sess.Graph = next
		s.tracker.Reset(sess.Insights)
		view = viewOf(userID, next)
		return nil
	})
	return view, err
}

// Insights returns a copy of what has been learned about the user.
func (s *Service) Insights(ctx context.Context, userID string) (*insight.UserInsights, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	var out *insight.UserInsights
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		out = s.tracker.Snapshot(sess.Insights)
		return nil
	})
	return out, err
}

// ActivityReport summarizes the user's activity log and returns the events
// matching f, newest first.
func (s *Service) ActivityReport(ctx context.Context, userID string, f insight.Filter) (insight.Report, []insight.Event, error) {
	if err := checkUserID(userID); err != nil {
		return insight.Report{}, nil, err
	}
	var (
		report insight.Report
		events []insight.Event
	)
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		report = s.tracker.Report(sess.Insights)
		events = s.tracker.Query(sess.Insights, f)
		return nil
	})
	return report, events, err
}

// LogActivity appends a caller-supplied event to the activity log.
func (s *Service) LogActivity(ctx context.Context, userID string, e insight.Event) (insight.Event, error) {
	if err := checkUserID(userID); err != nil {
		return insight.Event{}, err
	}
	e.Type = strings.TrimSpace(e.Type)
	if e.Type == "" {
		return insight.Event{}, NewAppError(ErrCodeInvalidInput, "event type is empty", nil)
	}
	if e.Duration < 0 {
		return insight.Event{}, NewAppError(ErrCodeInvalidInput, "duration is negative", nil)
	}
	var logged insight.Event
	err := s.store.With(ctx, userID, func(sess *store.Session) error {
		logged = s.tracker.LogEvent(sess.Insights, e)
		return nil
	})
	return logged, err
}

// CreateGoal sets an activity goal for the user, replacing any goal of the
// same type.
func (s *Service) CreateGoal(ctx context.Context, userID, goalType string, target int) (insight.Goal, error) {
	if err := checkUserID(userID); err != nil {
		return insight.Goal{}, err
	}
	var goal insight.Goal
	err := s.store.With(ctx, userID, func(sess *store.Session) error {
		g, err := s.tracker.CreateGoal(sess.Insights, goalType, target)
		if err != nil {
			return NewAppError(ErrCodeInvalidInput, "invalid goal", err)
		}
		goal = g
		return nil
	})
	return goal, err
}

// Goals returns the user's goals with their current progress.
func (s *Service) Goals(ctx context.Context, userID string) ([]insight.GoalProgress, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	var goals []insight.GoalProgress
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		goals = s.tracker.Goals(sess.Insights)
		return nil
	})
	return goals, err
}

// ProductivityMetrics computes productivity figures from the activity log.
func (s *Service) ProductivityMetrics(ctx context.Context, userID string) (insight.Metrics, error) {
	if err := checkUserID(userID); err != nil {
		return insight.Metrics{}, err
	}
	var m insight.Metrics
	err := s.store.View(ctx, userID, func(sess *store.Session) error {
		m = s.tracker.Metrics(sess.Insights)
		return nil
	})
	return m, err
}
