package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskflow/internal/extractor"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/loop"
	"taskflow/internal/store"
	"taskflow/internal/tools"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sortEdges = cmpopts.SortSlices(func(a, b graph.Edge) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
})

type fixture struct {
	svc   *Service
	store *store.Store
}

func newFixture(t *testing.T, ex extractor.Extractor) fixture {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC) }
	engine := graph.NewEngine(graph.WithClock(clock))
	st := store.New(store.NewMemoryBackend())
	t.Cleanup(func() { _ = st.Close() })
	tracker := insight.NewTracker(24*time.Hour, 100, insight.WithClock(clock))
	lp := loop.New(ex, loop.WithEngine(engine), loop.WithTimeout(time.Second))
	return fixture{svc: NewService(st, lp, engine, tracker), store: st}
}

func TestUpdateGraphScenarios(t *testing.T) {
	ex := extractor.NewScripted(
		extractor.Ops("Coffee first.",
			graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen}),
		extractor.Ops("Renamed.",
			graph.RenameTask{Old: "MakeCoffee", New: "GrabCoffee"}),
		extractor.Ops("Face washed before coffee.",
			graph.InsertBetween{Name: "WashFace", Before: "Start", After: "GrabCoffee"}),
		extractor.Ops("Depends on the weather.",
			graph.AddTask{Name: "ReadBook", Previous: "Start", Label: "if raining"},
			graph.AddTask{Name: "Walk", Previous: "Start", Label: graph.LabelOtherwise}),
	)
	f := newFixture(t, ex)
	ctx := context.Background()

	steps := []struct {
		utterance string
		tasks     []string
		edges     []graph.Edge
		lastTask  string
	}{
		{
			utterance: "I'm making coffee",
			tasks:     []string{"Start", "MakeCoffee"},
			edges:     []graph.Edge{{From: "Start", To: "MakeCoffee", Label: "then"}},
			lastTask:  "MakeCoffee",
		},
		{
			utterance: "rename MakeCoffee to GrabCoffee",
			tasks:     []string{"Start", "GrabCoffee"},
			edges:     []graph.Edge{{From: "Start", To: "GrabCoffee", Label: "then"}},
			lastTask:  "GrabCoffee",
		},
		{
			utterance: "insert WashFace before GrabCoffee",
			tasks:     []string{"Start", "WashFace", "GrabCoffee"},
			edges: []graph.Edge{
				{From: "Start", To: "WashFace", Label: "then"},
				{From: "WashFace", To: "GrabCoffee", Label: "then"},
			},
			lastTask: "GrabCoffee",
		},
		{
			utterance: "if raining, read book; otherwise, walk",
			tasks:     []string{"Start", "WashFace", "GrabCoffee", "ReadBook", "Walk"},
			edges: []graph.Edge{
				{From: "Start", To: "WashFace", Label: "then"},
				{From: "WashFace", To: "GrabCoffee", Label: "then"},
				{From: "Start", To: "ReadBook", Label: "if raining"},
				{From: "Start", To: "Walk", Label: "otherwise"},
			},
			lastTask: "Walk",
		},
	}

	for _, step := range steps {
		res, err := f.svc.UpdateGraph(ctx, "ana", step.utterance)
		require.NoError(t, err, step.utterance)
		assert.False(t, res.Partial, step.utterance)
		assert.Empty(t, res.Warning, step.utterance)
		assert.Equal(t, 1, res.Iterations, step.utterance)
		assert.Equal(t, step.tasks, res.Graph.Tasks, step.utterance)
		if diff := cmp.Diff(step.edges, res.Graph.Edges, sortEdges); diff != "" {
			t.Errorf("%s: edges mismatch (-want +got):\n%s", step.utterance, diff)
		}
		assert.Equal(t, step.lastTask, res.Graph.LastTask, step.utterance)
	}

	view, err := f.svc.GetGraph(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, steps[len(steps)-1].tasks, view.Tasks)
	assert.NotContains(t, view.Edges, graph.Edge{From: "Start", To: "GrabCoffee", Label: "then"})
}

func TestUpdateGraphDuplicateAddIsNoOp(t *testing.T) {
	add := graph.AddTask{Name: "MakeCoffee", Previous: "Start", Label: graph.LabelThen}
	ex := extractor.NewScripted(
		extractor.Ops("Coffee first.", add),
		extractor.Ops("Already there.", add),
	)
	f := newFixture(t, ex)
	ctx := context.Background()

	first, err := f.svc.UpdateGraph(ctx, "ben", "I'm making coffee")
	require.NoError(t, err)

	second, err := f.svc.UpdateGraph(ctx, "ben", "I'm making coffee")
	require.NoError(t, err)
	assert.False(t, second.Partial)
	assert.Equal(t, 1, second.Iterations)
	if diff := cmp.Diff(first.Graph, second.Graph); diff != "" {
		t.Errorf("graph changed (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{add.String()}, second.Applied)
}

func TestUpdateGraphCorrectsRejectedProposal(t *testing.T) {
	ex := extractor.NewScripted(
		extractor.Ops("", graph.AddTask{Name: "make coffee", Label: graph.LabelThen}),
		extractor.Ops("Fixed.", graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen}),
	)
	f := newFixture(t, ex)

	res, err := f.svc.UpdateGraph(context.Background(), "cleo", "I'm making coffee")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "Fixed.", res.Reply)
	assert.Equal(t, []string{"Start", "MakeCoffee"}, res.Graph.Tasks)

	reqs := ex.Requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[1].Correction)
	assert.Contains(t, reqs[1].Correction.Expected, "MakeCoffee")
}

func TestUpdateGraphFatalLeavesSessionUntouched(t *testing.T) {
	ex := extractor.NewScripted(
		extractor.Ops("Coffee first.", graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen}),
		extractor.Fail(fmt.Errorf("%w: dial tcp: connection refused", extractor.ErrServiceUnreachable)),
	)
	f := newFixture(t, ex)
	ctx := context.Background()

	_, err := f.svc.UpdateGraph(ctx, "dee", "I'm making coffee")
	require.NoError(t, err)
	before, err := f.svc.Insights(ctx, "dee")
	require.NoError(t, err)

	_, err = f.svc.UpdateGraph(ctx, "dee", "then I'm walking the dog")
	require.Error(t, err)
	assert.True(t, errors.Is(err, extractor.ErrExtractorUnavailable))
	assert.Equal(t, ErrCodeUnavailable, CodeOf(err))

	view, err := f.svc.GetGraph(ctx, "dee")
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "MakeCoffee"}, view.Tasks)

	after, err := f.svc.Insights(ctx, "dee")
	require.NoError(t, err)
	assert.Equal(t, before.Interactions, after.Interactions)
}

func TestUpdateGraphPartialAtCap(t *testing.T) {
	var calls int
	ex := extractor.Func(func(_ context.Context, req extractor.Request) (extractor.Proposal, error) {
		calls++
		if calls == 1 {
			return extractor.Proposal{Operations: []graph.Operation{
				graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen},
				graph.AddTask{Name: "WalkDog", Label: graph.LabelThen},
			}}, nil
		}
		return extractor.Proposal{Operations: []graph.Operation{
			graph.AddTask{Name: "walk dog", Label: graph.LabelThen},
		}}, nil
	})
	f := newFixture(t, ex)

	res, err := f.svc.UpdateGraph(context.Background(), "eli", "I'm making coffee, then walking the dog")
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 5, res.Iterations)
	assert.Contains(t, res.Warning, "iteration cap exceeded")
	assert.Equal(t, []string{"Start", "MakeCoffee", "WalkDog"}, res.Graph.Tasks)
	assert.Len(t, res.Applied, 2)
}

func TestUpdateGraphQuestionAskedOnce(t *testing.T) {
	q := &tools.Question{ID: "wake_time", Text: "When do you usually wake up?"}
	ask := extractor.Respond(extractor.Proposal{Reply: "Sure.", Question: q, Done: true})
	f := newFixture(t, extractor.NewScripted(ask, ask))
	ctx := context.Background()

	first, err := f.svc.UpdateGraph(ctx, "fay", "plan my morning")
	require.NoError(t, err)
	require.NotNil(t, first.Question)
	assert.Equal(t, "wake_time", first.Question.ID)

	second, err := f.svc.UpdateGraph(ctx, "fay", "plan my morning")
	require.NoError(t, err)
	assert.Nil(t, second.Question)

	ins, err := f.svc.Insights(ctx, "fay")
	require.NoError(t, err)
	assert.Equal(t, 2, ins.Interactions)
	assert.Contains(t, ins.AskedQuestions, "wake_time")
}

func TestUpdateGraphRejectsBadInput(t *testing.T) {
	f := newFixture(t, extractor.NewScripted())
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    string
		utterance string
	}{
		{name: "empty user", userID: "", utterance: "hello"},
		{name: "blank user", userID: "   ", utterance: "hello"},
		{name: "slash in user", userID: "a/b", utterance: "hello"},
		{name: "empty utterance", userID: "gus", utterance: "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateGraph(ctx, tt.userID, tt.utterance)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))
		})
	}
}

func TestDirectMutators(t *testing.T) {
	f := newFixture(t, extractor.NewScripted())
	ctx := context.Background()
	const user = "hal"

	view, err := f.svc.AddTask(ctx, user, "make coffee", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "MakeCoffee"}, view.Tasks)

	_, err = f.svc.AddTask(ctx, user, "walk dog", "MakeCoffee", graph.LabelThen)
	require.NoError(t, err)

	view, err = f.svc.RenameTask(ctx, user, "WalkDog", "walk the dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "MakeCoffee", "WalkTheDog"}, view.Tasks)

	view, err = f.svc.SaveRoutine(ctx, user, "weekday")
	require.NoError(t, err)
	assert.Equal(t, []string{"weekday"}, view.Routines)

	view, err = f.svc.ClearGraph(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"Start"}, view.Tasks)
	assert.Equal(t, []string{"weekday"}, view.Routines)

	view, err = f.svc.LoadRoutine(ctx, user, "weekday")
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "MakeCoffee", "WalkTheDog"}, view.Tasks)

	_, err = f.svc.LoadRoutine(ctx, user, "weekend")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))

	_, err = f.svc.RenameTask(ctx, user, "MakeCoffee", "WalkTheDog")
	require.Error(t, err)
	assert.Equal(t, ErrCodeConflict, CodeOf(err))

	_, err = f.svc.AddTask(ctx, user, "stretch", "Shower", "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))

	view, err = f.svc.RebuildGraph(ctx, user,
		[]string{"Start", "Stretch", "Shower"},
		[]graph.Edge{
			{From: "Start", To: "Stretch", Label: "then"},
			{From: "Stretch", To: "Shower", Label: "then"},
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "Stretch", "Shower"}, view.Tasks)
	assert.Equal(t, []string{"weekday"}, view.Routines)

	routines, err := f.svc.ListRoutines(ctx, user)
	require.NoError(t, err)
	require.Len(t, routines, 1)
	assert.Equal(t, "weekday", routines[0].Name)
	assert.Equal(t, 3, routines[0].TaskCount)

	ins, err := f.svc.Insights(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "weekday", ins.Preferences["last_routine"])
}

func TestResetSessionKeepsRoutines(t *testing.T) {
	f := newFixture(t, extractor.NewScripted())
	ctx := context.Background()
	const user = "ivy"

	_, err := f.svc.AddTask(ctx, user, "MakeCoffee", "", "")
	require.NoError(t, err)
	_, err = f.svc.SaveRoutine(ctx, user, "daily")
	require.NoError(t, err)

	view, err := f.svc.ResetSession(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"Start"}, view.Tasks)
	assert.Equal(t, []string{"daily"}, view.Routines)

	ins, err := f.svc.Insights(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, ins.Activity)
	assert.Empty(t, ins.Preferences)
}

func TestActivity(t *testing.T) {
	ex := extractor.NewScripted(
		extractor.Ops("Coffee first.", graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen}),
	)
	f := newFixture(t, ex)
	ctx := context.Background()
	const user = "jo"

	_, err := f.svc.UpdateGraph(ctx, user, "I'm making coffee")
	require.NoError(t, err)
	_, err = f.svc.SaveRoutine(ctx, user, "morning")
	require.NoError(t, err)

	logged, err := f.svc.LogActivity(ctx, user, insight.Event{
		Type:        "task_completed",
		TaskContext: "MakeCoffee",
		Duration:    4 * time.Minute,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, logged.ID)

	_, err = f.svc.LogActivity(ctx, user, insight.Event{Type: " "})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))

	report, events, err := f.svc.ActivityReport(ctx, user, insight.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalEvents)
	assert.Equal(t, 1, report.TasksCreated)
	assert.Equal(t, 1, report.Interactions)
	assert.Equal(t, map[string]int{
		insight.EventTaskCreated:   1,
		insight.EventTurnCompleted: 1,
		insight.EventRoutineSaved:  1,
		"task_completed":           1,
	}, report.ByType)

	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"task_completed",
		insight.EventRoutineSaved,
		insight.EventTurnCompleted,
		insight.EventTaskCreated,
	}, types)

	_, filtered, err := f.svc.ActivityReport(ctx, user, insight.Filter{Type: insight.EventTaskCreated})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "MakeCoffee", filtered[0].TaskContext)
}

func TestGoalsAndMetrics(t *testing.T) {
	ex := extractor.NewScripted(
		extractor.Ops("Coffee first.", graph.AddTask{Name: "MakeCoffee", Label: graph.LabelThen}),
	)
	f := newFixture(t, ex)
	ctx := context.Background()
	const user = "kai"

	_, err := f.svc.UpdateGraph(ctx, user, "I'm making coffee")
	require.NoError(t, err)

	daily, err := f.svc.CreateGoal(ctx, user, insight.GoalDailyTasks, 1)
	require.NoError(t, err)
	turns, err := f.svc.CreateGoal(ctx, user, insight.GoalDailyTurns, 2)
	require.NoError(t, err)

	invalid := []struct {
		name     string
		user     string
		goalType string
		target   int
	}{
		{name: "unknown type", user: user, goalType: "nap", target: 1},
		{name: "zero target", user: user, goalType: insight.GoalDailyTasks, target: 0},
		{name: "empty user", user: "", goalType: insight.GoalDailyTasks, target: 1},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateGoal(ctx, tt.user, tt.goalType, tt.target)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))
		})
	}

	goals, err := f.svc.Goals(ctx, user)
	require.NoError(t, err)
	want := []insight.GoalProgress{
		{Goal: daily, Progress: 1, Achieved: true},
		{Goal: turns, Progress: 1, Achieved: false},
	}
	if diff := cmp.Diff(want, goals); diff != "" {
		t.Errorf("goals mismatch (-want +got):\n%s", diff)
	}

	m, err := f.svc.ProductivityMetrics(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TasksToday)
	assert.Equal(t, 1, m.ActiveDays)
	assert.Equal(t, 1, m.StreakDays)
	assert.Equal(t, 2, m.GoalsTotal)
	assert.Equal(t, 1, m.GoalsAchieved)
	assert.InDelta(t, 0.5, m.GoalCompletion, 1e-9)

	_, err = f.svc.ResetSession(ctx, user)
	require.NoError(t, err)
	goals, err = f.svc.Goals(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil", err: nil, want: ErrCodeUnknown},
		{name: "app error", err: NewAppError(ErrCodeInvalidInput, "bad", nil), want: ErrCodeInvalidInput},
		{name: "wrapped app error", err: fmt.Errorf("handler: %w", NewAppError(ErrCodeConflict, "dup", nil)), want: ErrCodeConflict},
		{name: "invalid reference", err: fmt.Errorf("add_task: %w", graph.ErrInvalidReference), want: ErrCodeInvalidInput},
		{name: "conflict", err: fmt.Errorf("rename_task: %w", graph.ErrConflict), want: ErrCodeConflict},
		{name: "not found", err: fmt.Errorf("restore_snapshot: %w", graph.ErrNotFound), want: ErrCodeNotFound},
		{name: "unreachable", err: extractor.ErrServiceUnreachable, want: ErrCodeUnavailable},
		{name: "store closed", err: store.ErrClosed, want: ErrCodeUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrCodeTimeout},
		{name: "cancelled", err: context.Canceled, want: ErrCodeCancelled},
		{name: "other", err: errors.New("boom"), want: ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
