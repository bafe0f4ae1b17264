package graph

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

func mustApply(t *testing.T, e *Engine, g *Graph, ops ...Operation) *Graph {
	t.Helper()
	for _, op := range ops {
		next, _, err := e.Apply(g, op)
		require.NoError(t, err, "apply %s", op)
		g = next
	}
	return g
}

func TestAddTask(t *testing.T) {
	e := newTestEngine()

	t.Run("defaults previous to last task", func(t *testing.T) {
		g := mustApply(t, e, New(),
			AddTask{Name: "MakeCoffee", Label: LabelThen},
			AddTask{Name: "ReadNews", Label: LabelThen},
		)
		assert.Equal(t, []string{"Start", "MakeCoffee", "ReadNews"}, g.Tasks)
		assert.Equal(t, []Edge{
			{From: "Start", To: "MakeCoffee", Label: "then"},
			{From: "MakeCoffee", To: "ReadNews", Label: "then"},
		}, g.Edges)
		assert.Equal(t, "ReadNews", g.LastTask)
	})

	t.Run("existing node still gets the edge", func(t *testing.T) {
		g := mustApply(t, e, New(),
			AddTask{Name: "A"},
			AddTask{Name: "B", Previous: "Start"},
			AddTask{Name: "B", Previous: "A", Label: LabelThen},
		)
		assert.Equal(t, []string{"Start", "A", "B"}, g.Tasks)
		assert.Len(t, g.Edges, 3)
		assert.Equal(t, "B", g.LastTask)
	})

	t.Run("unknown previous", func(t *testing.T) {
		before := New()
		after, _, err := e.Apply(before, AddTask{Name: "A", Previous: "Nope"})
		require.ErrorIs(t, err, ErrInvalidReference)
		assert.Same(t, before, after)
	})

	t.Run("self edge and Start rejected", func(t *testing.T) {
		g := mustApply(t, e, New(), AddTask{Name: "A"})
		_, _, err := e.Apply(g, AddTask{Name: "A", Previous: "A"})
		assert.ErrorIs(t, err, ErrInvalidReference)
		_, _, err = e.Apply(g, AddTask{Name: StartTask})
		assert.ErrorIs(t, err, ErrInvalidReference)
		_, _, err = e.Apply(g, AddTask{Name: ""})
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
}

func TestAddTaskIdempotent(t *testing.T) {
	e := newTestEngine()
	base := mustApply(t, e, New(), AddTask{Name: "A", Label: "then"}, AddTask{Name: "B", Label: "then"})

	op := AddTask{Name: "C", Previous: "A", Label: "while"}
	once := mustApply(t, e, base, op)
	twice := mustApply(t, e, once, op)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second application changed the graph (-once +twice):\n%s", diff)
	}
}

func TestRenameTask(t *testing.T) {
	e := newTestEngine()
	base := mustApply(t, e, New(),
		AddTask{Name: "MakeCoffee", Label: "then"},
		AddTask{Name: "ReadNews", Label: "then"},
		AddTask{Name: "MakeCoffee", Previous: "ReadNews", Label: "afterwards"},
	)

	t.Run("rewrites endpoints and keeps position", func(t *testing.T) {
		g := mustApply(t, e, base, RenameTask{Old: "MakeCoffee", New: "GrabCoffee"})
		assert.Equal(t, []string{"Start", "GrabCoffee", "ReadNews"}, g.Tasks)
		assert.Len(t, g.Tasks, len(base.Tasks))
		for _, edge := range g.Edges {
			assert.NotEqual(t, "MakeCoffee", edge.From)
			assert.NotEqual(t, "MakeCoffee", edge.To)
		}
		assert.True(t, g.HasEdge(Edge{From: "Start", To: "GrabCoffee", Label: "then"}))
		assert.True(t, g.HasEdge(Edge{From: "ReadNews", To: "GrabCoffee", Label: "afterwards"}))
		assert.Equal(t, "GrabCoffee", g.LastTask)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		g := mustApply(t, e, base, RenameTask{Old: "ReadNews", New: "ReadNews"})
		assert.Empty(t, cmp.Diff(base, g))
	})

	tests := []struct {
		name string
		op   RenameTask
		want error
	}{
		{"missing source", RenameTask{Old: "Nope", New: "X"}, ErrNotFound},
		{"target exists", RenameTask{Old: "MakeCoffee", New: "ReadNews"}, ErrConflict},
		{"start is fixed", RenameTask{Old: StartTask, New: "Begin"}, ErrConflict},
		{"empty target", RenameTask{Old: "MakeCoffee", New: ""}, ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := e.Apply(base, tt.op)
			require.ErrorIs(t, err, tt.want)
			assert.Same(t, base, got)
		})
	}
}

func TestInsertBetween(t *testing.T) {
	e := newTestEngine()
	base := mustApply(t, e, New(), AddTask{Name: "GrabCoffee", Label: "then"})

	g := mustApply(t, e, base, InsertBetween{Name: "WashFace", Before: "Start", After: "GrabCoffee"})
	assert.Equal(t, []string{"Start", "WashFace", "GrabCoffee"}, g.Tasks)
	assert.Equal(t, []Edge{
		{From: "Start", To: "WashFace", Label: "then"},
		{From: "WashFace", To: "GrabCoffee", Label: "then"},
	}, g.Edges)
	assert.False(t, g.Connected("Start", "GrabCoffee"))
	assert.Equal(t, "GrabCoffee", g.LastTask)

	t.Run("removes every parallel direct edge", func(t *testing.T) {
		multi := mustApply(t, e, base, AddTask{Name: "GrabCoffee", Previous: "Start", Label: "while"})
		require.Len(t, multi.Edges, 2)
		out := mustApply(t, e, multi, InsertBetween{Name: "X", Before: "Start", After: "GrabCoffee", LabelOut: "while"})
		assert.False(t, out.Connected("Start", "GrabCoffee"))
		assert.True(t, out.HasEdge(Edge{From: "X", To: "GrabCoffee", Label: "while"}))
	})

	tests := []struct {
		name string
		op   InsertBetween
		want error
	}{
		{"unknown before", InsertBetween{Name: "X", Before: "Nope", After: "GrabCoffee"}, ErrInvalidReference},
		{"unknown after", InsertBetween{Name: "X", Before: "Start", After: "Nope"}, ErrInvalidReference},
		{"not connected", InsertBetween{Name: "X", Before: "GrabCoffee", After: "Start"}, ErrInvalidReference},
		{"name exists", InsertBetween{Name: "GrabCoffee", Before: "Start", After: "GrabCoffee"}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := e.Apply(base, tt.op)
			require.ErrorIs(t, err, tt.want)
			assert.Same(t, base, got)
		})
	}
}

func TestReorder(t *testing.T) {
	e := newTestEngine()
	base := mustApply(t, e, New(), AddTask{Name: "A", Label: "then"}, AddTask{Name: "B", Label: "then"})

	g := mustApply(t, e, base, Reorder{Order: []string{"Start", "B", "A"}})
	assert.Equal(t, []string{"Start", "B", "A"}, g.Tasks)
	assert.Equal(t, base.Edges, g.Edges)

	for _, order := range [][]string{
		{"Start", "A"},
		{"Start", "A", "A"},
		{"Start", "A", "C"},
	} {
		_, _, err := e.Apply(base, Reorder{Order: order})
		assert.ErrorIs(t, err, ErrInvalidReference, "order %v", order)
	}
}

// Reorder and insert never check acyclicity. This test pins down that a cycle
// can be produced so any future change to that policy is deliberate.
func TestCyclesAreNotPrevented(t *testing.T) {
	e := newTestEngine()
	g := mustApply(t, e, New(),
		AddTask{Name: "A", Label: "then"},
		AddTask{Name: "B", Label: "then"},
		AddTask{Name: "A", Previous: "B", Label: "then"},
	)
	assert.True(t, g.HasCycle())

	g = mustApply(t, e, g, Reorder{Order: []string{"B", "A", "Start"}})
	assert.NoError(t, g.Check())
	assert.True(t, g.HasCycle())
}

func TestClearKeepsRoutines(t *testing.T) {
	e := newTestEngine()
	g := mustApply(t, e, New(),
		AddTask{Name: "A", Label: "then"},
		SaveSnapshot{Name: "morning"},
		Clear{},
	)
	assert.Equal(t, []string{"Start"}, g.Tasks)
	assert.Empty(t, g.Edges)
	assert.Equal(t, StartTask, g.LastTask)
	assert.Contains(t, g.Routines, "morning")
}

func TestSnapshots(t *testing.T) {
	e := newTestEngine()
	g := mustApply(t, e, New(),
		AddTask{Name: "A", Label: "then"},
		AddTask{Name: "B", Label: "then"},
		SaveSnapshot{Name: "morning"},
	)
	snap := g.Routines["morning"]
	assert.Equal(t, fixedNow, snap.SavedAt)
	assert.Equal(t, []string{"Start", "A", "B"}, snap.Tasks)

	g = mustApply(t, e, g, Clear{}, AddTask{Name: "C"})
	restored := mustApply(t, e, g, RestoreSnapshot{Name: "morning"})
	assert.Equal(t, []string{"Start", "A", "B"}, restored.Tasks)
	assert.Equal(t, "B", restored.LastTask)

	// Mutating the restored graph must not reach into the snapshot.
	restored.Tasks[1] = "Mutated"
	assert.Equal(t, "A", restored.Routines["morning"].Tasks[1])

	_, _, err := e.Apply(g, RestoreSnapshot{Name: "evening"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = e.Apply(g, SaveSnapshot{Name: ""})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestRestoreSnapshotLastTask(t *testing.T) {
	e := newTestEngine()
	saved := func(t *testing.T) *Graph {
		return mustApply(t, e, New(),
			AddTask{Name: "A", Label: "then"},
			AddTask{Name: "B", Label: "then"},
			SaveSnapshot{Name: "morning"},
		)
	}

	tests := []struct {
		name  string
		setup func(t *testing.T, g *Graph) *Graph
		want  string
	}{
		{
			name: "cursor on a task the routine has",
			setup: func(t *testing.T, g *Graph) *Graph {
				g.LastTask = "A"
				return g
			},
			want: "A",
		},
		{
			name: "cursor on a task the routine lacks",
			setup: func(t *testing.T, g *Graph) *Graph {
				return mustApply(t, e, g, Clear{}, AddTask{Name: "C"})
			},
			want: "B",
		},
		{
			name: "cursor on start after clear",
			setup: func(t *testing.T, g *Graph) *Graph {
				return mustApply(t, e, g, Clear{})
			},
			want: "B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup(t, saved(t))
			restored := mustApply(t, e, g, RestoreSnapshot{Name: "morning"})
			assert.Equal(t, tt.want, restored.LastTask)
			require.NoError(t, restored.Check())
		})
	}
}

func TestRebuild(t *testing.T) {
	e := newTestEngine()

	g := mustApply(t, e, New(), Rebuild{
		Tasks: []string{"A", "B"},
		Edges: []Edge{{"Start", "A", "then"}, {"A", "B", "while"}, {"A", "B", "while"}},
	})
	assert.Equal(t, []string{"Start", "A", "B"}, g.Tasks)
	assert.Len(t, g.Edges, 2)
	assert.Equal(t, "B", g.LastTask)

	_, _, err := e.Apply(New(), Rebuild{Tasks: []string{"A", "A"}})
	assert.ErrorIs(t, err, ErrConflict)
	_, _, err = e.Apply(New(), Rebuild{Tasks: []string{"A"}, Edges: []Edge{{"A", "Z", ""}}})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestApplyAllSequentialConsistency(t *testing.T) {
	e := newTestEngine()
	g := mustApply(t, e, New(), AddTask{Name: "GrabCoffee", Label: "then"})

	out, failed, err := e.ApplyAll(g, []Operation{
		AddTask{Name: "ReadNews", Label: "then"},
		InsertBetween{Name: "Stretch", Before: "GrabCoffee", After: "ReadNews"},
	})
	require.NoError(t, err)
	assert.Equal(t, -1, failed)
	assert.Equal(t, []string{"Start", "GrabCoffee", "Stretch", "ReadNews"}, out.Tasks)

	partial, failed, err := e.ApplyAll(g, []Operation{
		AddTask{Name: "ReadNews", Label: "then"},
		RenameTask{Old: "Nope", New: "X"},
		AddTask{Name: "Never"},
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, failed)
	assert.True(t, partial.HasTask("ReadNews"))
	assert.False(t, partial.HasTask("Never"))
}

func TestInvariantsUnderRandomOperations(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(42))
	names := []string{"A", "B", "C", "D", "E", "Start"}
	labels := []string{"", "then", "while", "if rain", "otherwise", "either way"}
	pick := func(xs []string) string { return xs[rng.Intn(len(xs))] }

	g := New()
	for i := 0; i < 2000; i++ {
		var op Operation
		switch rng.Intn(8) {
		case 0, 1, 2:
			op = AddTask{Name: pick(names), Previous: pick(append(names, "")), Label: pick(labels)}
		case 3:
			op = RenameTask{Old: pick(names), New: pick(names) + pick([]string{"", "2"})}
		case 4:
			op = InsertBetween{Name: pick(names) + "X", Before: pick(names), After: pick(names)}
		case 5:
			order := append([]string(nil), g.Tasks...)
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			op = Reorder{Order: order}
		case 6:
			op = SaveSnapshot{Name: pick([]string{"r1", "r2"})}
		default:
			if rng.Intn(4) == 0 {
				op = Clear{}
			} else {
				op = RestoreSnapshot{Name: pick([]string{"r1", "r2"})}
			}
		}
		next, _, err := e.Apply(g, op)
		if err != nil {
			assert.Same(t, g, next)
			continue
		}
		require.NoError(t, next.Check(), "after %s", op)
		g = next
	}
}

func TestApplyRejectsNil(t *testing.T) {
	e := newTestEngine()
	g := New()
	got, _, err := e.Apply(g, nil)
	require.ErrorIs(t, err, ErrInvalidReference)
	assert.Same(t, g, got)
}
