package graph

import (
	"fmt"
	"time"
)

// Engine is the only code path that mutates a Graph. Every Apply works on a
// deep clone and returns the input untouched on failure.
type Engine struct {
	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used to timestamp snapshots.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply executes op against g and returns the resulting graph together with
// its rendering. On error the returned graph is g itself.
func (e *Engine) Apply(g *Graph, op Operation) (*Graph, string, error) {
	if g == nil {
		g = New()
	}
	next := g.Clone()

	var err error
	switch op := op.(type) {
	case AddTask:
		err = next.addTask(op)
	case RenameTask:
		err = next.renameTask(op)
	case InsertBetween:
		err = next.insertBetween(op)
	case Reorder:
		err = next.reorder(op)
	case Clear:
		next.clear()
	case SaveSnapshot:
		err = next.saveSnapshot(op, e.now())
	case RestoreSnapshot:
		err = next.restoreSnapshot(op)
	case Rebuild:
		err = next.rebuild(op)
	case nil:
		err = fmt.Errorf("%w: nil operation", ErrInvalidReference)
	default:
		err = fmt.Errorf("%w: unsupported operation %T", ErrInvalidReference, op)
	}
	if err != nil {
		return g, Render(g), fmt.Errorf("%s: %w", kindOf(op), err)
	}
	if err := next.Check(); err != nil {
		return g, Render(g), fmt.Errorf("%s: post-condition: %w", kindOf(op), err)
	}
	return next, Render(next), nil
}

func kindOf(op Operation) Kind {
	if op == nil {
		return "unknown"
	}
	return op.Kind()
}

// ApplyAll applies ops in order, each one seeing the effects of the previous.
// It stops at the first failure and returns the graph as of the last success
// together with the index of the failing operation (or -1).
func (e *Engine) ApplyAll(g *Graph, ops []Operation) (*Graph, int, error) {
	cur := g
	for i, op := range ops {
		next, _, err := e.Apply(cur, op)
		if err != nil {
			return cur, i, err
		}
		cur = next
	}
	return cur, -1, nil
}

func (g *Graph) addTask(op AddTask) error {
	if op.Name == "" {
		return fmt.Errorf("%w: task name is empty", ErrInvalidReference)
	}
	if op.Name == StartTask {
		return fmt.Errorf("%w: %s cannot be added as a task", ErrInvalidReference, StartTask)
	}
	prev := op.Previous
	if prev == "" {
		prev = g.LastTask
	}
	if !g.HasTask(prev) {
		return fmt.Errorf("%w: previous task %q does not exist", ErrInvalidReference, prev)
	}
	if prev == op.Name {
		return fmt.Errorf("%w: task %q cannot follow itself", ErrInvalidReference, op.Name)
	}

	if !g.HasTask(op.Name) {
		g.Tasks = append(g.Tasks, op.Name)
	}
	edge := Edge{From: prev, To: op.Name, Label: op.Label}
	if !g.HasEdge(edge) {
		g.Edges = append(g.Edges, edge)
	}
	g.LastTask = op.Name
	return nil
}

func (g *Graph) renameTask(op RenameTask) error {
	idx := g.IndexOf(op.Old)
	if op.Old == "" || idx < 0 {
		return fmt.Errorf("%w: task %q", ErrNotFound, op.Old)
	}
	if op.New == "" {
		return fmt.Errorf("%w: new name is empty", ErrInvalidReference)
	}
	if op.New == op.Old {
		return nil
	}
	if op.Old == StartTask {
		return fmt.Errorf("%w: %s cannot be renamed", ErrConflict, StartTask)
	}
	if g.HasTask(op.New) {
		return fmt.Errorf("%w: task %q already exists", ErrConflict, op.New)
	}

	g.Tasks[idx] = op.New
	edges := make([]Edge, 0, len(g.Edges))
	seen := make(map[Edge]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if e.From == op.Old {
			e.From = op.New
		}
		if e.To == op.Old {
			e.To = op.New
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	g.Edges = edges
	if g.LastTask == op.Old {
		g.LastTask = op.New
	}
	return nil
}

func (g *Graph) insertBetween(op InsertBetween) error {
	if op.Name == "" {
		return fmt.Errorf("%w: task name is empty", ErrInvalidReference)
	}
	if !g.HasTask(op.Before) {
		return fmt.Errorf("%w: task %q does not exist", ErrInvalidReference, op.Before)
	}
	if !g.HasTask(op.After) {
		return fmt.Errorf("%w: task %q does not exist", ErrInvalidReference, op.After)
	}
	if !g.Connected(op.Before, op.After) {
		return fmt.Errorf("%w: %q is not directly connected to %q", ErrInvalidReference, op.Before, op.After)
	}
	if g.HasTask(op.Name) {
		return fmt.Errorf("%w: task %q already exists", ErrConflict, op.Name)
	}

	labelIn, labelOut := op.LabelIn, op.LabelOut
	if labelIn == "" {
		labelIn = LabelThen
	}
	if labelOut == "" {
		labelOut = LabelThen
	}

	edges := make([]Edge, 0, len(g.Edges)+1)
	for _, e := range g.Edges {
		if e.From == op.Before && e.To == op.After {
			continue
		}
		edges = append(edges, e)
	}
	edges = append(edges,
		Edge{From: op.Before, To: op.Name, Label: labelIn},
		Edge{From: op.Name, To: op.After, Label: labelOut},
	)
	g.Edges = edges

	at := g.IndexOf(op.After)
	tasks := make([]string, 0, len(g.Tasks)+1)
	tasks = append(tasks, g.Tasks[:at]...)
	tasks = append(tasks, op.Name)
	tasks = append(tasks, g.Tasks[at:]...)
	g.Tasks = tasks
	return nil
}

func (g *Graph) reorder(op Reorder) error {
	if len(op.Order) != len(g.Tasks) {
		return fmt.Errorf("%w: order has %d tasks, graph has %d", ErrInvalidReference, len(op.Order), len(g.Tasks))
	}
	counts := make(map[string]int, len(g.Tasks))
	for _, t := range g.Tasks {
		counts[t]++
	}
	for _, t := range op.Order {
		counts[t]--
		if counts[t] < 0 {
			return fmt.Errorf("%w: %q is not a task or appears twice", ErrInvalidReference, t)
		}
	}
	g.Tasks = append([]string(nil), op.Order...)
	return nil
}

func (g *Graph) clear() {
	g.Tasks = []string{StartTask}
	g.Edges = []Edge{}
	g.LastTask = StartTask
}

func (g *Graph) saveSnapshot(op SaveSnapshot, at time.Time) error {
	if op.Name == "" {
		return fmt.Errorf("%w: routine name is empty", ErrInvalidReference)
	}
	if g.Routines == nil {
		g.Routines = make(map[string]Snapshot)
	}
	g.Routines[op.Name] = Snapshot{
		Tasks:   append([]string(nil), g.Tasks...),
		Edges:   append([]Edge{}, g.Edges...),
		SavedAt: at,
	}
	return nil
}

func (g *Graph) restoreSnapshot(op RestoreSnapshot) error {
	snap, ok := g.Routines[op.Name]
	if !ok {
		return fmt.Errorf("%w: routine %q", ErrNotFound, op.Name)
	}
	restored := snap.clone()
	g.Tasks = restored.Tasks
	g.Edges = restored.Edges
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	if len(g.Tasks) == 0 {
		g.Tasks = []string{StartTask}
	}
	// Keep the cursor where it was when the routine still has that task.
	if g.LastTask == StartTask || !g.HasTask(g.LastTask) {
		g.LastTask = g.Tasks[len(g.Tasks)-1]
	}
	return nil
}

func (g *Graph) rebuild(op Rebuild) error {
	tasks := make([]string, 0, len(op.Tasks)+1)
	seen := make(map[string]struct{}, len(op.Tasks)+1)
	hasStart := false
	for _, t := range op.Tasks {
		if t == StartTask {
			hasStart = true
			break
		}
	}
	if !hasStart {
		tasks = append(tasks, StartTask)
		seen[StartTask] = struct{}{}
	}
	for _, t := range op.Tasks {
		if t == "" {
			return fmt.Errorf("%w: task name is empty", ErrInvalidReference)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: task %q listed twice", ErrConflict, t)
		}
		seen[t] = struct{}{}
		tasks = append(tasks, t)
	}

	edges := make([]Edge, 0, len(op.Edges))
	seenEdges := make(map[Edge]struct{}, len(op.Edges))
	for _, e := range op.Edges {
		if _, ok := seen[e.From]; !ok {
			return fmt.Errorf("%w: edge %s has unknown source", ErrInvalidReference, e)
		}
		if _, ok := seen[e.To]; !ok {
			return fmt.Errorf("%w: edge %s has unknown target", ErrInvalidReference, e)
		}
		if _, dup := seenEdges[e]; dup {
			continue
		}
		seenEdges[e] = struct{}{}
		edges = append(edges, e)
	}

	g.Tasks = tasks
	g.Edges = edges
	g.LastTask = tasks[len(tasks)-1]
	return nil
}
