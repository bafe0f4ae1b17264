package graph

import (
	"errors"
	"fmt"
	"time"
)

// StartTask is the synthetic root every graph carries.
const StartTask = "Start"

var (
	// ErrInvalidReference means an operation referred to a task that does not exist
	// or to tasks that are not connected the way the operation requires.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrConflict means a rename or insert would collide with an existing task.
	ErrConflict = errors.New("conflict")

	// ErrNotFound means a rename source or snapshot name is absent.
	ErrNotFound = errors.New("not found")
)

// Edge is a labeled transition between two tasks.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

func (e Edge) String() string {
	if e.Label == "" {
		return e.From + " -> " + e.To
	}
	return fmt.Sprintf("%s -[%s]-> %s", e.From, e.Label, e.To)
}

// Snapshot is an immutable saved copy of a graph's tasks and edges.
type Snapshot struct {
	Tasks   []string  `json:"tasks"`
	Edges   []Edge    `json:"edges"`
	SavedAt time.Time `json:"saved_at"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Tasks:   append([]string(nil), s.Tasks...),
		Edges:   append([]Edge(nil), s.Edges...),
		SavedAt: s.SavedAt,
	}
}

// Graph is one user's task graph.
type Graph struct {
	Tasks    []string            `json:"tasks"`
	Edges    []Edge              `json:"edges"`
	LastTask string              `json:"last_task"`
	Routines map[string]Snapshot `json:"routines,omitempty"`
}

// New returns a graph holding only the Start task.
func New() *Graph {
	return &Graph{
		Tasks:    []string{StartTask},
		Edges:    []Edge{},
		LastTask: StartTask,
		Routines: make(map[string]Snapshot),
	}
}

// Clone returns a deep copy that shares no memory with g.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return New()
	}
	c := &Graph{
		Tasks:    append([]string(nil), g.Tasks...),
		Edges:    append([]Edge(nil), g.Edges...),
		LastTask: g.LastTask,
		Routines: make(map[string]Snapshot, len(g.Routines)),
	}
	if c.Edges == nil {
		c.Edges = []Edge{}
	}
	for name, snap := range g.Routines {
		c.Routines[name] = snap.clone()
	}
	return c
}

// HasTask reports whether name is in the task list.
func (g *Graph) HasTask(name string) bool {
	return g.IndexOf(name) >= 0
}

// IndexOf returns the linearization position of name, or -1.
func (g *Graph) IndexOf(name string) int {
	for i, t := range g.Tasks {
		if t == name {
			return i
		}
	}
	return -1
}

// HasEdge reports whether the exact triple exists.
func (g *Graph) HasEdge(e Edge) bool {
	for _, existing := range g.Edges {
		if existing == e {
			return true
		}
	}
	return false
}

// Connected reports whether any edge runs directly from one task to another.
func (g *Graph) Connected(from, to string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// EdgesFrom returns the outgoing edges of a task in insertion order.
func (g *Graph) EdgesFrom(name string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == name {
			out = append(out, e)
		}
	}
	return out
}

// RoutineNames returns the saved routine names in no particular order.
func (g *Graph) RoutineNames() []string {
	names := make([]string, 0, len(g.Routines))
	for name := range g.Routines {
		names = append(names, name)
	}
	return names
}

// Check verifies the structural invariants every committed graph must hold.
func (g *Graph) Check() error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	seen := make(map[string]struct{}, len(g.Tasks))
	for _, t := range g.Tasks {
		if t == "" {
			return fmt.Errorf("%w: empty task name", ErrInvalidReference)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate task %q", ErrConflict, t)
		}
		seen[t] = struct{}{}
	}
	if _, ok := seen[StartTask]; !ok {
		return fmt.Errorf("%w: %s task missing", ErrInvalidReference, StartTask)
	}

	edges := make(map[Edge]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := seen[e.From]; !ok {
			return fmt.Errorf("%w: edge %s has unknown source", ErrInvalidReference, e)
		}
		if _, ok := seen[e.To]; !ok {
			return fmt.Errorf("%w: edge %s has unknown target", ErrInvalidReference, e)
		}
		if _, dup := edges[e]; dup {
			return fmt.Errorf("%w: duplicate edge %s", ErrConflict, e)
		}
		edges[e] = struct{}{}
	}

	if _, ok := seen[g.LastTask]; !ok {
		return fmt.Errorf("%w: last task %q not in graph", ErrInvalidReference, g.LastTask)
	}
	return nil
}

// HasCycle reports whether the edges contain a directed cycle. Nothing enforces
// acyclicity; reorder and insert are free to produce cycles.
func (g *Graph) HasCycle() bool {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Tasks))
	adj := make(map[string][]string, len(g.Tasks))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = grey
		for _, next := range adj[n] {
			switch color[next] {
			case grey:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, t := range g.Tasks {
		if color[t] == white && visit(t) {
			return true
		}
	}
	return false
}
