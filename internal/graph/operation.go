package graph

import (
	"fmt"
	"strings"
)

// Kind names an operation variant. The values double as tool names.
type Kind string

const (
	KindAddTask         Kind = "add_task"
	KindRenameTask      Kind = "rename_task"
	KindInsertBetween   Kind = "insert_between"
	KindReorder         Kind = "reorder"
	KindClear           Kind = "clear"
	KindSaveSnapshot    Kind = "save_snapshot"
	KindRestoreSnapshot Kind = "restore_snapshot"
	KindRebuild         Kind = "rebuild"
)

// Kinds lists every operation kind in declaration order.
var Kinds = []Kind{
	KindAddTask,
	KindRenameTask,
	KindInsertBetween,
	KindReorder,
	KindClear,
	KindSaveSnapshot,
	KindRestoreSnapshot,
	KindRebuild,
}

// Operation is one graph mutation. The set of implementations is closed:
// only the types in this file satisfy it.
type Operation interface {
	Kind() Kind
	String() string
	sealed()
}

// AddTask appends a task (if new) and links it from Previous.
// An empty Previous means the graph's last added task.
type AddTask struct {
	Name     string `json:"name"`
	Previous string `json:"previous,omitempty"`
	Label    string `json:"label,omitempty"`
}

// RenameTask renames a task in place and rewrites its edges.
type RenameTask struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// InsertBetween splices a new task into an existing direct edge.
type InsertBetween struct {
	Name     string `json:"name"`
	Before   string `json:"before"`
	After    string `json:"after"`
	LabelIn  string `json:"label_in,omitempty"`
	LabelOut string `json:"label_out,omitempty"`
}

// Reorder replaces the display linearization with a permutation of it.
type Reorder struct {
	Order []string `json:"order"`
}

// Clear resets the graph to the Start task.
type Clear struct{}

// SaveSnapshot stores the current tasks and edges as a named routine.
type SaveSnapshot struct {
	Name string `json:"name"`
}

// RestoreSnapshot replaces tasks and edges with a saved routine.
type RestoreSnapshot struct {
	Name string `json:"name"`
}

// Rebuild replaces tasks and edges wholesale.
type Rebuild struct {
	Tasks []string `json:"tasks"`
	Edges []Edge   `json:"edges"`
}

func (AddTask) Kind() Kind         { return KindAddTask }
func (RenameTask) Kind() Kind      { return KindRenameTask }
func (InsertBetween) Kind() Kind   { return KindInsertBetween }
func (Reorder) Kind() Kind         { return KindReorder }
func (Clear) Kind() Kind           { return KindClear }
func (SaveSnapshot) Kind() Kind    { return KindSaveSnapshot }
func (RestoreSnapshot) Kind() Kind { return KindRestoreSnapshot }
func (Rebuild) Kind() Kind         { return KindRebuild }

func (AddTask) sealed()         {}
func (RenameTask) sealed()      {}
func (InsertBetween) sealed()   {}
func (Reorder) sealed()         {}
func (Clear) sealed()           {}
func (SaveSnapshot) sealed()    {}
func (RestoreSnapshot) sealed() {}
func (Rebuild) sealed()         {}

func (o AddTask) String() string {
	return fmt.Sprintf("add_task(name=%q, previous=%q, label=%q)", o.Name, o.Previous, o.Label)
}

func (o RenameTask) String() string {
	return fmt.Sprintf("rename_task(old=%q, new=%q)", o.Old, o.New)
}

func (o InsertBetween) String() string {
	return fmt.Sprintf("insert_between(name=%q, before=%q, after=%q, label_in=%q, label_out=%q)",
		o.Name, o.Before, o.After, o.LabelIn, o.LabelOut)
}

func (o Reorder) String() string {
	return fmt.Sprintf("reorder(order=[%s])", strings.Join(o.Order, ", "))
}

func (Clear) String() string { return "clear()" }

func (o SaveSnapshot) String() string {
	return fmt.Sprintf("save_snapshot(name=%q)", o.Name)
}

func (o RestoreSnapshot) String() string {
	return fmt.Sprintf("restore_snapshot(name=%q)", o.Name)
}

func (o Rebuild) String() string {
	return fmt.Sprintf("rebuild(tasks=[%s], edges=%d)", strings.Join(o.Tasks, ", "), len(o.Edges))
}

// NewNames returns the task names an operation introduces into the graph.
func NewNames(op Operation) []string {
	switch op := op.(type) {
	case AddTask:
		return []string{op.Name}
	case RenameTask:
		return []string{op.New}
	case InsertBetween:
		return []string{op.Name}
	case Rebuild:
		return append([]string(nil), op.Tasks...)
	default:
		return nil
	}
}
