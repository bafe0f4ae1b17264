package tools

import (
	"taskflow/internal/graph"

	"google.golang.org/genai"
)

// Names of the control tools that do not map to a graph operation.
const (
	FinishTurnTool  = "finish_turn"
	AskQuestionTool = "ask_clarifying_question"
)

const labelHint = `Edge label. Use "then" or "afterwards" for sequence, "while" or "at same time" for parallel work, "if <condition>" and "otherwise" for branches, "either way" where branches join.`

func stringProp(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func stringArrayProp(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

// AddTaskDeclaration returns the declaration for add_task.
func AddTaskDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindAddTask),
		Description: "Adds a task to the user's graph and links it from a previous task. If the task already exists only the edge is added. Task names are PascalCase with no spaces (\"MakeCoffee\").",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":     stringProp("The task name in PascalCase"),
				"previous": stringProp("The task this one follows. Optional, defaults to the most recently added task."),
				"label":    stringProp(labelHint),
			},
			Required: []string{"name"},
		},
	}
}

// RenameTaskDeclaration returns the declaration for rename_task.
func RenameTaskDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindRenameTask),
		Description: "Renames an existing task. Its position and every edge touching it are preserved.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"old": stringProp("The current task name"),
				"new": stringProp("The new task name in PascalCase"),
			},
			Required: []string{"old", "new"},
		},
	}
}

// InsertBetweenDeclaration returns the declaration for insert_between.
func InsertBetweenDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindInsertBetween),
		Description: "Inserts a new task on the direct edge before -> after, replacing that edge with before -> name -> after. For \"insert X before Y\", after is Y and before is the task currently linked into Y.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":      stringProp("The new task name in PascalCase"),
				"before":    stringProp("The existing task that will precede the new one"),
				"after":     stringProp("The existing task that will follow the new one"),
				"label_in":  stringProp("Label of the edge into the new task. Optional, defaults to \"then\"."),
				"label_out": stringProp("Label of the edge out of the new task. Optional, defaults to \"then\"."),
			},
			Required: []string{"name", "before", "after"},
		},
	}
}

// ReorderDeclaration returns the declaration for reorder.
func ReorderDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindReorder),
		Description: "Changes the display order of tasks. The order must contain exactly the current tasks, including Start. Edges are not changed.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"order": stringArrayProp("Every current task name in the new order"),
			},
			Required: []string{"order"},
		},
	}
}

// ClearDeclaration returns the declaration for clear.
func ClearDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindClear),
		Description: "Removes every task except Start and every edge. Saved routines are kept.",
	}
}

// SaveSnapshotDeclaration returns the declaration for save_snapshot.
func SaveSnapshotDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindSaveSnapshot),
		Description: "Saves the current tasks and edges as a named routine, replacing any routine with the same name.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": stringProp("The routine name"),
			},
			Required: []string{"name"},
		},
	}
}

// RestoreSnapshotDeclaration returns the declaration for restore_snapshot.
func RestoreSnapshotDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindRestoreSnapshot),
		Description: "Replaces the current tasks and edges with a previously saved routine.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": stringProp("The routine name"),
			},
			Required: []string{"name"},
		},
	}
}

// RebuildDeclaration returns the declaration for rebuild.
func RebuildDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        string(graph.KindRebuild),
		Description: "Replaces the whole graph. Use only when the user describes their routine from scratch. Start is added automatically.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tasks": stringArrayProp("Task names in display order"),
				"edges": {
					Type:        genai.TypeArray,
					Description: "Edges between the listed tasks",
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"from":  stringProp("Source task"),
							"to":    stringProp("Target task"),
							"label": stringProp(labelHint),
						},
						Required: []string{"from", "to"},
					},
				},
			},
			Required: []string{"tasks", "edges"},
		},
	}
}

// FinishTurnDeclaration returns the declaration for finish_turn.
func FinishTurnDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        FinishTurnTool,
		Description: "Signals that the graph now reflects everything the user said. Call it together with the last operations of the turn, or alone when nothing needs to change.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"reply": stringProp("A short spoken reply to the user"),
			},
		},
	}
}

// AskQuestionDeclaration returns the declaration for ask_clarifying_question.
func AskQuestionDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        AskQuestionTool,
		Description: "Asks the user a clarifying question. Use a stable id so the same question is not asked twice.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id":   stringProp("Stable identifier such as \"wake_time\""),
				"text": stringProp("The question to ask"),
			},
			Required: []string{"id", "text"},
		},
	}
}
