package tools

import (
	"taskflow/internal/graph"
)

func decodeAddTask(args map[string]any) (graph.Operation, error) {
	name, err := RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	return graph.AddTask{
		Name:     name,
		Previous: GetStringDefault(args, "previous", ""),
		Label:    GetStringDefault(args, "label", ""),
	}, nil
}

func decodeRenameTask(args map[string]any) (graph.Operation, error) {
	oldName, err := RequireString(args, "old")
	if err != nil {
		return nil, err
	}
	newName, err := RequireString(args, "new")
	if err != nil {
		return nil, err
	}
	return graph.RenameTask{Old: oldName, New: newName}, nil
}

func decodeInsertBetween(args map[string]any) (graph.Operation, error) {
	op := graph.InsertBetween{
		LabelIn:  GetStringDefault(args, "label_in", ""),
		LabelOut: GetStringDefault(args, "label_out", ""),
	}
	var err error
	if op.Name, err = RequireString(args, "name"); err != nil {
		return nil, err
	}
	if op.Before, err = RequireString(args, "before"); err != nil {
		return nil, err
	}
	if op.After, err = RequireString(args, "after"); err != nil {
		return nil, err
	}
	return op, nil
}

func decodeReorder(args map[string]any) (graph.Operation, error) {
	order, ok := GetStringSlice(args, "order")
	if !ok {
		return nil, NewValidationError("order", "required array of task names")
	}
	return graph.Reorder{Order: order}, nil
}

func decodeClear(map[string]any) (graph.Operation, error) {
	return graph.Clear{}, nil
}

func decodeSaveSnapshot(args map[string]any) (graph.Operation, error) {
	name, err := RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	return graph.SaveSnapshot{Name: name}, nil
}

func decodeRestoreSnapshot(args map[string]any) (graph.Operation, error) {
	name, err := RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	return graph.RestoreSnapshot{Name: name}, nil
}

func decodeRebuild(args map[string]any) (graph.Operation, error) {
	tasks, ok := GetStringSlice(args, "tasks")
	if !ok {
		return nil, NewValidationError("tasks", "required array of task names")
	}
	objs, ok := getObjectSlice(args, "edges")
	if !ok {
		return nil, NewValidationError("edges", "required array of edges")
	}

	edges := make([]graph.Edge, 0, len(objs))
	for _, obj := range objs {
		from, err := RequireString(obj, "from")
		if err != nil {
			return nil, NewValidationError("edges", "edge without \"from\"")
		}
		to, err := RequireString(obj, "to")
		if err != nil {
			return nil, NewValidationError("edges", "edge without \"to\"")
		}
		edges = append(edges, graph.Edge{From: from, To: to, Label: GetStringDefault(obj, "label", "")})
	}
	return graph.Rebuild{Tasks: tasks, Edges: edges}, nil
}

// Encode converts an operation back into a function call. Scripted
// extractors and conversation history use it.
func Encode(op graph.Operation) map[string]any {
	switch op := op.(type) {
	case graph.AddTask:
		args := map[string]any{"name": op.Name}
		if op.Previous != "" {
			args["previous"] = op.Previous
		}
		if op.Label != "" {
			args["label"] = op.Label
		}
		return args
	case graph.RenameTask:
		return map[string]any{"old": op.Old, "new": op.New}
	case graph.InsertBetween:
		args := map[string]any{"name": op.Name, "before": op.Before, "after": op.After}
		if op.LabelIn != "" {
			args["label_in"] = op.LabelIn
		}
		if op.LabelOut != "" {
			args["label_out"] = op.LabelOut
		}
		return args
	case graph.Reorder:
		return map[string]any{"order": toAnySlice(op.Order)}
	case graph.SaveSnapshot:
		return map[string]any{"name": op.Name}
	case graph.RestoreSnapshot:
		return map[string]any{"name": op.Name}
	case graph.Rebuild:
		edges := make([]any, len(op.Edges))
		for i, e := range op.Edges {
			edges[i] = map[string]any{"from": e.From, "to": e.To, "label": e.Label}
		}
		return map[string]any{"tasks": toAnySlice(op.Tasks), "edges": edges}
	default:
		return map[string]any{}
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
