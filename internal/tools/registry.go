package tools

import (
	"fmt"
	"sort"
	"sync"

	"taskflow/internal/graph"

	"google.golang.org/genai"
)

// Decoder turns function-call arguments into a graph operation.
type Decoder func(args map[string]any) (graph.Operation, error)

type entry struct {
	decl   *genai.FunctionDeclaration
	decode Decoder
}

// Registry maps tool names to their declarations and decoders.
type Registry struct {
	tools map[string]entry
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool. A nil decoder marks a control tool.
func (r *Registry) Register(decl *genai.FunctionDeclaration, decode Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[decl.Name]; exists {
		return fmt.Errorf("tool already registered: %s", decl.Name)
	}
	r.tools[decl.Name] = entry{decl: decl, decode: decode}
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns all declarations in name order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		decls = append(decls, r.tools[name].decl)
	}
	return decls
}

// GeminiTools returns the tools in Gemini format.
func (r *Registry) GeminiTools() []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: r.Declarations()}}
}

// Question is a clarifying question the model wants to ask.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Calls is the decoded content of one model response.
type Calls struct {
	Operations []graph.Operation
	Done       bool
	Reply      string
	Question   *Question
}

// Decode converts function calls into operations and control signals, in
// call order. The first malformed or unknown call fails the whole batch.
func (r *Registry) Decode(calls []*genai.FunctionCall) (Calls, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out Calls
	for i, fc := range calls {
		if fc == nil {
			continue
		}
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}

		switch fc.Name {
		case FinishTurnTool:
			out.Done = true
			if reply := GetStringDefault(args, "reply", ""); reply != "" {
				out.Reply = reply
			}
			continue
		case AskQuestionTool:
			id, err := RequireString(args, "id")
			if err != nil {
				return Calls{}, callError(i, fc.Name, err)
			}
			text, err := RequireString(args, "text")
			if err != nil {
				return Calls{}, callError(i, fc.Name, err)
			}
			out.Question = &Question{ID: id, Text: text}
			continue
		}

		e, ok := r.tools[fc.Name]
		if !ok || e.decode == nil {
			return Calls{}, fmt.Errorf("call %d: %w: %q", i, ErrUnknownTool, fc.Name)
		}
		op, err := e.decode(args)
		if err != nil {
			return Calls{}, callError(i, fc.Name, err)
		}
		out.Operations = append(out.Operations, op)
	}
	return out, nil
}

func callError(i int, name string, err error) error {
	if ve, ok := err.(ValidationError); ok {
		ve.Tool = name
		err = ve
	}
	return fmt.Errorf("call %d: %w", i, err)
}

// DefaultRegistry returns a registry with every graph operation and the
// control tools registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []struct {
		decl   *genai.FunctionDeclaration
		decode Decoder
	}{
		{AddTaskDeclaration(), decodeAddTask},
		{RenameTaskDeclaration(), decodeRenameTask},
		{InsertBetweenDeclaration(), decodeInsertBetween},
		{ReorderDeclaration(), decodeReorder},
		{ClearDeclaration(), decodeClear},
		{SaveSnapshotDeclaration(), decodeSaveSnapshot},
		{RestoreSnapshotDeclaration(), decodeRestoreSnapshot},
		{RebuildDeclaration(), decodeRebuild},
		{FinishTurnDeclaration(), nil},
		{AskQuestionDeclaration(), nil},
	} {
		if err := r.Register(t.decl, t.decode); err != nil {
			panic(err)
		}
	}
	return r
}
