package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskflow/internal/graph"
	"taskflow/internal/insight"
)

// systemPrompt is sent as the model's system instruction.
const systemPrompt = `You maintain a user's daily routine as a directed task graph. The user speaks casually; you translate what they say into graph operations by calling tools.

## Rules

- Every activity the user mentions becomes a task. "I'm making coffee and reading the news" is two tasks.
- Task names are PascalCase with no spaces or punctuation: MakeCoffee, ReadNews, WashFace.
- The graph always contains Start. A new task links from the most recent task unless the user says otherwise.
- Never add a task that already exists with the same edge.
- Renames use rename_task. "Insert X before Y" uses insert_between with after=Y and before=the task currently linked into Y.
- Call finish_turn once the graph reflects everything said. If nothing needs to change, call only finish_turn.

## Edge labels

- Sequence: "then" (default) or "afterwards"
- Parallel: "while" or "at same time"
- Branch: "if <condition>" for the condition, "otherwise" for the alternative
- Branches joining again: "either way"

Example: "if raining, read book; otherwise, walk" from Start gives
add_task(name=ReadBook, previous=Start, label="if raining") and add_task(name=Walk, previous=Start, label="otherwise").

## Corrections

If a message starts with CORRECTION your previous calls were rejected and nothing was applied. Fix exactly what the correction describes and call the tools again.

Reply with one short friendly sentence the user will hear.`

// graphState is the serialized graph sent to the model.
type graphState struct {
	Tasks    []string     `json:"tasks"`
	Edges    []graph.Edge `json:"edges"`
	LastTask string       `json:"last_task"`
	Routines []string     `json:"saved_routines,omitempty"`
}

// insightState is the serialized insight context sent to the model.
type insightState struct {
	Interactions int               `json:"interactions"`
	Preferences  map[string]string `json:"preferences,omitempty"`
	Sequences    [][]string        `json:"recurring_sequences,omitempty"`
	DoNotAsk     []string          `json:"do_not_ask,omitempty"`
}

// buildPrompt renders the user turn for one request.
func buildPrompt(req Request) string {
	g := req.Graph
	if g == nil {
		g = graph.New()
	}
	gs, _ := json.Marshal(graphState{
		Tasks:    g.Tasks,
		Edges:    g.Edges,
		LastTask: g.LastTask,
		Routines: g.RoutineNames(),
	})

	ins := req.Insights
	if ins == nil {
		ins = insight.New()
	}
	is, _ := json.Marshal(insightState{
		Interactions: ins.Interactions,
		Preferences:  ins.Preferences,
		Sequences:    ins.Sequences,
		DoNotAsk:     req.RecentQuestions,
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current graph:\n%s\n\n", gs)
	fmt.Fprintf(&sb, "What we know about the user:\n%s\n\n", is)
	fmt.Fprintf(&sb, "User said: %q", strings.TrimSpace(req.Utterance))
	return sb.String()
}

// buildCorrection renders the follow-up message after a rejection.
func buildCorrection(c *Correction) string {
	return "CORRECTION: " + c.String()
}
