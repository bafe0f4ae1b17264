// Package validator checks an extractor proposal against the utterance it
// came from before any of it touches the graph.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"taskflow/internal/graph"
)

// ErrValidationRejected marks a proposal the validator turned down.
var ErrValidationRejected = errors.New("validation rejected")

// Check names the rule an issue comes from.
type Check string

const (
	CheckCompleteness Check = "completeness"
	CheckNaming       Check = "naming"
	CheckDuplicate    Check = "duplicate"
	CheckRelation     Check = "relation"
	CheckReference    Check = "reference"
	CheckStructure    Check = "structure"
)

// Issue is one problem found in a proposal. Op is the index of the offending
// operation, or -1 when the problem is something missing.
type Issue struct {
	Check    Check  `json:"check"`
	Op       int    `json:"op"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
}

// Verdict is the outcome of validating a proposal.
type Verdict struct {
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
	Expected string  `json:"expected,omitempty"`
	Issues   []Issue `json:"issues,omitempty"`
}

// Err returns nil for an accepted verdict and a wrapped
// ErrValidationRejected otherwise.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidationRejected, v.Reason)
}

var engine = graph.NewEngine()

// Validate decides whether ops faithfully carry out utterance against the
// graph before. It never modifies before. An empty batch is accepted.
func Validate(utterance string, before *graph.Graph, ops []graph.Operation) Verdict {
	if before == nil {
		before = graph.New()
	}
	if len(ops) == 0 {
		return Verdict{Accepted: true}
	}

	cmd := parseCommand(utterance, before)
	var phrases []phrase
	if cmd.kind == cmdNone {
		phrases = extractPhrases(utterance)
	}

	var issues []Issue
	issues = append(issues, checkCompleteness(phrases, before, ops)...)
	issues = append(issues, checkNaming(ops)...)
	issues = append(issues, checkBatchDuplicates(ops)...)
	issues = append(issues, checkRelations(phrases, ops)...)
	issues = append(issues, simulate(before, ops, isRepetition(phrases, before))...)
	issues = append(issues, checkCommand(cmd, before, ops)...)

	return verdict(issues)
}

func verdict(issues []Issue) Verdict {
	if len(issues) == 0 {
		return Verdict{Accepted: true}
	}
	reasons := make([]string, 0, len(issues))
	var expected []string
	for _, is := range issues {
		reasons = append(reasons, is.Message)
		if is.Expected != "" {
			expected = append(expected, is.Expected)
		}
	}
	return Verdict{
		Reason:   strings.Join(reasons, "; "),
		Expected: strings.Join(expected, "; "),
		Issues:   issues,
	}
}

// mentioned collects every task name an operation introduces or refers to.
func mentioned(ops []graph.Operation) []string {
	var names []string
	for _, op := range ops {
		names = append(names, graph.NewNames(op)...)
		switch op := op.(type) {
		case graph.AddTask:
			names = append(names, op.Previous)
		case graph.RenameTask:
			names = append(names, op.Old)
		case graph.InsertBetween:
			names = append(names, op.Before, op.After)
		case graph.Reorder:
			names = append(names, op.Order...)
		}
	}
	return names
}

func matchesAny(p phrase, names []string) bool {
	for _, n := range names {
		if keysMatch(p.Key, key(n)) {
			return true
		}
	}
	return false
}

func checkCompleteness(phrases []phrase, before *graph.Graph, ops []graph.Operation) []Issue {
	names := mentioned(ops)
	var issues []Issue
	for _, p := range phrases {
		if matchesAny(p, names) || matchesAny(p, before.Tasks) {
			continue
		}
		issues = append(issues, Issue{
			Check:    CheckCompleteness,
			Op:       -1,
			Message:  fmt.Sprintf("%q from the request has no task", p.Text),
			Expected: graph.AddTask{Name: p.Name, Label: p.Label}.String(),
		})
	}
	return issues
}

func checkNaming(ops []graph.Operation) []Issue {
	var issues []Issue
	for i, op := range ops {
		_, rebuild := op.(graph.Rebuild)
		for _, n := range graph.NewNames(op) {
			if rebuild && n == graph.StartTask {
				continue
			}
			if n == graph.StartTask {
				issues = append(issues, Issue{
					Check:   CheckNaming,
					Op:      i,
					Message: fmt.Sprintf("operation %d: %s is reserved", i, graph.StartTask),
				})
				continue
			}
			if graph.IsNormalized(n) {
				continue
			}
			is := Issue{
				Check:   CheckNaming,
				Op:      i,
				Message: fmt.Sprintf("operation %d: task name %q is not PascalCase", i, n),
			}
			if norm := graph.NormalizeName(n); norm != "" {
				is.Expected = fmt.Sprintf("use %s instead of %q", norm, n)
			}
			issues = append(issues, is)
		}
	}
	return issues
}

func checkBatchDuplicates(ops []graph.Operation) []Issue {
	var issues []Issue
	seen := make(map[string]int, len(ops))
	for i, op := range ops {
		if op == nil {
			continue
		}
		s := op.String()
		if j, ok := seen[s]; ok {
			issues = append(issues, Issue{
				Check:    CheckDuplicate,
				Op:       i,
				Message:  fmt.Sprintf("operation %d repeats operation %d", i, j),
				Expected: fmt.Sprintf("drop operation %d", i),
			})
			continue
		}
		seen[s] = i
	}
	return issues
}

// isRepetition reports whether every task the utterance describes is already
// in the graph, in which case re-adding them is what the user asked for.
func isRepetition(phrases []phrase, before *graph.Graph) bool {
	if len(phrases) == 0 {
		return false
	}
	for _, p := range phrases {
		if !matchesAny(p, before.Tasks) {
			return false
		}
	}
	return true
}

var labelVocabulary = strings.Join([]string{
	graph.LabelThen, graph.LabelAfterwards, graph.LabelWhile, graph.LabelAtSameTime,
	graph.LabelIfPrefix + "<condition>", graph.LabelOtherwise, graph.LabelEitherWay,
}, ", ")

func checkRelations(phrases []phrase, ops []graph.Operation) []Issue {
	var issues []Issue
	for i, op := range ops {
		var name, label string
		switch op := op.(type) {
		case graph.AddTask:
			name, label = op.Name, op.Label
		case graph.InsertBetween:
			name, label = op.Name, op.LabelIn
		default:
			continue
		}

		var want *phrase
		for j := range phrases {
			if keysMatch(phrases[j].Key, key(name)) {
				want = &phrases[j]
				break
			}
		}

		rel := graph.ClassifyLabel(label)
		if rel == graph.RelationUnknown {
			suggestion := graph.LabelThen
			if want != nil && want.Label != "" {
				suggestion = want.Label
			}
			issues = append(issues, Issue{
				Check:    CheckRelation,
				Op:       i,
				Message:  fmt.Sprintf("operation %d: label %q is not one of %s", i, label, labelVocabulary),
				Expected: fmt.Sprintf("label %q for %s", suggestion, name),
			})
			continue
		}
		if want == nil || want.Relation == "" || want.Relation == rel {
			continue
		}
		issues = append(issues, Issue{
			Check:    CheckRelation,
			Op:       i,
			Message:  fmt.Sprintf("operation %d: %s is %s in the request but label %q is %s", i, name, want.Relation, label, rel),
			Expected: fmt.Sprintf("label %q for %s", want.Label, name),
		})
	}
	return issues
}

// simulate applies the batch to a copy of before, flagging no-op additions
// and the first operation the engine refuses.
func simulate(before *graph.Graph, ops []graph.Operation, repetition bool) []Issue {
	var issues []Issue
	cur := before
	for i, op := range ops {
		if add, ok := op.(graph.AddTask); ok && !repetition && isNoop(cur, add) {
			issues = append(issues, Issue{
				Check:    CheckDuplicate,
				Op:       i,
				Message:  fmt.Sprintf("operation %d: %s and its edge already exist", i, add.Name),
				Expected: fmt.Sprintf("drop operation %d", i),
			})
		}
		next, _, err := engine.Apply(cur, op)
		if err != nil {
			issues = append(issues, Issue{
				Check:    CheckReference,
				Op:       i,
				Message:  fmt.Sprintf("operation %d failed: %v", i, err),
				Expected: expectedFor(err, cur),
			})
			break
		}
		cur = next
	}
	return issues
}

func isNoop(g *graph.Graph, op graph.AddTask) bool {
	prev := op.Previous
	if prev == "" {
		prev = g.LastTask
	}
	return g.HasTask(op.Name) && g.HasEdge(graph.Edge{From: prev, To: op.Name, Label: op.Label})
}

func expectedFor(err error, g *graph.Graph) string {
	switch {
	case errors.Is(err, graph.ErrConflict):
		return "choose a task name that is not already in the graph"
	case errors.Is(err, graph.ErrNotFound) && strings.Contains(err.Error(), "routine"):
		if names := g.RoutineNames(); len(names) > 0 {
			return "use a saved routine: " + strings.Join(names, ", ")
		}
		return "no routines are saved"
	default:
		return "use existing tasks: " + strings.Join(g.Tasks, ", ")
	}
}
