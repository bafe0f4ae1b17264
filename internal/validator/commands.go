package validator

import (
	"fmt"
	"regexp"
	"strings"

	"taskflow/internal/graph"
)

// commandKind identifies an utterance that edits the graph directly rather
// than describing tasks.
type commandKind int

const (
	cmdNone commandKind = iota
	cmdRename
	cmdInsertBefore
	cmdInsertAfter
	cmdInsertBetween
	cmdMoveBefore
	cmdMoveAfter
	cmdSwap
	cmdReorder
	cmdClear
	cmdSave
	cmdLoad
)

type command struct {
	kind commandKind
	args []string
	// refs are the existing tasks or routines the arguments resolved to.
	refs []string
	// name is the task name a rename or insert introduces.
	name string
}

var commandPatterns = []struct {
	kind commandKind
	re   *regexp.Regexp
}{
	{cmdRename, regexp.MustCompile(`(?i)^(?:please\s+)?(?:rename|change)\s+(.+?)\s+(?:to|into)\s+(.+)$`)},
	{cmdInsertBetween, regexp.MustCompile(`(?i)^(?:please\s+)?(?:insert|add|put)\s+(.+?)\s+between\s+(.+?)\s+and\s+(.+)$`)},
	{cmdInsertBefore, regexp.MustCompile(`(?i)^(?:please\s+)?(?:insert|add|put)\s+(.+?)\s+(?:right\s+|just\s+)?before\s+(.+)$`)},
	{cmdInsertAfter, regexp.MustCompile(`(?i)^(?:please\s+)?(?:insert|add|put)\s+(.+?)\s+(?:right\s+|just\s+)?after\s+(.+)$`)},
	{cmdMoveBefore, regexp.MustCompile(`(?i)^(?:please\s+)?move\s+(.+?)\s+(?:to\s+)?before\s+(.+)$`)},
	{cmdMoveAfter, regexp.MustCompile(`(?i)^(?:please\s+)?move\s+(.+?)\s+(?:to\s+)?after\s+(.+)$`)},
	{cmdSwap, regexp.MustCompile(`(?i)^(?:please\s+)?swap\s+(.+?)\s+(?:and|with)\s+(.+)$`)},
	{cmdReorder, regexp.MustCompile(`(?i)^(?:please\s+)?(?:reorder|rearrange)(?:\s+(?:the|my|this|these|all))*(?:\s+(?:tasks|list|graph|routine|steps|them|it|everything))?(?:\s+please)?$`)},
	{cmdClear, regexp.MustCompile(`(?i)^(?:please\s+)?(?:clear|reset|wipe|erase|delete)(?:\s+(?:out|up))?(?:\s+(?:the|my|this|whole|entire|all|of|current))*\s+(?:graph|list|everything|routine|tasks|all|it)(?:\s+please)?$`)},
	{cmdClear, regexp.MustCompile(`(?i)^(?:please\s+)?(?:clear|reset|start\s+over)(?:\s+please)?$`)},
	{cmdSave, regexp.MustCompile(`(?i)^(?:please\s+)?save(?:\s+(?:this|it|the|my|current|routine|graph|list))*\s+as\s+(.+?)(?:\s+routine)?$`)},
	{cmdSave, regexp.MustCompile(`(?i)^(?:please\s+)?save(?:\s+(?:this|it|the|my|current|routine|graph|list))+()$`)},
	{cmdLoad, regexp.MustCompile(`(?i)^(?:please\s+)?(?:load|restore)\s+(?:the\s+|my\s+)?(?:routine\s+)?(.+?)(?:\s+routine)?$`)},
}

// parseCommand recognizes direct editing commands. An utterance only counts
// as a command when the tasks and routines it names exist in before;
// otherwise it is a description and goes through phrase extraction.
// Trailing punctuation and surrounding quotes on arguments are ignored.
func parseCommand(utterance string, before *graph.Graph) command {
	u := strings.TrimSpace(utterance)
	u = strings.TrimRight(u, ".!")
	for _, p := range commandPatterns {
		m := p.re.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		args := make([]string, 0, len(m)-1)
		for _, a := range m[1:] {
			args = append(args, strings.Trim(strings.TrimSpace(a), `"'`))
		}
		cmd := command{kind: p.kind, args: args}
		if cmd.bind(before) {
			return cmd
		}
	}
	return command{kind: cmdNone}
}

// bind resolves the command's arguments against g and reports whether every
// reference names something that exists.
func (c *command) bind(g *graph.Graph) bool {
	refs := func(args ...string) bool {
		for _, a := range args {
			t, ok := resolve(g, a)
			if !ok {
				return false
			}
			c.refs = append(c.refs, t)
		}
		return true
	}

	switch c.kind {
	case cmdRename:
		c.name = commandName(c.args[1])
		return c.name != "" && refs(c.args[0])
	case cmdInsertBefore, cmdInsertAfter:
		c.name = commandName(c.args[0])
		return c.name != "" && refs(c.args[1])
	case cmdInsertBetween:
		c.name = commandName(c.args[0])
		return c.name != "" && refs(c.args[1], c.args[2])
	case cmdMoveBefore, cmdMoveAfter, cmdSwap:
		return refs(c.args[0], c.args[1]) && c.refs[0] != c.refs[1]
	case cmdSave:
		return !strings.ContainsAny(c.args[0], ",;")
	case cmdLoad:
		r, ok := resolveRoutine(g, c.args[0])
		if ok {
			c.refs = []string{r}
		}
		return ok
	}
	return true
}

// resolve finds the existing task a free-form reference points to. An exact
// key match wins; otherwise the reference must match exactly one task.
func resolve(g *graph.Graph, ref string) (string, bool) {
	if strings.ContainsAny(ref, ",;") {
		return "", false
	}
	if g.HasTask(ref) {
		return ref, true
	}
	k := key(ref)
	if k == "" {
		return "", false
	}
	var found []string
	for _, t := range g.Tasks {
		tk := key(t)
		if tk == k {
			return t, true
		}
		if t != graph.StartTask && keysMatch(k, tk) {
			found = append(found, t)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func resolveRoutine(g *graph.Graph, ref string) (string, bool) {
	k := key(ref)
	if k == "" || strings.ContainsAny(ref, ",;") {
		return "", false
	}
	var found []string
	for _, r := range g.RoutineNames() {
		rk := key(r)
		if rk == k {
			return r, true
		}
		if keysMatch(k, rk) {
			found = append(found, r)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

// commandName turns a command argument such as "a shower" or "MakeCoffee"
// into a task name.
func commandName(arg string) string {
	if strings.ContainsAny(arg, ",;") {
		return ""
	}
	words := cleanWords(splitWords(arg))
	if len(words) == 0 {
		return ""
	}
	return newPhrase(words).Name
}

func sameTask(name, ref string) bool {
	return name == ref || (key(name) != "" && key(name) == key(ref))
}

// namedAs reports whether got is an acceptable spelling of the name the
// command introduces. raw is the argument as the user typed it.
func namedAs(got string, c command, raw string) bool {
	return sameTask(got, c.name) || got == graph.NormalizeName(raw)
}

// checkCommand verifies the batch carries out cmd against before.
func checkCommand(cmd command, before *graph.Graph, ops []graph.Operation) []Issue {
	switch cmd.kind {
	case cmdRename:
		old := cmd.refs[0]
		for i, op := range ops {
			r, ok := op.(graph.RenameTask)
			if !ok || !sameTask(r.Old, old) {
				continue
			}
			if !namedAs(r.New, cmd, cmd.args[1]) {
				return []Issue{{
					Check:    CheckStructure,
					Op:       i,
					Message:  fmt.Sprintf("rename of %s should produce %s, not %s", old, cmd.name, r.New),
					Expected: graph.RenameTask{Old: old, New: cmd.name}.String(),
				}}
			}
			return nil
		}
		return []Issue{missing(graph.RenameTask{Old: old, New: cmd.name})}

	case cmdInsertBefore, cmdInsertAfter, cmdInsertBetween:
		return checkInsert(cmd, before, ops)

	case cmdMoveBefore, cmdMoveAfter, cmdSwap:
		return checkMove(cmd, before, ops)

	case cmdReorder:
		if !hasKind(ops, graph.KindReorder) {
			return []Issue{missing(graph.Reorder{Order: before.Tasks})}
		}
	case cmdClear:
		if !hasKind(ops, graph.KindClear) {
			return []Issue{missing(graph.Clear{})}
		}
	case cmdSave:
		for _, op := range ops {
			if s, ok := op.(graph.SaveSnapshot); ok && (cmd.args[0] == "" || key(s.Name) == key(cmd.args[0])) {
				return nil
			}
		}
		return []Issue{missing(graph.SaveSnapshot{Name: cmd.args[0]})}
	case cmdLoad:
		name := cmd.refs[0]
		for _, op := range ops {
			if r, ok := op.(graph.RestoreSnapshot); ok && key(r.Name) == key(name) {
				return nil
			}
		}
		return []Issue{missing(graph.RestoreSnapshot{Name: name})}
	}
	return nil
}

func checkInsert(cmd command, before *graph.Graph, ops []graph.Operation) []Issue {
	name, anchor := cmd.name, cmd.refs[0]

	for _, op := range ops {
		switch op := op.(type) {
		case graph.InsertBetween:
			if !namedAs(op.Name, cmd, cmd.args[0]) {
				continue
			}
			switch cmd.kind {
			case cmdInsertBefore:
				if sameTask(op.After, anchor) {
					return nil
				}
			case cmdInsertAfter:
				if sameTask(op.Before, anchor) {
					return nil
				}
			case cmdInsertBetween:
				if sameTask(op.Before, anchor) && sameTask(op.After, cmd.refs[1]) {
					return nil
				}
			}
		case graph.AddTask:
			// "after X" on a task with no successor is a plain append.
			if cmd.kind != cmdInsertAfter || !namedAs(op.Name, cmd, cmd.args[0]) {
				continue
			}
			prev := op.Previous
			if prev == "" {
				prev = before.LastTask
			}
			if sameTask(prev, anchor) {
				return nil
			}
		}
	}

	var want graph.Operation
	switch cmd.kind {
	case cmdInsertBefore:
		want = graph.InsertBetween{Name: name, Before: predecessor(before, anchor), After: anchor}
	case cmdInsertAfter:
		if succ := successor(before, anchor); succ != "" {
			want = graph.InsertBetween{Name: name, Before: anchor, After: succ}
		} else {
			want = graph.AddTask{Name: name, Previous: anchor, Label: graph.LabelThen}
		}
	default:
		want = graph.InsertBetween{Name: name, Before: anchor, After: cmd.refs[1]}
	}
	return []Issue{missing(want)}
}

func checkMove(cmd command, before *graph.Graph, ops []graph.Operation) []Issue {
	a, b := cmd.refs[0], cmd.refs[1]

	for _, op := range ops {
		r, ok := op.(graph.Reorder)
		if !ok {
			continue
		}
		ia, ib := indexOf(r.Order, a), indexOf(r.Order, b)
		if ia < 0 || ib < 0 {
			continue
		}
		switch cmd.kind {
		case cmdMoveBefore:
			if ia < ib {
				return nil
			}
		case cmdMoveAfter:
			if ia > ib {
				return nil
			}
		case cmdSwap:
			if ia == before.IndexOf(b) && ib == before.IndexOf(a) {
				return nil
			}
		}
	}
	return []Issue{missing(graph.Reorder{Order: moved(cmd.kind, before.Tasks, a, b)})}
}

// moved computes the order a move command asks for.
func moved(kind commandKind, tasks []string, a, b string) []string {
	ia, ib := indexOf(tasks, a), indexOf(tasks, b)
	if ia < 0 || ib < 0 {
		return append([]string(nil), tasks...)
	}
	if kind == cmdSwap {
		out := append([]string(nil), tasks...)
		out[ia], out[ib] = out[ib], out[ia]
		return out
	}
	rest := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t != a {
			rest = append(rest, t)
		}
	}
	at := indexOf(rest, b)
	if kind == cmdMoveAfter {
		at++
	}
	out := make([]string, 0, len(tasks))
	out = append(out, rest[:at]...)
	out = append(out, a)
	out = append(out, rest[at:]...)
	return out
}

func predecessor(g *graph.Graph, name string) string {
	for _, e := range g.Edges {
		if e.To == name {
			return e.From
		}
	}
	return graph.StartTask
}

func successor(g *graph.Graph, name string) string {
	if out := g.EdgesFrom(name); len(out) > 0 {
		return out[0].To
	}
	return ""
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func hasKind(ops []graph.Operation, k graph.Kind) bool {
	for _, op := range ops {
		if op != nil && op.Kind() == k {
			return true
		}
	}
	return false
}

func missing(want graph.Operation) Issue {
	return Issue{
		Check:    CheckStructure,
		Op:       -1,
		Message:  fmt.Sprintf("the request needs a %s operation", want.Kind()),
		Expected: want.String(),
	}
}
