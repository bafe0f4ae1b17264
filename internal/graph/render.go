package graph

import (
	"fmt"
	"strings"
)

// Render produces deterministic diagram source for g: a header line, one line
// per task in linearization order, then one line per edge in insertion order.
func Render(g *Graph) string {
	if g == nil {
		g = New()
	}
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, t := range g.Tasks {
		if t == StartTask {
			fmt.Fprintf(&b, "    %s((%s))\n", t, t)
			continue
		}
		fmt.Fprintf(&b, "    %s[%s]\n", t, t)
	}
	for _, e := range g.Edges {
		if e.Label == "" {
			fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", e.From, e.Label, e.To)
	}
	return b.String()
}

// Linearize joins the tasks in display order.
func (g *Graph) Linearize() string {
	return strings.Join(g.Tasks, " → ")
}
