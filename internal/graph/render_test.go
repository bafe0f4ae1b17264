package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	g := &Graph{
		Tasks: []string{"Start", "ReadBook", "Walk"},
		Edges: []Edge{
			{From: "Start", To: "ReadBook", Label: "if raining"},
			{From: "Start", To: "Walk", Label: "otherwise"},
			{From: "ReadBook", To: "Walk"},
		},
		LastTask: "Walk",
	}
	want := "graph TD\n" +
		"    Start((Start))\n" +
		"    ReadBook[ReadBook]\n" +
		"    Walk[Walk]\n" +
		"    Start -->|if raining| ReadBook\n" +
		"    Start -->|otherwise| Walk\n" +
		"    ReadBook --> Walk\n"
	assert.Equal(t, want, Render(g))
	assert.Equal(t, Render(g), Render(g.Clone()))
	assert.Equal(t, "Start → ReadBook → Walk", g.Linearize())
}

func TestClassifyLabel(t *testing.T) {
	tests := map[string]Relation{
		"":             RelationSequential,
		"then":         RelationSequential,
		"Afterwards":   RelationSequential,
		"while":        RelationParallel,
		"at same time": RelationParallel,
		"if raining":   RelationConditionalBranch,
		"otherwise":    RelationConditionalBranch,
		"either way":   RelationConditionalConvergence,
		"if":           RelationUnknown,
		"maybe":        RelationUnknown,
	}
	for label, want := range tests {
		assert.Equal(t, want, ClassifyLabel(label), "label %q", label)
	}
	assert.Equal(t, "if raining", IfLabel("  raining "))
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"make coffee":  "MakeCoffee",
		"makeCoffee":   "MakeCoffee",
		"MakeCoffee":   "MakeCoffee",
		"wash face":    "WashFace",
		"read-book!":   "ReadBook",
		"  walk  ":     "Walk",
		"take 2 pills": "Take2Pills",
		"":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
	assert.True(t, IsNormalized("MakeCoffee"))
	assert.False(t, IsNormalized("make_coffee"))
	assert.False(t, IsNormalized(""))
}
