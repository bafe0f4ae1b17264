package graph

import "strings"

// Edge label vocabulary.
const (
	LabelThen       = "then"
	LabelAfterwards = "afterwards"
	LabelWhile      = "while"
	LabelAtSameTime = "at same time"
	LabelIfPrefix   = "if "
	LabelOtherwise  = "otherwise"
	LabelEitherWay  = "either way"
)

// Relation is the semantic kind an edge label expresses.
type Relation string

const (
	RelationSequential             Relation = "sequential"
	RelationParallel               Relation = "parallel"
	RelationConditionalBranch      Relation = "conditional-branch"
	RelationConditionalConvergence Relation = "conditional-convergence"
	RelationUnknown                Relation = "unknown"
)

// ClassifyLabel maps an edge label to its relation kind. An empty label is
// sequential. Matching is case-insensitive and ignores surrounding space.
func ClassifyLabel(label string) Relation {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "", l == LabelThen, l == LabelAfterwards:
		return RelationSequential
	case l == LabelWhile, l == LabelAtSameTime:
		return RelationParallel
	case l == LabelOtherwise:
		return RelationConditionalBranch
	case strings.HasPrefix(l, LabelIfPrefix) && len(strings.TrimSpace(l[len(LabelIfPrefix):])) > 0:
		return RelationConditionalBranch
	case l == LabelEitherWay:
		return RelationConditionalConvergence
	default:
		return RelationUnknown
	}
}

// IfLabel builds a conditional-branch label for the given condition.
func IfLabel(condition string) string {
	return LabelIfPrefix + strings.TrimSpace(condition)
}
