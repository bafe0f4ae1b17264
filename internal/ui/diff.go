package ui

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineDiff returns a unified-style line diff of two renderings. Equal
// renderings produce an empty string.
func LineDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var result strings.Builder
	result.WriteString("--- before\n")
	result.WriteString("+++ after\n")

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		for i, line := range lines {
			// Skip empty trailing element from split
			if i == len(lines)-1 && line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				result.WriteString(fmt.Sprintf(" %s\n", line))
			case diffmatchpatch.DiffDelete:
				result.WriteString(fmt.Sprintf("-%s\n", line))
			case diffmatchpatch.DiffInsert:
				result.WriteString(fmt.Sprintf("+%s\n", line))
			}
		}
	}
	return result.String()
}

// CountChanges counts added and removed lines in a LineDiff result.
func CountChanges(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

// highlightDiff colors a LineDiff result.
func (s *Styles) highlightDiff(diff string) string {
	var result strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			result.WriteString(s.DiffHunk.Render(line))
		case strings.HasPrefix(line, "+"):
			result.WriteString(s.Added.Render(line))
		case strings.HasPrefix(line, "-"):
			result.WriteString(s.Removed.Render(line))
		default:
			result.WriteString(s.Dim.Render(line))
		}
		result.WriteString("\n")
	}
	return result.String()
}
