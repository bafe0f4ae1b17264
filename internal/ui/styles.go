// Package ui renders service results for the terminal.
package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Colors for the CLI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorInfo      = lipgloss.Color("#2DD4BF") // Teal Info (Teal 400)

	ColorAdded   = lipgloss.Color("#10B981")
	ColorRemoved = lipgloss.Color("#EF4444")
)

// MessageIcons provides consistent icons for different message types
var MessageIcons = map[string]string{
	"success":  "✓",
	"error":    "✗",
	"warning":  "⚠",
	"info":     "ℹ",
	"question": "?",
}

// Styles holds the lipgloss styles used by the printer.
type Styles struct {
	Header    lipgloss.Style
	Task      lipgloss.Style
	Start     lipgloss.Style
	Edge      lipgloss.Style
	Label     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Question  lipgloss.Style
	Dim       lipgloss.Style
	Added     lipgloss.Style
	Removed   lipgloss.Style
	DiffHunk  lipgloss.Style
	Highlight lipgloss.Style
}

// NewStyles creates styles bound to w, so colors are dropped when w is not a
// terminal.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Header: r.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		Task: r.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),

		Start: r.NewStyle().
			Foreground(ColorMuted).
			Italic(true),

		Edge: r.NewStyle().
			Foreground(ColorMuted),

		Label: r.NewStyle().
			Foreground(ColorInfo).
			Italic(true),

		Success: r.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),

		Warning: r.NewStyle().
			Foreground(ColorWarning).
			Bold(true),

		Error: r.NewStyle().
			Foreground(ColorError).
			Bold(true),

		Question: r.NewStyle().
			Foreground(ColorSecondary),

		Dim: r.NewStyle().
			Foreground(ColorMuted),

		Added: r.NewStyle().
			Foreground(ColorAdded).
			Bold(true),

		Removed: r.NewStyle().
			Foreground(ColorRemoved).
			Bold(true),

		DiffHunk: r.NewStyle().
			Foreground(ColorPrimary),

		Highlight: r.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
	}
}
