package ui

import (
	"fmt"
	"io"
	"strings"

	"taskflow/internal/app"
	"taskflow/internal/graph"
	"taskflow/internal/logging"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
)

// Printer writes service results to a terminal.
type Printer struct {
	w        io.Writer
	styles   *Styles
	renderer *glamour.TermRenderer
}

// PrinterOption configures a Printer.
type PrinterOption func(*printerConfig)

type printerConfig struct {
	markdownStyle string
	wordWrap      int
}

// WithPlainMarkdown renders replies without terminal escapes.
func WithPlainMarkdown() PrinterOption {
	return func(c *printerConfig) { c.markdownStyle = "notty" }
}

// WithWordWrap wraps replies at width columns.
func WithWordWrap(width int) PrinterOption {
	return func(c *printerConfig) { c.wordWrap = width }
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	cfg := printerConfig{markdownStyle: "dark", wordWrap: 80}
	for _, opt := range opts {
		opt(&cfg)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(cfg.markdownStyle),
		glamour.WithWordWrap(cfg.wordWrap),
	)
	if err != nil {
		logging.Debug("markdown renderer unavailable", "error", err)
	}
	return &Printer{w: w, styles: NewStyles(w), renderer: renderer}
}

// Graph prints the tasks in order followed by the edges.
func (p *Printer) Graph(view app.GraphView) {
	fmt.Fprintln(p.w, p.styles.Header.Render(fmt.Sprintf("Routine of %s", view.UserID)))
	names := make([]string, 0, len(view.Tasks))
	for _, t := range view.Tasks {
		if t == graph.StartTask {
			names = append(names, p.styles.Start.Render(t))
			continue
		}
		names = append(names, p.styles.Task.Render(t))
	}
	fmt.Fprintln(p.w, strings.Join(names, p.styles.Edge.Render(" → ")))

	for _, e := range view.Edges {
		label := ""
		if e.Label != "" {
			label = " " + p.styles.Label.Render("["+e.Label+"]")
		}
		fmt.Fprintf(p.w, "  %s %s %s%s\n",
			e.From, p.styles.Edge.Render("→"), e.To, label)
	}
	if len(view.Routines) > 0 {
		fmt.Fprintln(p.w, p.styles.Dim.Render("saved: "+strings.Join(view.Routines, ", ")))
	}
}

// Turn prints the reply, what changed since before, and any warning or
// question.
func (p *Printer) Turn(before app.GraphView, res app.TurnResult) {
	if res.Reply != "" {
		fmt.Fprint(p.w, p.Markdown(res.Reply))
	}

	diff := LineDiff(before.Rendered, res.Graph.Rendered)
	if diff == "" {
		fmt.Fprintln(p.w, p.styles.Dim.Render(MessageIcons["info"]+" graph unchanged"))
	} else {
		added, removed := CountChanges(diff)
		fmt.Fprint(p.w, p.styles.highlightDiff(diff))
		fmt.Fprintln(p.w, p.styles.Dim.Render(fmt.Sprintf("%d added, %d removed", added, removed)))
	}

	for _, op := range res.Applied {
		fmt.Fprintln(p.w, p.styles.Success.Render(MessageIcons["success"])+" "+op)
	}
	if res.Partial {
		fmt.Fprintln(p.w, p.styles.Warning.Render(MessageIcons["warning"]+" partial: "+res.Warning))
	}
	if res.Question != nil {
		fmt.Fprintln(p.w, p.styles.Question.Render(MessageIcons["question"]+" "+res.Question.Text))
	}
	if len(res.Sequences) > 0 {
		for _, s := range res.Sequences {
			fmt.Fprintln(p.w, p.styles.Dim.Render("recurring: "+strings.Join(s, " → ")))
		}
	}
}

// Routines prints a table of saved routines.
func (p *Printer) Routines(routines []app.RoutineInfo) {
	if len(routines) == 0 {
		fmt.Fprintln(p.w, p.styles.Dim.Render("no saved routines"))
		return
	}
	width := 0
	for _, r := range routines {
		width = max(width, len(r.Name))
	}
	for _, r := range routines {
		fmt.Fprintf(p.w, "%s  %s  %s\n",
			p.styles.Highlight.Render(fmt.Sprintf("%-*s", width, r.Name)),
			fmt.Sprintf("%2d tasks", r.TaskCount),
			p.styles.Dim.Render(r.SavedAt.Format("2006-01-02 15:04")))
	}
}

// Error prints err.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.styles.Error.Render(MessageIcons["error"]+" "+err.Error()))
}

// Markdown renders text as markdown, falling back to the raw text.
func (p *Printer) Markdown(text string) string {
	if p.renderer == nil {
		return text + "\n"
	}
	out, err := p.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// Copy puts text on the system clipboard.
func Copy(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not available on this system")
	}
	return clipboard.WriteAll(text)
}
