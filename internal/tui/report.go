package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/metalagman/jota/internal/db"
)

// Report is a stored run with its journal.
type Report struct {
	Run        db.RunRecord
	Steps      []db.StepRecord
	Narrations []db.NarrationRecord
}

// Markdown formats r for reading in a terminal or a chat.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Run.Objective)
	fmt.Fprintf(&b, "- **run:** `%s`\n", r.Run.RunID)
	fmt.Fprintf(&b, "- **status:** %s\n", r.Run.Status)
	if r.Run.Owner != "" {
		fmt.Fprintf(&b, "- **owner:** %s\n", r.Run.Owner)
	}
	fmt.Fprintf(&b, "- **steps run:** %d, replans: %d, retries: %d\n", r.Run.StepsRun, r.Run.Replans, r.Run.Retries)
	if r.Run.Error != "" {
		fmt.Fprintf(&b, "- **error:** %s\n", r.Run.Error)
	}

	if len(r.Steps) > 0 {
		b.WriteString("\n## Steps\n\n| # | step | attempt | status |\n|---|---|---|---|\n")
		for _, s := range r.Steps {
			fmt.Fprintf(&b, "| %d | %s | %d | %s |\n", s.StepIndex+1, escapeCell(s.Title), s.Attempt, s.Status)
		}
	}

	if len(r.Narrations) > 0 {
		b.WriteString("\n## Narration\n\n")
		for _, n := range r.Narrations {
			fmt.Fprintf(&b, "%d. %s\n", n.StepIndex+1, n.Text)
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Render renders markdown for the terminal. Width zero keeps glamour's
// default wrapping.
func Render(markdown string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
