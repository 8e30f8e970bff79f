// Package reporter writes check results and metrics dumps to a terminal.
package reporter

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/ui/output"
	"go.trai.ch/knot/internal/ui/style"
)

var _ ports.Reporter = (*Reporter)(nil)

// Reporter implements ports.Reporter.
type Reporter struct {
	mu  sync.Mutex
	out *termenv.Output
}

// New creates a Reporter writing to w with the given colour profile.
func New(w io.Writer, profile termenv.Profile) *Reporter {
	return &Reporter{out: output.NewWithProfile(w, profile)}
}

// Publish writes one line per diagnostic followed by a summary. Revisions
// after the first are named in the summary so watch sessions can be followed.
func (r *Reporter) Publish(revision domain.Revision, lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range lines {
		r.writeln(line)
	}

	var summary string
	var color termenv.Color
	switch n := len(lines); n {
	case 0:
		summary = style.Check + " No diagnostics"
		color = termenv.RGBColor(string(style.Green))
	case 1:
		summary = style.Cross + " Found 1 diagnostic"
		color = termenv.RGBColor(string(style.Red))
	default:
		summary = fmt.Sprintf("%s Found %d diagnostics", style.Cross, n)
		color = termenv.RGBColor(string(style.Red))
	}
	if revision > 0 {
		summary += fmt.Sprintf(" (revision %d)", revision)
	}
	r.writeln(r.out.String(summary).Foreground(color).String())
}

// Metrics writes the counters as an aligned two column table.
func (r *Reporter) Metrics(counters []domain.Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	width := 0
	for _, c := range counters {
		width = max(width, lipgloss.Width(c.Name))
	}
	name := lipgloss.NewStyle().Width(width + 2)

	r.writeln(r.out.String("Metrics").Foreground(termenv.RGBColor(string(style.Iris))).Bold().String())
	for _, c := range counters {
		r.writeln("  " + name.Render(c.Name) + strconv.FormatInt(c.Value, 10))
	}
}

func (r *Reporter) writeln(s string) {
	_, _ = r.out.WriteString(s + "\n")
}
