package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

const defaultWidth = 80

// styles renders command output. Colours are dropped when the writer is not
// a terminal.
type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	box      lipgloss.Style
	barFull  lipgloss.Style
	barEmpty lipgloss.Style
	width    int
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	width := terminalWidth(w)

	return &styles{
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		label:    r.NewStyle().Bold(true),
		muted:    r.NewStyle().Foreground(lipgloss.Color("241")),
		ok:       r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:     r.NewStyle().Foreground(lipgloss.Color("214")),
		bad:      r.NewStyle().Foreground(lipgloss.Color("196")),
		box:      r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		barFull:  r.NewStyle().Foreground(lipgloss.Color("42")),
		barEmpty: r.NewStyle().Foreground(lipgloss.Color("238")),
		width:    width,
	}
}

// terminalWidth returns the width of w if it is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// stage renders a stage status with a marker.
func (s *styles) stage(status domain.StageStatus) string {
	switch status {
	case domain.StatusCompleted:
		return s.ok.Render("✓ " + string(status))
	case domain.StatusInProgress:
		return s.warn.Render("● " + string(status))
	default:
		return s.muted.Render("○ " + string(status))
	}
}

// verification renders a verification outcome.
func (s *styles) verification(outcome domain.VerificationOutcome) string {
	switch outcome {
	case domain.VerificationVerified:
		return s.ok.Render(string(outcome))
	case domain.VerificationRejected:
		return s.bad.Render(string(outcome))
	default:
		return s.warn.Render(string(outcome))
	}
}

// bar renders a ratio in [0,1] as a progress bar that fits the terminal.
func (s *styles) bar(ratio float64) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	width := s.width / 3
	if width < 10 {
		width = 10
	}
	if width > 40 {
		width = 40
	}
	full := int(ratio*float64(width) + 0.5)
	return s.barFull.Render(strings.Repeat("█", full)) +
		s.barEmpty.Render(strings.Repeat("░", width-full)) +
		fmt.Sprintf(" %3.0f%%", ratio*100)
}

// truncate shortens text to n runes.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
