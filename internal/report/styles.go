package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"git.home.luguber.info/inful/repobuilder/internal/build"
)

// styles holds the lipgloss styles for one output. Colors are dropped
// automatically when the writer is not a terminal.
type styles struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	neutral lipgloss.Style
	muted   lipgloss.Style
	command lipgloss.Style
	label   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#34A853")),
		fail:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#EA4335")),
		neutral: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FBBC04")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#9AA0A6")),
		command: r.NewStyle().Foreground(lipgloss.Color("#8AB4F8")),
		label:   r.NewStyle().Width(16),
	}
}

func (s styles) reportVerdict(r *build.BuildReport) string {
	if r.Canceled() {
		return s.neutral.Render("CANCELED")
	}
	return s.verdict(r.Verdict)
}

func (s styles) verdict(v build.Verdict) string {
	switch v {
	case build.VerdictSucceeded:
		return s.ok.Render("SUCCEEDED")
	case build.VerdictAllFailed:
		return s.fail.Render("FAILED")
	default:
		return s.neutral.Render("NO BUILD SYSTEM")
	}
}

func (s styles) outcome(o build.Outcome) string {
	if o == build.OutcomeBuildSucceeded {
		return s.ok.Render(string(o))
	}
	if o == build.OutcomeCanceled {
		return s.neutral.Render(string(o))
	}
	return s.fail.Render(string(o))
}
