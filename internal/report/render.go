package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	"git.home.luguber.info/inful/repobuilder/internal/build/queue"
	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/coordinator"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/history"
)

// DefaultDiagnosticLines is used when Options.DiagnosticLines is not positive.
const DefaultDiagnosticLines = 20

// Options control text rendering.
type Options struct {
	// DiagnosticLines caps the captured output shown per failed attempt.
	DiagnosticLines int
}

func (o Options) lines() int {
	if o.DiagnosticLines <= 0 {
		return DefaultDiagnosticLines
	}
	return o.DiagnosticLines
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Diagnostics returns the first n lines of an attempt's captured output,
// preferring stderr, and how many further lines were omitted.
func Diagnostics(a build.BuildAttempt, n int) ([]string, int) {
	text := strings.TrimRight(a.Stderr, "\n")
	if strings.TrimSpace(text) == "" {
		text = strings.TrimRight(a.Stdout, "\n")
	}
	if strings.TrimSpace(text) == "" {
		return nil, 0
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return lines, 0
	}
	return lines[:n], len(lines) - n
}

// Render writes a human-readable report: the verdict, every descriptor tried
// in order, and the leading diagnostics of each failed attempt.
func Render(w io.Writer, r *build.BuildReport, opts Options) error {
	s := newStyles(w)
	var b strings.Builder

	header := fmt.Sprintf("%s  %s  %s", s.title.Render(r.Repository.String()), s.reportVerdict(r),
		s.muted.Render(fmt.Sprintf("(%d attempts, %s)", len(r.Attempts), formatDuration(r.Duration()))))
	if r.FromCache {
		header += " " + s.muted.Render("[cached]")
	}
	b.WriteString(header + "\n")

	if len(r.Attempts) == 0 {
		b.WriteString("  No manifest or source files of a supported ecosystem were found.\n")
	}
	for i, a := range r.Attempts {
		fmt.Fprintf(&b, "  %d. %s  %s  %s", i+1, a.Descriptor, a.Phase, s.outcome(a.Outcome))
		if a.Outcome == build.OutcomeBuildFailed || a.Outcome == build.OutcomeDependencyError {
			fmt.Fprintf(&b, "  exit %d", a.ExitCode)
		}
		fmt.Fprintf(&b, "  %s\n", s.muted.Render(formatDuration(a.Duration())))
		if len(a.Command) > 0 {
			fmt.Fprintf(&b, "     %s\n", s.command.Render("$ "+strings.Join(a.Command, " ")))
		}
		if a.Succeeded() {
			continue
		}
		if a.Error != "" {
			fmt.Fprintf(&b, "     error: %s\n", a.Error)
		}
		lines, more := Diagnostics(a, opts.lines())
		for _, line := range lines {
			fmt.Fprintf(&b, "     %s %s\n", s.muted.Render("|"), line)
		}
		if more > 0 {
			fmt.Fprintf(&b, "     %s\n", s.muted.Render(fmt.Sprintf("... %d more lines", more)))
		}
	}
	if r.Succeeded != nil {
		fmt.Fprintf(&b, "  Built with %s\n", s.ok.Render(r.Succeeded.String()))
	}
	if r.Canceled() {
		fmt.Fprintf(&b, "  %s\n", s.neutral.Render("Canceled before completion; result not cached."))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Summary counts the results of a batch.
type Summary struct {
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	Canceled      int `json:"canceled"`
	NoBuildSystem int `json:"no_build_system"`
	Errors        int `json:"errors"`
	Cached        int `json:"cached"`
}

// Summarize counts results by verdict.
func Summarize(results []queue.Result) Summary {
	var sum Summary
	for _, res := range results {
		switch {
		case res.Err != nil || res.Report == nil:
			sum.Errors++
			continue
		case res.Report.Verdict == build.VerdictSucceeded:
			sum.Succeeded++
		case res.Report.Verdict == build.VerdictNoBuildSystem:
			sum.NoBuildSystem++
		case res.Report.Canceled():
			sum.Canceled++
		default:
			sum.Failed++
		}
		if res.Report.FromCache {
			sum.Cached++
		}
	}
	return sum
}

// RenderAll renders every result in order followed by a one-line summary.
func RenderAll(w io.Writer, results []queue.Result, opts Options) error {
	s := newStyles(w)
	if len(results) == 0 {
		if _, err := fmt.Fprintln(w, s.neutral.Render("Nothing to build: no candidates matched the search filters.")); err != nil {
			return err
		}
	}
	for _, res := range results {
		if res.Err != nil || res.Report == nil {
			msg := "no report"
			if res.Err != nil {
				msg = res.Err.Error()
			}
			if _, err := fmt.Fprintf(w, "%s  %s  %s\n", s.title.Render(res.Ref.String()), s.fail.Render("ERROR"), msg); err != nil {
				return err
			}
			continue
		}
		if err := Render(w, res.Report, opts); err != nil {
			return err
		}
	}
	sum := Summarize(results)
	_, err := fmt.Fprintf(w, "\n%s %d succeeded, %d failed, %d canceled, %d without build system, %d errors (%d from cache)\n",
		s.title.Render("Summary:"), sum.Succeeded, sum.Failed, sum.Canceled, sum.NoBuildSystem, sum.Errors, sum.Cached)
	return err
}

// RenderDescriptors lists detected descriptors in attempt order.
func RenderDescriptors(w io.Writer, descs []ecosystem.BuildDescriptor) error {
	s := newStyles(w)
	if len(descs) == 0 {
		_, err := fmt.Fprintln(w, s.neutral.Render("No detectable build system"))
		return err
	}
	for i, d := range descs {
		if _, err := fmt.Fprintf(w, "%d. %s  %s\n", i+1, s.title.Render(d.String()), s.muted.Render(d.Specificity.String())); err != nil {
			return err
		}
		for _, step := range d.Prepare {
			if _, err := fmt.Fprintf(w, "   prepare: %s\n", s.command.Render(strings.Join(step, " "))); err != nil {
				return err
			}
		}
		if len(d.ResolveCommand) > 0 {
			if _, err := fmt.Fprintf(w, "   resolve: %s\n", s.command.Render(strings.Join(d.ResolveCommand, " "))); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "   build:   %s\n", s.command.Render(strings.Join(d.BuildCommand, " "))); err != nil {
			return err
		}
	}
	return nil
}

// RenderAnalysis writes the dependency inventory per descriptor.
func RenderAnalysis(w io.Writer, a *coordinator.Analysis) error {
	s := newStyles(w)
	var b strings.Builder
	header := s.title.Render(a.Repository.String())
	if a.FromCache {
		header += " " + s.muted.Render("[cached]")
	}
	b.WriteString(header + "\n")
	if len(a.Dependencies) == 0 {
		b.WriteString("  No detectable build system\n")
	}
	for _, set := range a.Dependencies {
		fmt.Fprintf(&b, "  %s  %s\n", s.title.Render(set.Descriptor.String()),
			s.muted.Render(fmt.Sprintf("(%d dependencies)", len(set.Dependencies))))
		if set.Error != "" {
			fmt.Fprintf(&b, "    %s\n", s.fail.Render("error: "+set.Error))
		}
		for _, d := range set.Dependencies {
			version := d.Version
			if version == "" {
				version = "*"
			}
			fmt.Fprintf(&b, "    %s %s %s\n", d.Name, version, s.muted.Render("["+d.Scope+"]"))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderStats writes cache statistics.
func RenderStats(w io.Writer, st cache.Stats) error {
	s := newStyles(w)
	rows := [][2]string{
		{"enabled", fmt.Sprint(st.Enabled)},
		{"directory", st.Dir},
		{"memory entries", fmt.Sprint(st.MemoryEntries)},
		{"disk entries", fmt.Sprint(st.DiskEntries)},
		{"disk size", formatBytes(st.DiskBytes)},
	}
	if st.LastError != "" {
		rows = append(rows, [2]string{"last error", st.LastError})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s %s\n", s.label.Render(row[0]+":"), row[1]); err != nil {
			return err
		}
	}
	return nil
}

// RenderHistory lists recorded runs, newest first.
func RenderHistory(w io.Writer, runs []history.Run) error {
	s := newStyles(w)
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded")
		return err
	}
	for _, r := range runs {
		fp := r.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		line := fmt.Sprintf("%s  %s@%s  %s  %s", s.muted.Render(r.FinishedAt.Local().Format(time.DateTime)),
			r.Repository, fp, s.verdict(r.Verdict), s.muted.Render(fmt.Sprintf("%d attempts, %s", r.Attempts, formatDuration(r.Duration()))))
		if r.Succeeded != "" {
			line += "  " + r.Succeeded
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
