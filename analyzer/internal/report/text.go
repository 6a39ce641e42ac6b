package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pinglog/pinglog/analyzer/internal/analysis"
	"github.com/pinglog/pinglog/analyzer/internal/classify"
	"github.com/pinglog/pinglog/analyzer/internal/compute"
)

type textStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	panel   lipgloss.Style
	up      lipgloss.Style
	down    lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

func buildStyles(r *lipgloss.Renderer, noColor bool) textStyles {
	if noColor {
		border := lipgloss.Border{
			Top: "-", Bottom: "-", Left: "|", Right: "|",
			TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		}
		plain := r.NewStyle()
		return textStyles{
			title:   plain,
			section: plain,
			label:   plain,
			muted:   plain,
			panel:   r.NewStyle().Padding(0, 1).Border(border),
			up:      plain,
			down:    plain,
			good:    plain,
			warn:    plain,
			bad:     plain,
		}
	}

	primary := lipgloss.Color("#C084FC")
	secondary := lipgloss.Color("#22D3EE")
	muted := lipgloss.Color("#94A3B8")
	good := lipgloss.Color("#10B981")
	warn := lipgloss.Color("#FBBF24")
	bad := lipgloss.Color("#F87171")

	return textStyles{
		title:   r.NewStyle().Bold(true).Foreground(secondary),
		section: r.NewStyle().Bold(true).Foreground(primary),
		label:   r.NewStyle().Foreground(muted),
		muted:   r.NewStyle().Foreground(muted),
		panel:   r.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(muted),
		up:      r.NewStyle().Foreground(good),
		down:    r.NewStyle().Foreground(bad),
		good:    r.NewStyle().Bold(true).Foreground(good),
		warn:    r.NewStyle().Bold(true).Foreground(warn),
		bad:     r.NewStyle().Bold(true).Foreground(bad),
	}
}

// Text writes a human-readable summary of rep. Colors follow the terminal
// behind w; noColor forces plain ASCII output.
func Text(w io.Writer, rep *analysis.Report, noColor bool) error {
	st := buildStyles(lipgloss.NewRenderer(w), noColor)

	blocks := []string{
		st.title.Render("pinglog report") + "  " + st.muted.Render(sourceName(rep.Source)),
		st.panel.Render(strings.Join(renderRun(st, rep), "\n")),
		st.section.Render("Records"),
		strings.Join(renderCounts(st, rep), "\n"),
		st.section.Render("Intervals"),
		strings.Join(renderIntervals(st, rep), "\n"),
		st.section.Render("Statistics"),
		strings.Join(renderStats(st, rep), "\n"),
		st.section.Render("Problems"),
		strings.Join(renderProblems(st, rep), "\n"),
		st.section.Render("Health"),
		strings.Join(renderHealth(st, rep), "\n"),
	}

	if _, err := io.WriteString(w, lipgloss.JoinVertical(lipgloss.Left, blocks...)+"\n"); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}

func sourceName(s string) string {
	if s == "" || s == "-" {
		return "stdin"
	}
	return s
}

func renderRun(st textStyles, rep *analysis.Report) []string {
	return []string{
		kv(st, "run", rep.RunID),
		kv(st, "started", rep.Started.Format(time.RFC3339)),
		kv(st, "elapsed", rep.Elapsed.Round(time.Millisecond).String()),
		kv(st, "settings", fmt.Sprintf("depth=%d threshold=%gms policy=%s", rep.Depth, rep.Threshold, rep.Policy)),
	}
}

func renderCounts(st textStyles, rep *analysis.Report) []string {
	lines := []string{
		kv(st, "lines", fmt.Sprintf("%d read, %d classified, checksum %d", rep.Lines, rep.Classified, rep.Checksum())),
	}
	for _, cat := range classify.All() {
		n := rep.Count(cat)
		if n == 0 {
			continue
		}
		line := fmt.Sprintf("  %-16s %8d", cat, n)
		if cat.Anomalous() {
			line = st.warn.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func renderIntervals(st textStyles, rep *analysis.Report) []string {
	if len(rep.Intervals) == 0 && rep.Open == nil {
		return []string{st.muted.Render("  no sequence-bearing records")}
	}
	lines := make([]string, 0, len(rep.Intervals)+1)
	for _, iv := range rep.Intervals {
		lines = append(lines, renderInterval(st, iv, false))
	}
	if rep.Open != nil {
		lines = append(lines, renderInterval(st, *rep.Open, true))
	}
	return lines
}

func renderInterval(st textStyles, iv compute.Interval, open bool) string {
	kind := padRight(iv.Kind.String(), 4)
	if iv.Kind == compute.Down {
		kind = st.down.Render(kind)
	} else {
		kind = st.up.Render(kind)
	}
	line := fmt.Sprintf("  %s [%d, %d] len=%d %s", kind, iv.Start, iv.End, iv.Length(), iv.Explanation)
	if open {
		line += st.muted.Render(" (open)")
	}
	return line
}

func renderStats(st textStyles, rep *analysis.Report) []string {
	return []string{
		kv(st, "rtt ms", summary(rep.RTT)),
		kv(st, "up lengths", summary(rep.UpLengths)),
		kv(st, "down lengths", summary(rep.DownLengths)),
		kv(st, "sequence", fmt.Sprintf("%d (offset %d)", rep.Sequence, rep.Offset)),
	}
}

func summary(s compute.Summary) string {
	if s.N == 0 {
		return "n=0"
	}
	out := fmt.Sprintf("n=%d mean=%.3f min=%g max=%g", s.N, s.Mean, s.Min, s.Max)
	if s.Variance != nil {
		out += fmt.Sprintf(" var=%.3f stddev=%.3f", *s.Variance, *s.StdDev)
	}
	return out
}

func renderProblems(st textStyles, rep *analysis.Report) []string {
	rows := []struct {
		name string
		n    int
	}{
		{"protocol warnings", rep.Warnings},
		{"malformed records", rep.MalformedRecords},
		{"span errors", rep.SpanErrors},
		{"marker errors", rep.MarkerErrors},
		{"cadence anomalies", rep.CadenceAnomalies},
	}
	lines := make([]string, 0, len(rows)+1)
	for _, r := range rows {
		v := fmt.Sprint(r.n)
		if r.n > 0 {
			v = st.warn.Render(v)
		}
		lines = append(lines, kv(st, r.name, v))
	}
	lines = append(lines, kv(st, "time anchors", fmt.Sprint(rep.Anchors)))
	return lines
}

func renderHealth(st textStyles, rep *analysis.Report) []string {
	state := rep.Health.State
	switch state {
	case compute.StateHealthy:
		state = st.good.Render(state)
	case compute.StateDegraded:
		state = st.warn.Render(state)
	case compute.StateCritical:
		state = st.bad.Render(state)
	default:
		state = st.muted.Render(state)
	}
	return []string{
		kv(st, "score", fmt.Sprintf("%.1f %s", rep.Health.Score, state)),
		kv(st, "loss", fmt.Sprintf("%.2f%%", rep.LossPct())),
		kv(st, "uptime", fmt.Sprintf("%.2f%%", rep.UptimePct())),
		kv(st, "anomalies", fmt.Sprintf("%.2f%%", rep.AnomalyPct())),
	}
}

func kv(st textStyles, key, value string) string {
	return "  " + st.label.Render(padRight(key+":", 19)) + value
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
