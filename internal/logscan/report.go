package logscan

import (
	"fmt"
	"io"
	"math"
	"strings"
)

var statusIcons = map[Status]string{
	StatusMatch:  "✅",
	StatusClose:  "🟡",
	StatusDiffer: "❌",
	StatusNoLog:  "⬜",
	StatusFailed: "❌",
	StatusError:  "❌",
}

func (r Result) timestepsCell() string {
	if r.Status == StatusNoLog {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.TimestepsTest, r.TimestepsRef)
}

func (r Result) maxErrCell() string {
	switch r.Status {
	case StatusMatch, StatusClose, StatusDiffer:
		if math.IsInf(r.MaxError(), 1) {
			return "inf"
		}
		return fmt.Sprintf("%.4f", r.MaxError())
	}
	return "-"
}

// RenderText writes results as a plain table for terminal output.
func RenderText(w io.Writer, results []Result, title string) {
	rule := strings.Repeat("=", 90)
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n", rule, title, rule)
	fmt.Fprintf(w, "%-55s %-8s %-10s %-12s\n", "Configuration", "Status", "Timesteps", "Max Err %")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range results {
		fmt.Fprintf(w, "%-55s %-8s %-10s %-12s\n", r.Name, r.Status, r.timestepsCell(), r.maxErrCell())
	}
	fmt.Fprintln(w, rule)
}

// RenderMarkdown returns results as a GitHub-flavored markdown table,
// suitable for a CI step summary.
func RenderMarkdown(results []Result, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	b.WriteString("| Configuration | Status | Timesteps | Max Err % |\n")
	b.WriteString("|:---|:---:|:---:|---:|\n")
	for _, r := range results {
		name := fmt.Sprintf("`%s`", r.Name)
		if r.Status == StatusNoLog && r.Reason != "" {
			name += fmt.Sprintf(" (%s)", r.Reason)
		}
		fmt.Fprintf(&b, "| %s | %s %s | %s | %s |\n",
			name, statusIcons[r.Status], r.Status, r.timestepsCell(), r.maxErrCell())
	}
	b.WriteString("\n")
	return b.String()
}

// Summarize returns the status counts line and whether the set passes.
func Summarize(results []Result, allowMissing bool) (string, bool) {
	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	line := fmt.Sprintf("%d MATCH, %d CLOSE, %d DIFFER, %d FAILED, %d NO_LOG",
		counts[StatusMatch], counts[StatusClose], counts[StatusDiffer],
		counts[StatusFailed]+counts[StatusError], counts[StatusNoLog])
	for _, r := range results {
		if r.Failed(allowMissing) {
			return line, false
		}
	}
	return line, true
}
