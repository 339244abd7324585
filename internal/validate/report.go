package validate

import (
	"fmt"
	"io"
	"math"
	"strings"
)

const ruleWidth = 72

// RenderText writes the report as a plain table for terminal output.
func (r *Report) RenderText(w io.Writer, title string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n", rule, title, rule)
	fmt.Fprintf(w, "%-30s %-10s %-12s\n", "Variable", "Status", "Score")
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	for _, s := range r.Scores {
		fmt.Fprintf(w, "%-30s %-10s %-12s\n", s.Name, scoreStatus(s), formatScore(s.Score))
	}
	fmt.Fprintln(w, rule)
	if r.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", r.Reason)
	}
	fmt.Fprintf(w, "Verdict: %s (%d/%d variables over threshold %g, candidates %d, reference %d)\n",
		r.Verdict, len(r.Failing), len(r.Scores), r.Threshold, r.CandidateSize, r.ReferenceSize)
}

// RenderMarkdown returns the report as a GitHub-flavored markdown table,
// suitable for a CI step summary.
func (r *Report) RenderMarkdown(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "**Verdict: %s %s** (threshold %g, candidates %d, reference %d)\n\n",
		verdictIcon(r.Verdict), r.Verdict, r.Threshold, r.CandidateSize, r.ReferenceSize)
	if r.Reason != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Reason)
	}
	if len(r.Scores) == 0 {
		return b.String()
	}
	b.WriteString("| Variable | Status | Score |\n")
	b.WriteString("|:---|:---:|---:|\n")
	for _, s := range r.Scores {
		fmt.Fprintf(&b, "| `%s` | %s %s | %s |\n",
			s.Name, statusIcon(s.Pass), scoreStatus(s), formatScore(s.Score))
	}
	b.WriteString("\n")
	return b.String()
}

func scoreStatus(s VariableScore) string {
	if s.Pass {
		return "OK"
	}
	return "FAIL"
}

func formatScore(score float64) string {
	if math.IsInf(score, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.4f", score)
}

func verdictIcon(v Verdict) string {
	switch v {
	case VerdictPass:
		return "✅"
	case VerdictFail:
		return "❌"
	default:
		return "⬜"
	}
}

func statusIcon(pass bool) string {
	if pass {
		return "✅"
	}
	return "❌"
}
