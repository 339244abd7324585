// Package validate scores a candidate ensemble against a reference summary
// and renders the verdict. A validation walks four states in order:
// collecting candidate snapshots, verifying them against the summary,
// scoring each variable, and reporting. The terminal verdict is PASS, FAIL,
// or ABORTED; an abort is never reported as a failure and vice versa.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"ect/internal/ensemble"
	"ect/internal/hist"
	"ect/internal/logging"
	"ect/internal/summary"
)

// Verdict is the terminal outcome of a validation.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictAborted Verdict = "ABORTED"
)

// ExitCode maps the verdict to the process exit code contract: 0 for PASS,
// 1 for FAIL, 2 for ABORTED.
func (v Verdict) ExitCode() int {
	switch v {
	case VerdictPass:
		return 0
	case VerdictFail:
		return 1
	default:
		return 2
	}
}

// State is a phase of the validation lifecycle.
type State string

const (
	StateCollecting State = "collecting"
	StateVerifying  State = "verifying"
	StateScoring    State = "scoring"
	StateReporting  State = "reporting"
)

// ErrScoringFailure indicates the reference statistics cannot be applied to
// the candidate: a negative standard deviation or an element count mismatch.
var ErrScoringFailure = errors.New("reference statistics unusable for scoring")

// VariableScore is one variable's consistency score. An infinite score
// marks a deterministic element that diverged from a zero-spread reference.
type VariableScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Pass  bool    `json:"pass"`
}

// MarshalJSON renders infinite scores as the string "inf", which plain
// float64 encoding cannot represent.
func (s VariableScore) MarshalJSON() ([]byte, error) {
	type alias struct {
		Name  string `json:"name"`
		Score any    `json:"score"`
		Pass  bool   `json:"pass"`
	}
	out := alias{Name: s.Name, Score: s.Score, Pass: s.Pass}
	if math.IsInf(s.Score, 1) {
		out.Score = "inf"
	}
	return json.Marshal(out)
}

// Report is the full validation outcome. Scores covers every summarized
// variable; Failing lists every variable over the threshold, not just the
// first.
type Report struct {
	Verdict       Verdict         `json:"verdict"`
	Threshold     float64         `json:"threshold"`
	ReferenceSize int             `json:"reference_size"`
	CandidateSize int             `json:"candidate_size"`
	Scores        []VariableScore `json:"scores,omitempty"`
	Failing       []string        `json:"failing_variables,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Validator scores candidate ensembles against one reference summary.
type Validator struct {
	ref       *summary.Summary
	threshold float64
	logger    *slog.Logger
	events    *logging.EventLogger
}

// New creates a Validator. logger may be nil, in which case output is
// discarded.
func New(ref *summary.Summary, threshold float64, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Validator{ref: ref, threshold: threshold, logger: logger}
}

// WithEventLogger attaches a JSONL validation-event trace.
func (v *Validator) WithEventLogger(el *logging.EventLogger) *Validator {
	v.events = el
	return v
}

// Run validates the candidate snapshots at paths, trimmed with the given
// exclusion list. The returned report always carries a terminal verdict;
// the error is non-nil only for ABORTED and wraps the cause
// (ensemble.ErrMissingArtifact, summary.ErrSummaryMismatch, or
// ErrScoringFailure).
func (v *Validator) Run(ctx context.Context, paths []string, excluded []string) (*Report, error) {
	report := &Report{
		Threshold:     v.threshold,
		ReferenceSize: v.ref.EnsembleSize,
	}

	v.transition(ctx, StateCollecting)
	if len(paths) == 0 {
		return v.abort(report, fmt.Errorf("%w: no candidate snapshots", ensemble.ErrMissingArtifact))
	}
	snaps := make([]*hist.File, 0, len(paths))
	for _, path := range paths {
		if err := ensemble.CheckArtifact(path); err != nil {
			return v.abort(report, err)
		}
		f, err := hist.Load(path)
		if err != nil {
			return v.abort(report, err)
		}
		snaps = append(snaps, f)
	}
	report.CandidateSize = len(snaps)

	v.transition(ctx, StateVerifying)
	for i, f := range snaps {
		if err := v.ref.CheckCandidate(f, excluded); err != nil {
			return v.abort(report, fmt.Errorf("candidate snapshot %d: %w", i, err))
		}
	}

	v.transition(ctx, StateScoring)
	for _, name := range v.ref.VariableNames() {
		score, err := scoreVariable(v.ref.Variables[name], candidateMean(snaps, name))
		if err != nil {
			return v.abort(report, fmt.Errorf("scoring %s: %w", name, err))
		}
		pass := score <= v.threshold
		report.Scores = append(report.Scores, VariableScore{Name: name, Score: score, Pass: pass})
		if !pass {
			report.Failing = append(report.Failing, name)
		}
	}

	v.transition(ctx, StateReporting)
	if len(report.Failing) == 0 {
		report.Verdict = VerdictPass
	} else {
		report.Verdict = VerdictFail
	}
	v.logger.Info("validation complete",
		"verdict", report.Verdict,
		"candidates", report.CandidateSize,
		"failing", len(report.Failing),
	)
	v.events.Log(map[string]any{
		"event":   "validation_done",
		"verdict": string(report.Verdict),
		"failing": report.Failing,
	})
	return report, nil
}

func (v *Validator) transition(ctx context.Context, s State) {
	v.logger.Log(ctx, logging.LevelTrace, "state transition", "state", string(s))
	v.events.Log(map[string]any{"event": "state", "state": string(s)})
}

func (v *Validator) abort(report *Report, err error) (*Report, error) {
	report.Verdict = VerdictAborted
	report.Reason = err.Error()
	v.logger.Error("validation aborted", "reason", err)
	v.events.Log(map[string]any{"event": "validation_aborted", "reason": err.Error()})
	return report, err
}

// candidateMean averages the named variable element-wise across snapshots.
// Lengths were checked during verification.
func candidateMean(snaps []*hist.File, name string) []float64 {
	mean := make([]float64, len(snaps[0].Variables[name].Data))
	for _, snap := range snaps {
		for j, x := range snap.Variables[name].Data {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(len(snaps))
	}
	return mean
}

// scoreVariable standardizes each candidate mean element against the
// reference mean and standard deviation and returns the root mean square of
// the z-scores. Elements with zero reference spread contribute nothing
// when the candidate agrees exactly and force an infinite score when it
// does not.
func scoreVariable(stats summary.VarStats, cand []float64) (float64, error) {
	if len(stats.Mean) != len(stats.Std) {
		return 0, fmt.Errorf("%w: %d means but %d stds", ErrScoringFailure, len(stats.Mean), len(stats.Std))
	}
	if len(cand) != len(stats.Mean) {
		return 0, fmt.Errorf("%w: %d candidate values for %d reference elements",
			ErrScoringFailure, len(cand), len(stats.Mean))
	}
	var sum float64
	for j := range cand {
		std := stats.Std[j]
		if std < 0 {
			return 0, fmt.Errorf("%w: negative standard deviation at element %d", ErrScoringFailure, j)
		}
		if std == 0 {
			if cand[j] != stats.Mean[j] {
				return math.Inf(1), nil
			}
			continue
		}
		z := (cand[j] - stats.Mean[j]) / std
		sum += z * z
	}
	if len(cand) == 0 {
		return 0, nil
	}
	return math.Sqrt(sum / float64(len(cand))), nil
}
