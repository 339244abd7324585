// Package summary builds and checks reference ensemble summaries: the
// per-element mean and standard deviation of every variable across an
// accepted ensemble's trimmed snapshots. A summary is a versioned artifact
// written once; a revision is a new artifact, never a mutation.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"ect/internal/hist"
	"ect/internal/trim"
)

// FormatVersion is the current summary artifact format version.
const FormatVersion = 1

// ErrInsufficientEnsembleSize indicates the reference ensemble has too few
// members for the number of variables being summarized.
var ErrInsufficientEnsembleSize = errors.New("ensemble size too small for variable count")

// ErrSummaryMismatch indicates a summary and a candidate disagree on the
// variable set, shapes, or exclusion list, and must not be compared.
var ErrSummaryMismatch = errors.New("summary does not match candidate")

// VarStats holds the reference statistics for one variable.
type VarStats struct {
	Shape []int     `json:"shape"`
	Mean  []float64 `json:"mean"`
	Std   []float64 `json:"std"`
}

// Summary is the reference ensemble summary artifact.
type Summary struct {
	FormatVersion int                 `json:"format_version"`
	CreatedAt     time.Time           `json:"created_at"`
	EnsembleSize  int                 `json:"ensemble_size"`
	Excluded      []string            `json:"excluded_variables"`
	Variables     map[string]VarStats `json:"variables"`
}

// Build computes per-element mean and sample standard deviation for every
// variable across the given trimmed snapshots. Variables named in excluded
// are dropped before the size check. The ensemble must have strictly more
// members than summarized variables.
func Build(snaps []*hist.File, excluded []string) (*Summary, error) {
	if len(snaps) == 0 {
		return nil, fmt.Errorf("building summary: no snapshots given")
	}

	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[name] = true
	}
	names := make([]string, 0, len(snaps[0].Variables))
	for _, name := range snaps[0].VariableNames() {
		if !skip[name] {
			names = append(names, name)
		}
	}

	// Every snapshot must carry the same variable set; a variable that
	// appears only in a later member is just as inconsistent as one
	// missing from it.
	for i, snap := range snaps[1:] {
		for _, name := range snap.VariableNames() {
			if skip[name] {
				continue
			}
			if _, ok := snaps[0].Variables[name]; !ok {
				return nil, fmt.Errorf("%w: snapshot %d has variable %s absent from snapshot 0",
					ErrSummaryMismatch, i+1, name)
			}
		}
	}

	if len(snaps) < len(names)+1 {
		return nil, fmt.Errorf("%w: %d members for %d variables, need at least %d",
			ErrInsufficientEnsembleSize, len(snaps), len(names), len(names)+1)
	}

	out := &Summary{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		EnsembleSize:  len(snaps),
		Excluded:      canonical(excluded),
		Variables:     make(map[string]VarStats, len(names)),
	}

	for _, name := range names {
		first := snaps[0].Variables[name]
		n := len(first.Data)

		shape := make([]int, len(first.Dims))
		for i, d := range first.Dims {
			shape[i] = snaps[0].Dimensions[d]
		}

		mean := make([]float64, n)
		for i, snap := range snaps {
			v, ok := snap.Variables[name]
			if !ok {
				return nil, fmt.Errorf("%w: snapshot %d lacks variable %s", ErrSummaryMismatch, i, name)
			}
			if len(v.Data) != n {
				return nil, fmt.Errorf("%w: variable %s has %d values in snapshot %d, %d in snapshot 0",
					ErrSummaryMismatch, name, len(v.Data), i, n)
			}
			for j, x := range v.Data {
				mean[j] += x
			}
		}
		for j := range mean {
			mean[j] /= float64(len(snaps))
		}

		std := make([]float64, n)
		for _, snap := range snaps {
			for j, x := range snap.Variables[name].Data {
				d := x - mean[j]
				std[j] += d * d
			}
		}
		for j := range std {
			std[j] = math.Sqrt(std[j] / float64(len(snaps)-1))
		}

		out.Variables[name] = VarStats{Shape: shape, Mean: mean, Std: std}
	}

	return out, nil
}

// VariableNames returns the sorted names of summarized variables.
func (s *Summary) VariableNames() []string {
	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckCandidate verifies that a candidate snapshot can be scored against
// this summary: the exclusion lists must agree, and after exclusions the
// candidate must carry exactly the summarized variables at the summarized
// sizes. Any disagreement wraps ErrSummaryMismatch.
func (s *Summary) CheckCandidate(f *hist.File, excluded []string) error {
	if trim.ExclusionKey(excluded) != trim.ExclusionKey(s.Excluded) {
		return fmt.Errorf("%w: exclusion list %q differs from summary's %q",
			ErrSummaryMismatch, trim.ExclusionKey(excluded), trim.ExclusionKey(s.Excluded))
	}

	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[name] = true
	}
	seen := 0
	for name, v := range f.Variables {
		if skip[name] {
			continue
		}
		stats, ok := s.Variables[name]
		if !ok {
			return fmt.Errorf("%w: candidate variable %s not in summary", ErrSummaryMismatch, name)
		}
		if len(v.Data) != len(stats.Mean) {
			return fmt.Errorf("%w: variable %s has %d values, summary has %d",
				ErrSummaryMismatch, name, len(v.Data), len(stats.Mean))
		}
		seen++
	}
	if seen != len(s.Variables) {
		return fmt.Errorf("%w: candidate has %d comparable variables, summary has %d",
			ErrSummaryMismatch, seen, len(s.Variables))
	}
	return nil
}

// Encode serializes the summary.
func (s *Summary) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	return data, nil
}

// Decode parses and validates a serialized summary.
func Decode(data []byte) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported summary format version %d", s.FormatVersion)
	}
	for name, v := range s.Variables {
		if len(v.Mean) != len(v.Std) {
			return nil, fmt.Errorf("summary variable %s: %d means but %d stds", name, len(v.Mean), len(v.Std))
		}
	}
	return &s, nil
}

func canonical(excluded []string) []string {
	out := make([]string, len(excluded))
	copy(out, excluded)
	sort.Strings(out)
	return out
}
