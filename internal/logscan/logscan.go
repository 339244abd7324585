// Package logscan compares simulation stdout logs against a reference by
// the per-timestep global min/max diagnostics the solver prints. It is a
// coarse drift check on raw logs, useful when no history artifacts are
// available; scored history comparison is the authoritative check.
package logscan

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"regexp"
)

// Default percent-error thresholds, in percent.
const (
	MatchThreshold = 1.0
	CloseThreshold = 5.0
)

// Status classifies one log comparison.
type Status string

const (
	// StatusMatch means every field stayed under the match threshold.
	StatusMatch Status = "MATCH"
	// StatusClose means every field stayed under the close threshold.
	StatusClose Status = "CLOSE"
	// StatusDiffer means at least one field exceeded the close threshold.
	StatusDiffer Status = "DIFFER"
	// StatusFailed means the test log had no parseable timesteps.
	StatusFailed Status = "FAILED"
	// StatusError means the reference log had no parseable timesteps.
	StatusError Status = "ERROR"
	// StatusNoLog means the test log file was absent.
	StatusNoLog Status = "NO_LOG"
)

// Timestep holds one timestep's global extrema, keyed "<field>_min" and
// "<field>_max".
type Timestep map[string]float64

// Scanner extracts per-timestep global min/max values for a fixed field
// list from solver logs.
type Scanner struct {
	fields   []string
	patterns []*regexp.Regexp
}

// DefaultFields are the extrema the solver logs every step.
var DefaultFields = []string{"w", "u"}

// NewScanner builds a scanner for the given fields. A timestep is complete
// once every field has been seen.
func NewScanner(fields []string) (*Scanner, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	s := &Scanner{fields: fields}
	for _, f := range fields {
		p, err := regexp.Compile(`global min, max ` + regexp.QuoteMeta(f) + `\s+([-\d.E+]+)\s+([-\d.E+]+)`)
		if err != nil {
			return nil, fmt.Errorf("building pattern for field %s: %w", f, err)
		}
		s.patterns = append(s.patterns, p)
	}
	return s, nil
}

// keys returns the flat metric keys in field order.
func (s *Scanner) keys() []string {
	out := make([]string, 0, 2*len(s.fields))
	for _, f := range s.fields {
		out = append(out, f+"_min", f+"_max")
	}
	return out
}

// ParseFile scans the log at path and returns the completed timesteps.
func (s *Scanner) ParseFile(path string) ([]Timestep, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	var steps []Timestep
	current := Timestep{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		for i, p := range s.patterns {
			m := p.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			var lo, hi float64
			if _, err := fmt.Sscanf(m[1], "%g", &lo); err != nil {
				continue
			}
			if _, err := fmt.Sscanf(m[2], "%g", &hi); err != nil {
				continue
			}
			current[s.fields[i]+"_min"] = lo
			current[s.fields[i]+"_max"] = hi
		}
		if len(current) == 2*len(s.fields) {
			steps = append(steps, current)
			current = Timestep{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}
	return steps, nil
}

// Result is the outcome of comparing one test log against the reference.
type Result struct {
	Name          string             `json:"name"`
	Status        Status             `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	TimestepsTest int                `json:"timesteps_test"`
	TimestepsRef  int                `json:"timesteps_ref"`
	Compared      int                `json:"timesteps_compared"`
	MaxErrors     map[string]float64 `json:"max_errors,omitempty"`
	AvgErrors     map[string]float64 `json:"avg_errors,omitempty"`
}

// MaxError returns the largest per-field max error.
func (r Result) MaxError() float64 {
	max := 0.0
	for _, v := range r.MaxErrors {
		if v > max {
			max = v
		}
	}
	return max
}

// Failed reports whether the result should fail a validation gate.
// NO_LOG counts as a failure unless allowMissing is set.
func (r Result) Failed(allowMissing bool) bool {
	switch r.Status {
	case StatusMatch, StatusClose:
		return false
	case StatusNoLog:
		return !allowMissing
	}
	return true
}

// percentError is the absolute relative difference in percent. A zero
// reference compares exactly.
func percentError(test, ref float64) float64 {
	if ref == 0 {
		if test == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs((test-ref)/ref) * 100
}

// Compare scans both logs and classifies the test log's drift from the
// reference. Only the overlapping prefix of timesteps is compared.
func (s *Scanner) Compare(name, testPath, refPath string) (Result, error) {
	r := Result{Name: name}

	if _, err := os.Stat(testPath); os.IsNotExist(err) {
		r.Status = StatusNoLog
		r.Reason = "no log file"
		return r, nil
	}

	test, err := s.ParseFile(testPath)
	if err != nil {
		return r, err
	}
	ref, err := s.ParseFile(refPath)
	if err != nil {
		return r, err
	}
	r.TimestepsTest = len(test)
	r.TimestepsRef = len(ref)

	if len(test) == 0 {
		r.Status = StatusFailed
		r.Reason = "no timesteps found in test log"
		return r, nil
	}
	if len(ref) == 0 {
		r.Status = StatusError
		r.Reason = "no timesteps found in reference log"
		return r, nil
	}

	n := len(test)
	if len(ref) < n {
		n = len(ref)
	}
	r.Compared = n

	r.MaxErrors = make(map[string]float64)
	r.AvgErrors = make(map[string]float64)
	for _, key := range s.keys() {
		var maxErr, sumErr float64
		for i := 0; i < n; i++ {
			err := percentError(test[i][key], ref[i][key])
			if err > maxErr {
				maxErr = err
			}
			sumErr += err
		}
		r.MaxErrors[key] = maxErr
		r.AvgErrors[key] = sumErr / float64(n)
	}

	switch {
	case r.MaxError() < MatchThreshold:
		r.Status = StatusMatch
	case r.MaxError() < CloseThreshold:
		r.Status = StatusClose
	default:
		r.Status = StatusDiffer
	}
	return r, nil
}
