// Package trim reduces raw history files to single-time-slice snapshots
// with comparison-excluded variables removed. Trimming is a pure transform:
// re-trimming a trimmed snapshot with the same exclusion set is a no-op.
package trim

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"ect/internal/hist"
)

// ErrNoTimeSlicesFound is returned when a history file has zero time indices.
var ErrNoTimeSlicesFound = errors.New("no time slices found in history file")

// ErrMissingVariable is returned when a variable required for comparison is
// absent from the input (as opposed to merely excluded).
var ErrMissingVariable = errors.New("required variable missing from history file")

// LastTimeIndex selects the last complete time index.
const LastTimeIndex = -1

// Attribute keys recorded on trimmed snapshots.
const (
	AttrExcluded    = "trim_excluded"
	AttrTimeIndex   = "trim_time_index"
	AttrMemberIndex = "trim_member"
)

// Options controls a trim operation.
type Options struct {
	// TimeIndex is the time slice to retain; LastTimeIndex means the
	// last complete one.
	TimeIndex int

	// Excluded names variables dropped from the snapshot.
	Excluded []string

	// Required names variables that must be present in the input.
	// A required variable may still be excluded from the output.
	Required []string

	// MemberIndex is the source ensemble member, recorded on the snapshot.
	MemberIndex int
}

// Trim produces a single-time-slice snapshot of f retaining only
// non-excluded variables. f is not modified.
func Trim(f *hist.File, opts Options) (*hist.File, error) {
	for _, name := range opts.Required {
		if _, ok := f.Variables[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
	}

	steps := f.TimeSteps()
	if steps == 0 {
		return nil, ErrNoTimeSlicesFound
	}

	// An already-trimmed snapshot holds only the slice recorded at its
	// first trim, so any configured index is already satisfied and the
	// recorded index must survive the re-trim unchanged.
	recordedIdx, alreadyTrimmed := f.Attributes[AttrTimeIndex]
	tidx := 0
	if !alreadyTrimmed {
		tidx = opts.TimeIndex
		if tidx == LastTimeIndex {
			tidx = steps - 1
		}
		if tidx < 0 || tidx >= steps {
			return nil, fmt.Errorf("time index %d out of range [0,%d)", tidx, steps)
		}
		recordedIdx = strconv.Itoa(tidx)
	}

	excluded := make(map[string]bool, len(opts.Excluded))
	for _, name := range opts.Excluded {
		excluded[name] = true
	}

	out := hist.New()
	for name, size := range f.Dimensions {
		if name == hist.TimeDim {
			out.Dimensions[name] = 1
			continue
		}
		out.Dimensions[name] = size
	}

	for name, v := range f.Variables {
		if excluded[name] {
			continue
		}
		slice, err := v.TimeSlice(steps, tidx)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		data := make([]float64, len(slice))
		copy(data, slice)
		dims := make([]string, len(v.Dims))
		copy(dims, v.Dims)
		out.Variables[name] = hist.Variable{Dims: dims, Data: data}
	}

	out.Attributes = map[string]string{
		AttrExcluded:    ExclusionKey(opts.Excluded),
		AttrTimeIndex:   recordedIdx,
		AttrMemberIndex: strconv.Itoa(opts.MemberIndex),
	}
	// Preserve provenance from perturbation.
	for k, v := range f.Attributes {
		if strings.HasPrefix(k, "perturb_") {
			out.Attributes[k] = v
		}
		if k == AttrMemberIndex {
			out.Attributes[k] = v
		}
	}

	return out, nil
}

// ExclusionKey returns a canonical representation of an exclusion set,
// suitable for compatibility comparison between artifacts.
func ExclusionKey(excluded []string) string {
	names := make([]string, len(excluded))
	copy(names, excluded)
	sort.Strings(names)
	return strings.Join(names, ",")
}

// LoadExclusionList reads variable names from a text file, one per line.
// Blank lines and lines starting with '#' are skipped.
func LoadExclusionList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening exclusion list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading exclusion list: %w", err)
	}
	return names, nil
}
