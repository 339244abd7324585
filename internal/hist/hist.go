// Package hist reads and writes history files: self-describing containers
// of named multi-dimensional numeric arrays, indexed by time. The pipeline
// treats the simulation's own output format as opaque; this is the portable
// representation every stage exchanges.
package hist

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FormatVersion is the current on-disk format version.
const FormatVersion = 1

// TimeDim is the name of the unlimited time dimension.
const TimeDim = "Time"

// Variable is one named array. Data is stored row-major; when the leading
// dimension is Time, Data holds TimeSteps consecutive slices.
type Variable struct {
	Dims []string  `json:"dims"`
	Data []float64 `json:"data"`
}

// File is an in-memory history file.
type File struct {
	FormatVersion int                 `json:"format_version"`
	Dimensions    map[string]int      `json:"dimensions"`
	Attributes    map[string]string   `json:"attributes,omitempty"`
	Variables     map[string]Variable `json:"variables"`
}

// New returns an empty file at the current format version.
func New() *File {
	return &File{
		FormatVersion: FormatVersion,
		Dimensions:    make(map[string]int),
		Variables:     make(map[string]Variable),
	}
}

// Load reads and validates a history file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing history file %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid history file %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the file to path.
func (f *File) Save(path string) error {
	if err := f.validate(); err != nil {
		return fmt.Errorf("refusing to write invalid history file: %w", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding history file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}

// validate checks that every variable's data length matches its dimensions.
func (f *File) validate() error {
	if f.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version %d", f.FormatVersion)
	}
	for name, v := range f.Variables {
		want := 1
		for _, d := range v.Dims {
			size, ok := f.Dimensions[d]
			if !ok {
				return fmt.Errorf("variable %s references undefined dimension %s", name, d)
			}
			want *= size
		}
		if len(v.Data) != want {
			return fmt.Errorf("variable %s: have %d values, dimensions imply %d", name, len(v.Data), want)
		}
	}
	return nil
}

// TimeSteps returns the size of the Time dimension, or 0 if the file has none.
func (f *File) TimeSteps() int {
	return f.Dimensions[TimeDim]
}

// HasTime reports whether the variable's leading dimension is Time.
func (v Variable) HasTime() bool {
	return len(v.Dims) > 0 && v.Dims[0] == TimeDim
}

// TimeSlice returns the values of one time index. steps is the size of the
// Time dimension. The returned slice aliases Data.
func (v Variable) TimeSlice(steps, t int) ([]float64, error) {
	if !v.HasTime() {
		return v.Data, nil
	}
	if steps <= 0 {
		return nil, fmt.Errorf("variable has no time steps")
	}
	if t < 0 || t >= steps {
		return nil, fmt.Errorf("time index %d out of range [0,%d)", t, steps)
	}
	per := len(v.Data) / steps
	return v.Data[t*per : (t+1)*per], nil
}

// VariableNames returns the sorted names of all variables.
func (f *File) VariableNames() []string {
	names := make([]string, 0, len(f.Variables))
	for name := range f.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	out := New()
	out.FormatVersion = f.FormatVersion
	for name, size := range f.Dimensions {
		out.Dimensions[name] = size
	}
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	for name, v := range f.Variables {
		dims := make([]string, len(v.Dims))
		copy(dims, v.Dims)
		data := make([]float64, len(v.Data))
		copy(data, v.Data)
		out.Variables[name] = Variable{Dims: dims, Data: data}
	}
	return out
}
