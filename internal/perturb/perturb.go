// Package perturb generates ensemble member initial conditions by applying
// a small, seeded, multiplicative perturbation to one prognostic field of a
// base state. The same (base seed, member index, amplitude) always produces
// the same perturbation vector, bit for bit.
package perturb

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"ect/internal/hist"
)

// ErrInvalidAmplitude is returned when the perturbation amplitude is not positive.
var ErrInvalidAmplitude = errors.New("perturbation amplitude must be positive")

// ErrInvalidEnsembleSize is returned when fewer than one member is requested.
var ErrInvalidEnsembleSize = errors.New("ensemble size must be at least 1")

// Generator produces perturbed initial conditions.
type Generator struct {
	baseSeed  uint64
	field     string
	amplitude float64
}

// MemberState is one generated member: its index, derived seed, and
// perturbed initial-condition file. The file is a deep copy of the base;
// the base state is never modified.
type MemberState struct {
	Index int
	Seed  uint64
	File  *hist.File
}

// New creates a Generator. Returns ErrInvalidAmplitude if amplitude <= 0.
func New(baseSeed uint64, field string, amplitude float64) (*Generator, error) {
	if amplitude <= 0 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidAmplitude, amplitude)
	}
	if field == "" {
		return nil, fmt.Errorf("perturbation field must not be empty")
	}
	return &Generator{baseSeed: baseSeed, field: field, amplitude: amplitude}, nil
}

// MemberSeed derives the seed for one member from the base seed and index.
func (g *Generator) MemberSeed(index int) uint64 {
	return splitmix64(g.baseSeed ^ (uint64(index) + 0x9e3779b97f4a7c15))
}

// Vector returns the member's perturbation offsets: n values drawn
// uniformly from (-amplitude, amplitude) using the member's own stream.
func (g *Generator) Vector(index, n int) []float64 {
	seed := g.MemberSeed(index)
	rng := rand.New(rand.NewPCG(seed, splitmix64(seed)))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * g.amplitude
	}
	return out
}

// Apply returns a copy of base with the target field perturbed
// multiplicatively: v -> v * (1 + u), u in (-amplitude, amplitude).
// All other variables are untouched.
func (g *Generator) Apply(base *hist.File, index int) (*hist.File, error) {
	v, ok := base.Variables[g.field]
	if !ok {
		return nil, fmt.Errorf("perturbation field %s not found in base state (variables: %v)", g.field, base.VariableNames())
	}

	out := base.Clone()
	data := out.Variables[g.field].Data
	offsets := g.Vector(index, len(v.Data))
	for i := range data {
		data[i] *= 1 + offsets[i]
	}

	if out.Attributes == nil {
		out.Attributes = make(map[string]string)
	}
	out.Attributes["perturb_member"] = fmt.Sprintf("%d", index)
	out.Attributes["perturb_seed"] = fmt.Sprintf("%d", g.MemberSeed(index))
	out.Attributes["perturb_field"] = g.field

	return out, nil
}

// Generate produces n members from the base state.
// Returns ErrInvalidEnsembleSize if n < 1.
func (g *Generator) Generate(base *hist.File, n int) ([]MemberState, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEnsembleSize, n)
	}

	members := make([]MemberState, 0, n)
	for i := 0; i < n; i++ {
		f, err := g.Apply(base, i)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		members = append(members, MemberState{Index: i, Seed: g.MemberSeed(i), File: f})
	}
	return members, nil
}

// splitmix64 is the seed mixer; it maps nearby inputs to widely separated
// stream seeds so member streams are independent.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
