package perturb

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDeterminism_Property: for any (base seed, member index, amplitude),
// repeated invocations produce identical perturbation vectors.
func TestDeterminism_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("vectors reproduce bit-for-bit", prop.ForAll(
		func(seed uint64, index int, exp int) bool {
			eps := math.Pow(10, -float64(exp))
			g1, err := New(seed, "theta", eps)
			if err != nil {
				return false
			}
			g2, _ := New(seed, "theta", eps)

			a := g1.Vector(index, 32)
			b := g2.Vector(index, 32)
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(0, 200),
		gen.IntRange(1, 16),
	))

	properties.Property("offsets stay within amplitude", prop.ForAll(
		func(seed uint64, index int) bool {
			const eps = 1e-14
			g, err := New(seed, "theta", eps)
			if err != nil {
				return false
			}
			for _, u := range g.Vector(index, 64) {
				if math.Abs(u) > eps {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// TestSeedSeparation_Property: distinct member indices under the same base
// seed yield distinct derived seeds.
func TestSeedSeparation_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct indices give distinct seeds", prop.ForAll(
		func(seed uint64, i int, j int) bool {
			g, err := New(seed, "theta", 1e-14)
			if err != nil {
				return false
			}
			if i == j {
				return g.MemberSeed(i) == g.MemberSeed(j)
			}
			return g.MemberSeed(i) != g.MemberSeed(j)
		},
		gen.UInt64(),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
