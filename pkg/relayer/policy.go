package relayer

import (
	"math"
	"math/rand/v2"

	"github.com/clickregen/portal-workers/pkg/models"
)

// PolicyEngine decides whether an observed intent gets finalized
type PolicyEngine interface {
	ShouldFinalize(intent models.Intent) bool
}

// RandomSource is satisfied by *rand.Rand
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// AlwaysFinalize finalizes every intent
type AlwaysFinalize struct{}

func (AlwaysFinalize) ShouldFinalize(models.Intent) bool { return true }

// Probabilistic finalizes each intent independently with probability P
type Probabilistic struct {
	P   float64
	rng RandomSource
}

func (p Probabilistic) ShouldFinalize(models.Intent) bool {
	return p.rng.Float64() < p.P
}

// ClampProbability maps p into [0, 1]. NaN and infinities become 1.
func ClampProbability(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 1
	}
	return math.Max(0, math.Min(1, p))
}

// NewPolicy builds the configured policy. rng may be nil.
func NewPolicy(always bool, probability float64, rng RandomSource) PolicyEngine {
	if always {
		return AlwaysFinalize{}
	}
	if rng == nil {
		rng = globalRand{}
	}
	return Probabilistic{P: ClampProbability(probability), rng: rng}
}
