package optimize

import (
	"math"
	"math/rand/v2"

	"github.com/amirphl/momentum-validator/internal/config"
)

// FloatRange is an inclusive range sampled on a Step grid.
type FloatRange struct {
	Min, Max, Step float64
}

func (r FloatRange) sample(rng *rand.Rand) float64 {
	if r.Step <= 0 {
		return r.Min + rng.Float64()*(r.Max-r.Min)
	}
	steps := int(math.Round((r.Max - r.Min) / r.Step))
	v := r.Min + float64(rng.IntN(steps+1))*r.Step
	// 0.07, not 0.07000000000000001
	return math.Round(v*1e9) / 1e9
}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min, Max int
}

func (r IntRange) sample(rng *rand.Rand) int {
	return r.Min + rng.IntN(r.Max-r.Min+1)
}

// Space is the parameter search space.
type Space struct {
	LongRisk            FloatRange
	MaxOpenPositions    IntRange
	ADXThreshold        FloatRange
	MaxPositionDuration IntRange
}

func DefaultSpace() Space {
	return Space{
		LongRisk:            FloatRange{Min: 0.02, Max: 0.10, Step: 0.01},
		MaxOpenPositions:    IntRange{Min: 2, Max: 30},
		ADXThreshold:        FloatRange{Min: 20, Max: 35, Step: 1},
		MaxPositionDuration: IntRange{Min: 5, Max: 30},
	}
}

// Sample draws one parameter set.
func (s Space) Sample(rng *rand.Rand) config.Params {
	return config.Params{
		LongRisk:            s.LongRisk.sample(rng),
		MaxOpenPositions:    s.MaxOpenPositions.sample(rng),
		ADXThreshold:        s.ADXThreshold.sample(rng),
		MaxPositionDuration: s.MaxPositionDuration.sample(rng),
	}
}

// Contains reports whether p lies inside the space.
func (s Space) Contains(p config.Params) bool {
	return p.LongRisk >= s.LongRisk.Min-1e-12 && p.LongRisk <= s.LongRisk.Max+1e-12 &&
		p.MaxOpenPositions >= s.MaxOpenPositions.Min && p.MaxOpenPositions <= s.MaxOpenPositions.Max &&
		p.ADXThreshold >= s.ADXThreshold.Min && p.ADXThreshold <= s.ADXThreshold.Max &&
		p.MaxPositionDuration >= s.MaxPositionDuration.Min && p.MaxPositionDuration <= s.MaxPositionDuration.Max
}
