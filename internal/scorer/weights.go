package scorer

import (
	"errors"
	"fmt"
	"math"
)

// WeightTolerance is how far the weight sum may drift from 1.0
const WeightTolerance = 1e-6

// ErrInvalidWeights is returned when the factor weights are unusable
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Weights are the composite weights of the four relevance factors
type Weights struct {
	Recency   float64 `mapstructure:"recency" json:"recency"`
	Proximity float64 `mapstructure:"proximity" json:"proximity"`
	Semantic  float64 `mapstructure:"semantic" json:"semantic"`
	Project   float64 `mapstructure:"project" json:"project"`
}

// DefaultWeights returns the weights used when none are configured
func DefaultWeights() Weights {
	return Weights{
		Recency:   0.25,
		Proximity: 0.30,
		Semantic:  0.30,
		Project:   0.15,
	}
}

// Sum returns the total of all four weights
func (w Weights) Sum() float64 {
	return w.Recency + w.Proximity + w.Semantic + w.Project
}

// Validate checks that every weight is non-negative and that they sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"recency":   w.Recency,
		"proximity": w.Proximity,
		"semantic":  w.Semantic,
		"project":   w.Project,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight %v is negative", ErrInvalidWeights, name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// WithoutSemantic redistributes the semantic weight over the other three
// factors in proportion to their own weights. When those are all zero the
// three share equally.
func (w Weights) WithoutSemantic() Weights {
	rest := w.Recency + w.Proximity + w.Project
	if rest <= 0 {
		return Weights{Recency: 1.0 / 3, Proximity: 1.0 / 3, Project: 1.0 / 3}
	}
	return Weights{
		Recency:   w.Recency / rest,
		Proximity: w.Proximity / rest,
		Project:   w.Project / rest,
	}
}
