package domain

import "math"

// Scores holds the five component scores, each in [0,1].
type Scores struct {
	BoundCompatibility float64 `json:"bound_compatibility"`
	Containment        float64 `json:"containment"`
	Specificity        float64 `json:"specificity"`
	NonTriviality      float64 `json:"non_triviality"`
	Novelty            float64 `json:"novelty"`
}

// Weights holds the aggregate weighting of the five dimensions.
type Weights struct {
	BoundCompatibility float64 `json:"bound_compatibility" yaml:"bound_compatibility"`
	Containment        float64 `json:"containment" yaml:"containment"`
	Specificity        float64 `json:"specificity" yaml:"specificity"`
	NonTriviality      float64 `json:"non_triviality" yaml:"non_triviality"`
	Novelty            float64 `json:"novelty" yaml:"novelty"`
}

// AggregateTolerance is the allowed drift between a stored aggregate and the
// value recomputed from its scores and weights.
const AggregateTolerance = 1e-9

// DefaultWeights returns the default dimension weighting.
func DefaultWeights() Weights {
	return Weights{
		BoundCompatibility: 0.20,
		Containment:        0.25,
		Specificity:        0.20,
		NonTriviality:      0.15,
		Novelty:            0.20,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.BoundCompatibility + w.Containment + w.Specificity + w.NonTriviality + w.Novelty
}

// Normalize rescales w to sum to 1. Negative or all-zero weights fall back
// to the defaults.
func (w Weights) Normalize() Weights {
	for _, v := range w.values() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return DefaultWeights()
		}
	}
	sum := w.Sum()
	if sum <= 0 {
		return DefaultWeights()
	}
	if math.Abs(sum-1) < AggregateTolerance {
		return w
	}
	return Weights{
		BoundCompatibility: w.BoundCompatibility / sum,
		Containment:        w.Containment / sum,
		Specificity:        w.Specificity / sum,
		NonTriviality:      w.NonTriviality / sum,
		Novelty:            w.Novelty / sum,
	}
}

func (w Weights) values() [5]float64 {
	return [5]float64{w.BoundCompatibility, w.Containment, w.Specificity, w.NonTriviality, w.Novelty}
}

// Aggregate is the weighted sum of s under w, clipped to [0,1].
func (s Scores) Aggregate(w Weights) float64 {
	v := w.BoundCompatibility*s.BoundCompatibility +
		w.Containment*s.Containment +
		w.Specificity*s.Specificity +
		w.NonTriviality*s.NonTriviality +
		w.Novelty*s.Novelty
	return Clamp01(v)
}

// Valid reports whether every score lies in [0,1].
func (s Scores) Valid() bool {
	for _, v := range [5]float64{s.BoundCompatibility, s.Containment, s.Specificity, s.NonTriviality, s.Novelty} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Clamp01 clips v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
