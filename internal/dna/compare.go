package dna

import (
	"fmt"
	"math"
)

// Score bounds applied when one or both records are default stand-ins.
const (
	// DefaultCap limits the comparison score when either side is a
	// substituted default: the diff is computable but not trustworthy.
	DefaultCap = 60.0
	// NeutralScore is returned when both sides are defaults and the
	// comparison carries no information at all.
	NeutralScore = 50.0
)

// WeightTable assigns a percentage weight to each compared dimension.
// Weights within one table must sum to 100; Compare subtracts each
// dimension's weighted normalized diff from a perfect 100.
type WeightTable struct {
	Contrast     float64 `json:"contrast" yaml:"contrast"`
	StrokeWeight float64 `json:"stroke_weight" yaml:"stroke_weight"`
	Curvature    float64 `json:"curvature" yaml:"curvature"`
	CornerRadius float64 `json:"corner_radius" yaml:"corner_radius"`
	InkTrapDepth float64 `json:"ink_trap_depth" yaml:"ink_trap_depth"`
	Spacing      float64 `json:"spacing" yaml:"spacing"`
	Proportion   float64 `json:"proportion" yaml:"proportion"`
	Terminal     float64 `json:"terminal" yaml:"terminal"`
	BooleanMatch float64 `json:"boolean_match" yaml:"boolean_match"`
}

// Validate checks that the table's weights sum to 100 and are non-negative.
func (w WeightTable) Validate() error {
	sum := w.Contrast + w.StrokeWeight + w.Curvature + w.CornerRadius +
		w.InkTrapDepth + w.Spacing + w.Proportion + w.Terminal + w.BooleanMatch
	if math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("dna: weight table sums to %v, want 100", sum)
	}
	for _, v := range []float64{
		w.Contrast, w.StrokeWeight, w.Curvature, w.CornerRadius,
		w.InkTrapDepth, w.Spacing, w.Proportion, w.Terminal, w.BooleanMatch,
	} {
		if v < 0 {
			return fmt.Errorf("dna: negative weight %v", v)
		}
	}
	return nil
}

// Default weight tables per category. Only the latin table is
// measurement-backed; the others redistribute latin-only dimensions
// (ink traps) onto stroke and spacing behavior.
var (
	weightsLatin = WeightTable{
		Contrast: 20, StrokeWeight: 15, Curvature: 15, CornerRadius: 10,
		InkTrapDepth: 10, Spacing: 10, Proportion: 10, Terminal: 5, BooleanMatch: 5,
	}
	weightsOtherScript = WeightTable{
		Contrast: 15, StrokeWeight: 20, Curvature: 20, CornerRadius: 10,
		InkTrapDepth: 0, Spacing: 15, Proportion: 10, Terminal: 5, BooleanMatch: 5,
	}
	weightsMixed = WeightTable{
		Contrast: 20, StrokeWeight: 15, Curvature: 15, CornerRadius: 10,
		InkTrapDepth: 5, Spacing: 15, Proportion: 10, Terminal: 5, BooleanMatch: 5,
	}
	weightsIllustration = WeightTable{
		Contrast: 20, StrokeWeight: 15, Curvature: 15, CornerRadius: 10,
		InkTrapDepth: 0, Spacing: 15, Proportion: 15, Terminal: 5, BooleanMatch: 5,
	}
)

// WeightsFor returns the default weight table for a session kind and script
// category. Illustration sessions use one table regardless of category.
func WeightsFor(kind Kind, cat Category) WeightTable {
	if kind == KindIllustration {
		return weightsIllustration
	}
	switch cat {
	case CategoryOtherScript:
		return weightsOtherScript
	case CategoryMixed:
		return weightsMixed
	default:
		return weightsLatin
	}
}

// Diff is the normalized difference between two numeric feature values:
// 0 when both are exactly zero, otherwise |a-b| / max(|a|, |b|, 1).
// It is symmetric and zero for equal inputs, and stays in [0,1] for the
// non-negative ranges DNA fields use.
func Diff(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	den := math.Max(math.Abs(a), math.Max(math.Abs(b), 1))
	return math.Abs(a-b) / den
}

// Compare scores candidate DNA against reference DNA on a 0-100 scale using
// the given weight table. Each numeric dimension contributes its weighted
// normalized diff as a penalty off 100; the terminal enum and the serif flag
// contribute their full weight on mismatch. The result floors at 0.
//
// If either record is a default stand-in the score is capped at DefaultCap;
// if both are, no diffs are computed and NeutralScore is returned.
func Compare(ref, cand DNA, w WeightTable) float64 {
	if ref.IsDefault() && cand.IsDefault() {
		return NeutralScore
	}

	penalty := w.Contrast*Diff(ref.Contrast, cand.Contrast) +
		w.StrokeWeight*Diff(ref.StrokeWeight, cand.StrokeWeight) +
		w.Curvature*Diff(ref.Curvature, cand.Curvature) +
		w.CornerRadius*Diff(ref.CornerRadius, cand.CornerRadius) +
		w.InkTrapDepth*Diff(ref.InkTrapDepth, cand.InkTrapDepth) +
		w.Spacing*Diff(ref.Spacing, cand.Spacing) +
		w.Proportion*Diff(ref.Proportion, cand.Proportion)
	if ref.Terminal != cand.Terminal {
		penalty += w.Terminal
	}
	if ref.Serif != cand.Serif {
		penalty += w.BooleanMatch
	}

	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	if (ref.IsDefault() || cand.IsDefault()) && score > DefaultCap {
		score = DefaultCap
	}
	return score
}
