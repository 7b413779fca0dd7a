// Package dna defines the measurable visual-style record ("DNA") extracted
// from reference and candidate images, and the numeric comparison between
// two records.
//
// DNA records are used for:
//   - Steering candidate generation (the record is serialized into the
//     generation instruction)
//   - Scoring candidates against the reference via weighted normalized
//     diffing (Compare)
//   - Display and persistence of per-iteration evaluation documents
//
// A record extracted by a vision model is validated before use; when
// extraction or validation fails, callers substitute Default(kind), which is
// detectable via IsDefault so downstream scoring can withhold credit.
package dna

import (
	"fmt"
	"math"
)

// Kind selects the session variant: forging letterforms from a typeface or
// logo reference, or forging scenes from an illustration reference.
type Kind string

const (
	KindTypeface     Kind = "typeface"
	KindIllustration Kind = "illustration"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTypeface || k == KindIllustration
}

// TerminalStyle describes how strokes end (letterforms) or how lines are
// capped (illustrations).
type TerminalStyle string

const (
	TerminalCut     TerminalStyle = "cut"
	TerminalRounded TerminalStyle = "rounded"
	TerminalFlared  TerminalStyle = "flared"
	TerminalBall    TerminalStyle = "ball"
)

// knownTerminals is the closed set accepted by Validate.
var knownTerminals = map[TerminalStyle]bool{
	TerminalCut:     true,
	TerminalRounded: true,
	TerminalFlared:  true,
	TerminalBall:    true,
}

// DNA is one extracted feature record. Numeric fields are ratios normalized
// by the extraction prompt to 0.0-1.0 (Proportion is width/height and may
// reach 2.0 for very wide styles).
//
// Summary doubles as the default-stand-in sentinel: extraction always
// produces a non-empty one-line summary, so an empty Summary marks a record
// that was substituted after a failed or invalid extraction.
type DNA struct {
	Summary string `json:"summary"`

	StrokeWeight float64 `json:"stroke_weight"`
	Contrast     float64 `json:"contrast"`       // thick/thin modulation
	Curvature    float64 `json:"curvature"`      // straight 0.0 .. fully round 1.0
	CornerRadius float64 `json:"corner_radius"`  // sharp 0.0 .. soft 1.0
	InkTrapDepth float64 `json:"ink_trap_depth"` // 0.0 when absent
	Spacing      float64 `json:"spacing"`        // tight 0.0 .. loose 1.0
	Proportion   float64 `json:"proportion"`     // width/height

	Terminal TerminalStyle `json:"terminal"`
	Serif    bool          `json:"serif"`

	// Secondary blocks, present only for the matching category/kind.
	Script       *ScriptTraits       `json:"script,omitempty"`
	Illustration *IllustrationTraits `json:"illustration,omitempty"`
}

// ScriptTraits is the secondary block for non-latin and mixed-script
// targets.
type ScriptTraits struct {
	BrushPressure float64 `json:"brush_pressure"` // pressure modulation along strokes
	Density       float64 `json:"density"`        // stroke density within the em
	Angularity    float64 `json:"angularity"`     // angular 1.0 .. flowing 0.0
}

// IllustrationTraits is the secondary block for illustration references.
type IllustrationTraits struct {
	PaletteSize float64 `json:"palette_size"` // distinct colors, normalized /16
	Shading     float64 `json:"shading"`      // flat 0.0 .. fully rendered 1.0
	Texture     float64 `json:"texture"`      // clean 0.0 .. heavily textured 1.0
	Outlined    bool    `json:"outlined"`
}

// IsDefault reports whether d is a substituted stand-in rather than a real
// extraction result.
func (d DNA) IsDefault() bool {
	return d.Summary == ""
}

// Validate checks that an extracted record is fully populated and in range.
// A record that fails validation must not be scored; callers substitute
// Default(kind) instead so the comparison cap applies.
func (d DNA) Validate() error {
	if d.Summary == "" {
		return fmt.Errorf("dna: missing summary")
	}
	if !knownTerminals[d.Terminal] {
		return fmt.Errorf("dna: unknown terminal style %q", d.Terminal)
	}
	fields := map[string]float64{
		"stroke_weight":  d.StrokeWeight,
		"contrast":       d.Contrast,
		"curvature":      d.Curvature,
		"corner_radius":  d.CornerRadius,
		"ink_trap_depth": d.InkTrapDepth,
		"spacing":        d.Spacing,
		"proportion":     d.Proportion,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("dna: field %s is not finite", name)
		}
		if v < 0 || v > 4 {
			return fmt.Errorf("dna: field %s out of range: %v", name, v)
		}
	}
	return nil
}

// Default returns the well-known stand-in record used when extraction fails.
// Its Summary is empty, which is how IsDefault recognizes it.
func Default(kind Kind) DNA {
	d := DNA{
		StrokeWeight: 0.5,
		Contrast:     0.5,
		Curvature:    0.5,
		CornerRadius: 0.25,
		InkTrapDepth: 0,
		Spacing:      0.5,
		Proportion:   0.55,
		Terminal:     TerminalCut,
	}
	if kind == KindIllustration {
		d.Illustration = &IllustrationTraits{
			PaletteSize: 0.5,
			Shading:     0.5,
			Texture:     0.25,
		}
	}
	return d
}
