package forge

import (
	"math"
	"testing"
)

func TestCompositeUnpenalizedBlend(t *testing.T) {
	tests := []struct {
		name                       string
		visual, accuracy, dnaScore float64
		want                       float64
	}{
		{"all perfect", 100, 100, 100, 100},
		{"all zero wins low-accuracy ceiling trivially", 0, 0, 0, 0},
		{"weighted blend", 90, 80, 70, 90*0.4 + 80*0.3 + 70*0.3},
		{"accuracy exactly at cutoff", 100, 50, 100, 100*0.4 + 50*0.3 + 100*0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Composite(tt.visual, tt.accuracy, tt.dnaScore, false)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Composite(%v,%v,%v,false) = %v, want %v",
					tt.visual, tt.accuracy, tt.dnaScore, got, tt.want)
			}
		})
	}
}

func TestCompositeClampedToRange(t *testing.T) {
	for _, in := range [][3]float64{
		{-50, -50, -50},
		{150, 150, 150},
		{200, 0, 0},
		{0, 200, 200},
	} {
		got := Composite(in[0], in[1], in[2], false)
		if got < 0 || got > 100 {
			t.Errorf("Composite(%v) = %v, out of [0,100]", in, got)
		}
	}
}

// Composite must be non-decreasing in each sub-score while no penalty is
// active.
func TestCompositeMonotoneWithoutPenalties(t *testing.T) {
	base := Composite(60, 70, 80, false)
	if got := Composite(61, 70, 80, false); got < base {
		t.Errorf("raising visual lowered composite: %v -> %v", base, got)
	}
	if got := Composite(60, 71, 80, false); got < base {
		t.Errorf("raising accuracy lowered composite: %v -> %v", base, got)
	}
	if got := Composite(60, 70, 81, false); got < base {
		t.Errorf("raising dna lowered composite: %v -> %v", base, got)
	}
}

// A generic fallback verdict caps the score at 35 no matter how high the
// sub-scores are.
func TestCompositeFallbackCeiling(t *testing.T) {
	if got := Composite(90, 90, 90, true); got > fallbackCeiling {
		t.Errorf("Composite(90,90,90,true) = %v, want <= %v", got, fallbackCeiling)
	}
	// The penalty blend applies below the ceiling too.
	want := 10*fallbackVisualWeight + 60*fallbackAccuracyWeight + 20*fallbackDNAWeight
	if got := Composite(10, 60, 20, true); math.Abs(got-want) > 1e-9 {
		t.Errorf("Composite(10,60,20,true) = %v, want penalty blend %v", got, want)
	}
	// The fallback ceiling is always at or below the unpenalized composite
	// for the same inputs.
	for _, in := range [][3]float64{{90, 90, 90}, {50, 60, 70}, {35, 35, 35}, {100, 0, 100}} {
		plain := Composite(in[0], in[1], in[2], false)
		penalized := Composite(in[0], in[1], in[2], true)
		if penalized > plain && penalized > fallbackCeiling {
			t.Errorf("fallback raised score for %v: %v > %v", in, penalized, plain)
		}
	}
}

func TestCompositeLowAccuracyCeiling(t *testing.T) {
	if got := Composite(100, 49, 100, false); got > lowAccuracyCeiling {
		t.Errorf("Composite(100,49,100,false) = %v, want <= %v", got, lowAccuracyCeiling)
	}
	// Accuracy at the cutoff is not penalized.
	if got := Composite(100, 50, 100, false); got <= lowAccuracyCeiling {
		t.Errorf("Composite(100,50,100,false) = %v, expected no ceiling", got)
	}
}

// When both penalty conditions hold, the tighter ceiling wins.
func TestCompositeTighterCeilingWins(t *testing.T) {
	got := Composite(90, 10, 90, true)
	// Penalty blend: 90*0.2 + 10*0.4 + 90*0.1 = 31, under both ceilings.
	want := 90*fallbackVisualWeight + 10*fallbackAccuracyWeight + 90*fallbackDNAWeight
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Composite(90,10,90,true) = %v, want %v", got, want)
	}
	if got > fallbackCeiling || got > lowAccuracyCeiling {
		t.Errorf("Composite(90,10,90,true) = %v exceeds a ceiling", got)
	}
}

func TestClamp100(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-1, 0}, {0, 0}, {55.5, 55.5}, {100, 100}, {101, 100},
	}
	for _, tt := range tests {
		if got := clamp100(tt.in); got != tt.want {
			t.Errorf("clamp100(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
