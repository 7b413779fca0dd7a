package gemini

import (
	"strings"
	"testing"

	"styleforge/internal/dna"
	"styleforge/internal/forge"
)

func TestGenerationPromptFirstIteration(t *testing.T) {
	p := generationPrompt(forge.GenerateRequest{
		Kind:      dna.KindTypeface,
		Target:    "Forge",
		Iteration: 1,
	})
	if !strings.Contains(p, `"Forge"`) {
		t.Error("prompt missing target text")
	}
	if strings.Contains(p, "previous attempt") {
		t.Error("first-iteration prompt mentions a previous attempt")
	}
}

func TestGenerationPromptThreadsFeedback(t *testing.T) {
	p := generationPrompt(forge.GenerateRequest{
		Kind:   dna.KindTypeface,
		Target: "Forge",
		Style:  "faithful",
		Feedback: &forge.Feedback{
			Iteration: 2,
			Score:     71,
			Critique:  "the terminals drifted toward ball shapes",
			Preserved: []string{"contrast"},
			Lost:      []string{"cut terminals"},
		},
		Iteration: 3,
	})
	for _, want := range []string{"71", "cut terminals", "contrast", "ball shapes", "faithful"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerationPromptSerializesDNA(t *testing.T) {
	d := dna.DNA{
		Summary:      "rounded monoline script",
		StrokeWeight: 0.4,
		Contrast:     0.05,
		Curvature:    0.9,
		CornerRadius: 0.8,
		Spacing:      0.5,
		Proportion:   0.6,
		Terminal:     dna.TerminalRounded,
	}
	p := generationPrompt(forge.GenerateRequest{Kind: dna.KindTypeface, Target: "Ab", ReferenceDNA: d})
	if !strings.Contains(p, "rounded monoline script") {
		t.Error("prompt missing serialized DNA")
	}

	// A default stand-in record must not leak into the prompt.
	p = generationPrompt(forge.GenerateRequest{Kind: dna.KindTypeface, Target: "Ab", ReferenceDNA: dna.Default(dna.KindTypeface)})
	if strings.Contains(p, "stroke_weight") {
		t.Error("default DNA serialized into prompt")
	}
}

func TestEvaluationPromptPerKind(t *testing.T) {
	p := evaluationPrompt(dna.KindTypeface, "Forge")
	if !strings.Contains(p, "text") || !strings.Contains(p, "generic_fallback") {
		t.Error("typeface evaluation prompt incomplete")
	}
	p = evaluationPrompt(dna.KindIllustration, "a fox in the snow")
	if !strings.Contains(p, "a fox in the snow") {
		t.Error("illustration evaluation prompt missing subject")
	}
}
