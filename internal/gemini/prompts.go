package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"styleforge/internal/dna"
	"styleforge/internal/forge"
)

// extractionPrompt asks the vision model for one DNA record as JSON. The
// secondary block requested depends on the session kind and script category.
func extractionPrompt(kind dna.Kind, cat dna.Category) string {
	var b strings.Builder
	if kind == dna.KindIllustration {
		b.WriteString("Analyze the visual style of this illustration.\n")
	} else {
		b.WriteString("Analyze the letterform style of this typeface or logo.\n")
	}
	b.WriteString(`Reply with exactly one JSON object and no other commentary:
{
  "summary": "<one sentence describing the style>",
  "stroke_weight": <0.0 hairline .. 1.0 ultra-black>,
  "contrast": <0.0 monolinear .. 1.0 extreme thick/thin modulation>,
  "curvature": <0.0 fully straight .. 1.0 fully round>,
  "corner_radius": <0.0 sharp .. 1.0 soft>,
  "ink_trap_depth": <0.0 none .. 1.0 deep cuts>,
  "spacing": <0.0 tight .. 1.0 loose>,
  "proportion": <width divided by height, typically 0.3 .. 2.0>,
  "terminal": "<cut|rounded|flared|ball>",
  "serif": <true|false>`)
	switch {
	case kind == dna.KindIllustration:
		b.WriteString(`,
  "illustration": {
    "palette_size": <distinct colors divided by 16, 0.0 .. 1.0>,
    "shading": <0.0 flat .. 1.0 fully rendered>,
    "texture": <0.0 clean .. 1.0 heavily textured>,
    "outlined": <true|false>
  }`)
	case cat != dna.CategoryLatin:
		b.WriteString(`,
  "script": {
    "brush_pressure": <0.0 uniform .. 1.0 strong pressure modulation>,
    "density": <0.0 sparse .. 1.0 dense>,
    "angularity": <0.0 flowing .. 1.0 angular>
  }`)
	}
	b.WriteString("\n}\nThe summary must never be empty. Every numeric field is required.")
	return b.String()
}

// descriptionPrompt asks for a prose style description used verbatim inside
// generation instructions.
const descriptionPrompt = "Describe the visual style of this image in two or three sentences, " +
	"covering stroke treatment, shapes, color, and overall character. " +
	"Write only the description, no preamble."

// generationPrompt builds the instruction for one candidate, threading the
// reference DNA and the previous iteration's critique into the request.
func generationPrompt(req forge.GenerateRequest) string {
	var b strings.Builder
	if req.Kind == dna.KindIllustration {
		fmt.Fprintf(&b, "Create an illustration of %q matching the style of the attached reference image exactly.\n", req.Target)
	} else {
		fmt.Fprintf(&b, "Render the text %q as letterforms in the style of the attached reference image.\n", req.Target)
		b.WriteString("The text must read exactly as given, with every character present and legible.\n")
	}
	if req.Style != "" {
		fmt.Fprintf(&b, "Strategy: %s.\n", req.Style)
	}
	if req.Description != "" {
		fmt.Fprintf(&b, "Reference style: %s\n", req.Description)
	}
	if !req.ReferenceDNA.IsDefault() {
		if enc, err := json.Marshal(req.ReferenceDNA); err == nil {
			fmt.Fprintf(&b, "Measured style features to reproduce: %s\n", enc)
		}
	}
	if fb := req.Feedback; fb != nil {
		fmt.Fprintf(&b, "\nThe previous attempt scored %.0f/100.\n", fb.Score)
		if len(fb.Preserved) > 0 {
			fmt.Fprintf(&b, "Keep these qualities: %s.\n", strings.Join(fb.Preserved, ", "))
		}
		if len(fb.Lost) > 0 {
			fmt.Fprintf(&b, "These were lost and must be restored: %s.\n", strings.Join(fb.Lost, ", "))
		}
		if fb.Critique != "" {
			fmt.Fprintf(&b, "Critique to address: %s\n", fb.Critique)
		}
	}
	b.WriteString("\nProduce the image on a plain background. Do not produce a generic or standard rendering; the custom style of the reference is the whole point.")
	return b.String()
}

// evaluationPrompt asks the vision model to compare reference and candidate.
// The first attached image is the reference, the second the candidate.
func evaluationPrompt(kind dna.Kind, target string) string {
	var b strings.Builder
	b.WriteString("The first image is the style reference, the second is a generated candidate.\n")
	if kind == dna.KindIllustration {
		fmt.Fprintf(&b, "The candidate should depict %q in the reference's style.\n", target)
		b.WriteString("Score accuracy_score by how well the candidate depicts that subject.\n")
	} else {
		fmt.Fprintf(&b, "The candidate should render the text %q in the reference's letterform style.\n", target)
		b.WriteString("Score accuracy_score by whether the text reads exactly as given.\n")
	}
	b.WriteString(`Reply with exactly one JSON object:
{
  "visual_score": <0-100, how closely the candidate matches the reference style>,
  "accuracy_score": <0-100>,
  "preserved": ["<style features the candidate kept>"],
  "lost": ["<style features the candidate lost>"],
  "critique": "<one or two sentences of actionable critique>",
  "generic_fallback": <true if the candidate ignored the custom style and fell back to a generic or standard rendering>
}`)
	return b.String()
}
