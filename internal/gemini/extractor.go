package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"styleforge/internal/dna"
	"styleforge/internal/logging"
)

// ExtractDNA implements forge.FeatureExtractor. The reply must contain one
// JSON object that decodes to a valid DNA record; anything less is an
// extraction failure the caller handles by substituting the default record.
func (c *Client) ExtractDNA(ctx context.Context, image []byte, mime string, kind dna.Kind, cat dna.Category) (dna.DNA, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mime),
		genai.NewPartFromText(extractionPrompt(kind, cat)),
	}
	text, err := c.completeText(ctx, c.cfg.ExtractionModel, parts)
	c.metrics.RecordModelCall("extraction", err)
	if err != nil {
		return dna.DNA{}, err
	}
	return ParseDNA(text, kind)
}

// ParseDNA decodes a model reply into a validated DNA record. It tolerates
// prose and code fences around the JSON but not a structurally incomplete
// record: the result is either fully populated or an error.
func ParseDNA(reply string, kind dna.Kind) (dna.DNA, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		logging.GeminiWarn("extraction reply had no JSON (len=%d)", len(reply))
		return dna.DNA{}, err
	}

	var d dna.DNA
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return dna.DNA{}, fmt.Errorf("failed to decode DNA: %w", err)
	}
	d.Summary = strings.TrimSpace(d.Summary)
	if err := d.Validate(); err != nil {
		return dna.DNA{}, err
	}
	if kind == dna.KindIllustration && d.Illustration == nil {
		return dna.DNA{}, fmt.Errorf("dna: missing illustration block")
	}
	return d, nil
}

// DescribeStyle implements the description half of forge.FeatureExtractor.
func (c *Client) DescribeStyle(ctx context.Context, image []byte, mime string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mime),
		genai.NewPartFromText(descriptionPrompt),
	}
	text, err := c.completeText(ctx, c.cfg.ExtractionModel, parts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
