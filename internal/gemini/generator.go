package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"styleforge/internal/forge"
	"styleforge/internal/logging"
)

// Generate implements forge.CandidateGenerator. The reference image rides
// along with the instruction so the model can imitate it directly; the reply
// is scanned for the first inline image part. Zero images is a generation
// failure.
func (c *Client) Generate(ctx context.Context, req forge.GenerateRequest) (*forge.Candidate, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.ReferenceImage, req.ReferenceMIME),
		genai.NewPartFromText(generationPrompt(req)),
	}

	resp, err := c.generate(ctx, c.cfg.GenerationModel, parts, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	c.metrics.RecordModelCall("generation", err)
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				logging.Gemini("generated candidate: iteration=%d bytes=%d mime=%s",
					req.Iteration, len(part.InlineData.Data), part.InlineData.MIMEType)
				return &forge.Candidate{
					Data: part.InlineData.Data,
					MIME: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	logging.GeminiWarn("generation returned no image: iteration=%d", req.Iteration)
	return nil, errors.New("model returned no image")
}
