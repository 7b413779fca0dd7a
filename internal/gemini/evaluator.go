package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"styleforge/internal/forge"
)

// Evaluate implements forge.SimilarityEvaluator. Reference first, candidate
// second; the prompt tells the model which is which.
func (c *Client) Evaluate(ctx context.Context, req forge.EvaluateRequest) (*forge.Evaluation, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.ReferenceImage, req.ReferenceMIME),
		genai.NewPartFromBytes(req.CandidateImage, req.CandidateMIME),
		genai.NewPartFromText(evaluationPrompt(req.Kind, req.Target)),
	}
	text, err := c.completeText(ctx, c.cfg.EvaluationModel, parts)
	c.metrics.RecordModelCall("evaluation", err)
	if err != nil {
		return nil, err
	}
	return ParseEvaluation(text)
}

// ParseEvaluation decodes a verdict reply. Scores outside 0-100 are a model
// malfunction and rejected rather than silently clamped here; the caller
// treats the error as a failed iteration.
func ParseEvaluation(reply string) (*forge.Evaluation, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var ev forge.Evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation: %w", err)
	}
	if ev.Visual < 0 || ev.Visual > 100 || ev.Accuracy < 0 || ev.Accuracy > 100 {
		return nil, fmt.Errorf("evaluation scores out of range: visual=%v accuracy=%v", ev.Visual, ev.Accuracy)
	}
	return &ev, nil
}
