// Package gemini implements the three model-backed collaborators of a forge
// session on top of the Google GenAI SDK: DNA extraction and similarity
// evaluation through a vision-capable text model, and candidate generation
// through an image-capable model.
//
// One Client serves all three roles; the controller consumes it through the
// forge collaborator interfaces. Model replies are free text expected to
// contain one JSON object; ExtractJSON pulls the first balanced region out of
// whatever prose or code fences surround it.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"styleforge/internal/logging"
	"styleforge/internal/metrics"
)

// Default model identifiers. The generation model must support image output.
const (
	DefaultExtractionModel = "gemini-2.5-flash"
	DefaultEvaluationModel = "gemini-2.5-flash"
	DefaultGenerationModel = "gemini-2.5-flash-image"

	defaultTimeout = 2 * time.Minute
)

// ErrMissingAPIKey is the fatal credential error: a session cannot start
// without it.
var ErrMissingAPIKey = errors.New("gemini: API key not configured")

// Config selects models and transport behavior for one Client.
type Config struct {
	APIKey          string
	ExtractionModel string
	EvaluationModel string
	GenerationModel string
	Timeout         time.Duration
}

// Client wraps one genai.Client and implements forge.FeatureExtractor,
// forge.CandidateGenerator, and forge.SimilarityEvaluator.
type Client struct {
	client  *genai.Client
	cfg     Config
	metrics *metrics.Metrics
}

// NewClient validates the credential and connects the SDK client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = DefaultExtractionModel
	}
	if cfg.EvaluationModel == "" {
		cfg.EvaluationModel = DefaultEvaluationModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logging.Gemini("client ready: extraction=%s evaluation=%s generation=%s",
		cfg.ExtractionModel, cfg.EvaluationModel, cfg.GenerationModel)
	return &Client{client: client, cfg: cfg, metrics: metrics.NewMetrics()}, nil
}

// generate runs one GenerateContent call, applying the configured timeout
// when the caller's context carries no deadline.
func (c *Client) generate(ctx context.Context, model string, parts []*genai.Part, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		logging.GeminiError("GenerateContent model=%s failed after %v: %v", model, time.Since(start), err)
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	logging.GeminiDebug("GenerateContent model=%s completed in %v", model, time.Since(start))
	return resp, nil
}

// completeText runs a vision+text call and returns the concatenated text
// reply.
func (c *Client) completeText(ctx context.Context, model string, parts []*genai.Part) (string, error) {
	resp, err := c.generate(ctx, model, parts, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}
