package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"styleforge/internal/cache"
	"styleforge/internal/config"
	"styleforge/internal/gemini"
	"styleforge/internal/session"
)

// buildGeminiClient connects the model client from config. The missing-key
// error surfaces here, before any session state is created.
func buildGeminiClient(ctx context.Context, cfg *config.Config) (*gemini.Client, error) {
	return gemini.NewClient(ctx, gemini.Config{
		APIKey:          cfg.Gemini.APIKey,
		ExtractionModel: cfg.Gemini.ExtractionModel,
		EvaluationModel: cfg.Gemini.EvaluationModel,
		GenerationModel: cfg.Gemini.GenerationModel,
		Timeout:         cfg.GetGeminiTimeout(),
	})
}

// buildStore opens the session directory store with its sqlite index.
func buildStore(cfg *config.Config) (*session.Store, *session.Index, error) {
	idx, err := session.NewIndex(cfg.Session.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open session index: %w", err)
	}
	store, err := session.NewStore(cfg.Session.StateDir, idx)
	if err != nil {
		idx.Close()
		return nil, nil, err
	}
	return store, idx, nil
}

func buildCache(cfg *config.Config) *cache.FeatureCache {
	return cache.New(cfg.Cache.Capacity)
}

// readReference loads the reference image and sniffs its MIME type.
func readReference(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read reference image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("reference image %s is empty", path)
	}
	return data, http.DetectContentType(data), nil
}
