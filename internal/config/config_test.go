package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"styleforge/internal/dna"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.GenerationModel != "gemini-2.5-flash-image" {
		t.Errorf("generation model = %q", cfg.Gemini.GenerationModel)
	}
	if cfg.Forge.MaxIterations != 5 || cfg.Forge.IllustrationMaxIterations != 3 {
		t.Errorf("iteration defaults = %d/%d", cfg.Forge.MaxIterations, cfg.Forge.IllustrationMaxIterations)
	}
	if cfg.Forge.Threshold != 90 || cfg.Forge.IllustrationThreshold != 85 {
		t.Errorf("threshold defaults = %v/%v", cfg.Forge.Threshold, cfg.Forge.IllustrationThreshold)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
gemini:
  api_key: test-key
forge:
  threshold: 94
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.Gemini.APIKey)
	}
	if cfg.Forge.Threshold != 94 {
		t.Errorf("threshold = %v, want 94", cfg.Forge.Threshold)
	}
	if cfg.Forge.MaxIterations != 5 {
		t.Errorf("max iterations = %d, defaults not preserved", cfg.Forge.MaxIterations)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not yaml {"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("STYLEFORGE_STATE_DIR", "/tmp/forge-state")
	t.Setenv("STYLEFORGE_PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Gemini.APIKey)
	}
	if cfg.Session.StateDir != "/tmp/forge-state" {
		t.Errorf("state dir = %q", cfg.Session.StateDir)
	}
	if cfg.Session.DatabasePath != "/tmp/forge-state/styleforge.db" {
		t.Errorf("db path = %q", cfg.Session.DatabasePath)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Gemini.APIKey = "k"
		return c
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.Gemini.APIKey = "" }},
		{"zero iterations", func(c *Config) { c.Forge.MaxIterations = 0 }},
		{"threshold above 100", func(c *Config) { c.Forge.Threshold = 101 }},
		{"empty state dir", func(c *Config) { c.Session.StateDir = "" }},
		{"bad weight override", func(c *Config) {
			c.Forge.Weights = &dna.WeightTable{Contrast: 50}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Gemini.APIKey = "saved-key"
	cfg.Forge.Threshold = 87.5

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Gemini.APIKey != "saved-key" || loaded.Forge.Threshold != 87.5 {
		t.Errorf("round trip lost values: %+v", loaded.Forge)
	}
}

func TestGetGeminiTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetGeminiTimeout(); got != 120*time.Second {
		t.Errorf("timeout = %v", got)
	}
	cfg.Gemini.Timeout = "not-a-duration"
	if got := cfg.GetGeminiTimeout(); got != 120*time.Second {
		t.Errorf("fallback timeout = %v", got)
	}
}

func TestForgeDefaultsPerKind(t *testing.T) {
	cfg := DefaultConfig()
	if n, th := cfg.ForgeDefaults(dna.KindTypeface); n != 5 || th != 90 {
		t.Errorf("typeface defaults = %d/%v", n, th)
	}
	if n, th := cfg.ForgeDefaults(dna.KindIllustration); n != 3 || th != 85 {
		t.Errorf("illustration defaults = %d/%v", n, th)
	}
}
