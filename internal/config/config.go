// Package config loads and validates styleforge configuration from a YAML
// file with environment overrides. The server reloads scoring settings on
// file change via Watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"styleforge/internal/dna"
	"styleforge/internal/forge"
)

// Config holds all styleforge configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Gemini  GeminiConfig  `yaml:"gemini"`
	Forge   ForgeConfig   `yaml:"forge"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// GeminiConfig configures the model collaborators.
type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	ExtractionModel string `yaml:"extraction_model"`
	EvaluationModel string `yaml:"evaluation_model"`
	GenerationModel string `yaml:"generation_model"`
	Timeout         string `yaml:"timeout"`
}

// ForgeConfig tunes the control loop. Weight overrides replace the built-in
// category tables when present.
type ForgeConfig struct {
	MaxIterations             int     `yaml:"max_iterations"`
	IllustrationMaxIterations int     `yaml:"illustration_max_iterations"`
	Threshold                 float64 `yaml:"threshold"`
	IllustrationThreshold     float64 `yaml:"illustration_threshold"`

	Weights *dna.WeightTable `yaml:"weights,omitempty"`
}

// SessionConfig configures artifact persistence.
type SessionConfig struct {
	StateDir     string `yaml:"state_dir"`
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CacheConfig configures the reference-feature cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".styleforge")
	return &Config{
		Name:    "styleforge",
		Version: "1.0.0",

		Gemini: GeminiConfig{
			ExtractionModel: "gemini-2.5-flash",
			EvaluationModel: "gemini-2.5-flash",
			GenerationModel: "gemini-2.5-flash-image",
			Timeout:         "120s",
		},

		Forge: ForgeConfig{
			MaxIterations:             forge.DefaultMaxIterations,
			IllustrationMaxIterations: forge.IllustrationMaxIterations,
			Threshold:                 forge.DefaultThreshold,
			IllustrationThreshold:     forge.IllustrationThreshold,
		},

		Session: SessionConfig{
			StateDir:     stateDir,
			DatabasePath: filepath.Join(stateDir, "styleforge.db"),
		},

		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8474,
		},

		Cache: CacheConfig{
			Capacity: 1,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".styleforge", "config.yaml")
}

// Load reads configuration from a YAML file, starting from defaults. A
// missing file returns the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating the directory as
// needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if dir := os.Getenv("STYLEFORGE_STATE_DIR"); dir != "" {
		c.Session.StateDir = dir
		c.Session.DatabasePath = filepath.Join(dir, "styleforge.db")
	}
	if db := os.Getenv("STYLEFORGE_DB"); db != "" {
		c.Session.DatabasePath = db
	}
	if host := os.Getenv("STYLEFORGE_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("STYLEFORGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

// Validate checks the settings a session cannot run without. The missing
// API key is the fatal credential error: it fails here, before any session
// starts.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini API key required (set gemini.api_key or GEMINI_API_KEY)")
	}
	if c.Forge.MaxIterations <= 0 || c.Forge.IllustrationMaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive")
	}
	if c.Forge.Threshold <= 0 || c.Forge.Threshold > 100 ||
		c.Forge.IllustrationThreshold <= 0 || c.Forge.IllustrationThreshold > 100 {
		return fmt.Errorf("convergence thresholds must be in (0,100]")
	}
	if c.Forge.Weights != nil {
		if err := c.Forge.Weights.Validate(); err != nil {
			return fmt.Errorf("invalid weight override: %w", err)
		}
	}
	if c.Session.StateDir == "" {
		return fmt.Errorf("session state_dir required")
	}
	return nil
}

// GetGeminiTimeout returns the model call timeout as a duration.
func (c *Config) GetGeminiTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gemini.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ForgeDefaults returns the iteration budget and threshold for a session
// kind.
func (c *Config) ForgeDefaults(kind dna.Kind) (maxIterations int, threshold float64) {
	if kind == dna.KindIllustration {
		return c.Forge.IllustrationMaxIterations, c.Forge.IllustrationThreshold
	}
	return c.Forge.MaxIterations, c.Forge.Threshold
}
