// Package config holds the runtime configuration for a scanbatch run:
// batching parameters, retry policy, and the model to invoke.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults for the processing configuration. The mini-batch ceiling exists
// because model output quality degrades beyond ~10 jobs per call.
const (
	DefaultBatchSize      = 50
	DefaultMiniBatchSize  = 5
	DefaultMiniBatchDelay = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultInvokeTimeout  = 5 * time.Minute
	DefaultModel          = "gemini-3-flash-preview"

	MinMiniBatchSize = 1
	MaxMiniBatchSize = 10
)

// Config is the resolved configuration for one invocation of the CLI.
type Config struct {
	// BatchSize is the outer partition size; each batch flushes the
	// checkpoint once.
	BatchSize int

	// MiniBatchSize is the number of jobs per agent invocation, clamped
	// into [MinMiniBatchSize, MaxMiniBatchSize] by the organizer.
	MiniBatchSize int

	// MiniBatchDelay is the pause between mini-batches within a batch,
	// purely to stay under provider rate limits.
	MiniBatchDelay time.Duration

	// MaxRetries is the number of retries after a failed invocation.
	MaxRetries int

	// InvokeTimeout bounds a single agent invocation.
	InvokeTimeout time.Duration

	// Model is the model identifier passed to the agent.
	Model string

	// OutputDir receives result CSVs and run summaries. Empty means
	// alongside the input file.
	OutputDir string

	Verbose bool
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		MiniBatchSize:  DefaultMiniBatchSize,
		MiniBatchDelay: DefaultMiniBatchDelay,
		MaxRetries:     DefaultMaxRetries,
		InvokeTimeout:  DefaultInvokeTimeout,
		Model:          DefaultModel,
	}
}

// LoadEnv loads a .env file from the working directory when present, then
// applies SCANBATCH_* environment overrides on top of cfg. Flag values set
// by the caller afterwards take final precedence.
func LoadEnv(cfg *Config) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	if v := os.Getenv("SCANBATCH_BATCH_SIZE"); v != "" {
		applyInt(v, "SCANBATCH_BATCH_SIZE", &cfg.BatchSize)
	}
	if v := os.Getenv("SCANBATCH_MINI_BATCH_SIZE"); v != "" {
		applyInt(v, "SCANBATCH_MINI_BATCH_SIZE", &cfg.MiniBatchSize)
	}
	if v := os.Getenv("SCANBATCH_MAX_RETRIES"); v != "" {
		applyInt(v, "SCANBATCH_MAX_RETRIES", &cfg.MaxRetries)
	}
	if v := os.Getenv("SCANBATCH_DELAY"); v != "" {
		applyDuration(v, "SCANBATCH_DELAY", &cfg.MiniBatchDelay)
	}
	if v := os.Getenv("SCANBATCH_TIMEOUT"); v != "" {
		applyDuration(v, "SCANBATCH_TIMEOUT", &cfg.InvokeTimeout)
	}
	if v := os.Getenv("SCANBATCH_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("SCANBATCH_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
}

// Validate rejects configurations that cannot drive a run at all. The
// mini-batch size is deliberately not validated here; the organizer clamps
// it instead of failing.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MiniBatchDelay < 0 {
		return fmt.Errorf("mini-batch delay must be >= 0, got %s", c.MiniBatchDelay)
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("invoke timeout must be > 0, got %s", c.InvokeTimeout)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return nil
}

// APIKey resolves the Gemini API key from the environment.
func APIKey() (string, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: set GEMINI_API_KEY")
}

func applyInt(v, name string, dst *int) {
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring non-integer environment override")
		return
	}
	*dst = n
}

func applyDuration(v, name string, dst *time.Duration) {
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring unparseable duration override")
		return
	}
	*dst = d
}
