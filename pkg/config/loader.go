package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and validates a YAML config file. ${VAR} placeholders are
// substituted from the environment before decoding; unset variables are left
// verbatim. Unknown keys are rejected. Missing fields take their defaults,
// and an empty file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	text := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		name := match[2 : len(match)-1] // Strip ${ and }
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})

	cfg := &Config{}
	decoder := yaml.NewDecoder(strings.NewReader(text))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Review.ConfidenceThreshold < 0 || cfg.Review.ConfidenceThreshold > 1 {
		return fmt.Errorf("review.confidence_threshold must be in [0,1], got %g", cfg.Review.ConfidenceThreshold)
	}
	if cfg.Memory.TokenBudget <= 0 {
		return fmt.Errorf("memory.token_budget must be positive, got %d", cfg.Memory.TokenBudget)
	}
	if cfg.Memory.BudgetFraction <= 0 || cfg.Memory.BudgetFraction > 1 {
		return fmt.Errorf("memory.budget_fraction must be in (0,1], got %g", cfg.Memory.BudgetFraction)
	}
	if cfg.Memory.RetentionWindow < 1 {
		return fmt.Errorf("memory.retention_window must be at least 1, got %d", cfg.Memory.RetentionWindow)
	}
	if cfg.Jobs.KeepCheckpoints < 1 {
		return fmt.Errorf("jobs.keep_checkpoints must be at least 1, got %d", cfg.Jobs.KeepCheckpoints)
	}
	return nil
}
