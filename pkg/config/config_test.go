package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curator.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.Events.Dir != DefaultEventsDir {
		t.Errorf("Events.Dir = %q, want %q", cfg.Events.Dir, DefaultEventsDir)
	}
	if cfg.Review.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("Review.ConfidenceThreshold = %g, want %g", cfg.Review.ConfidenceThreshold, DefaultConfidenceThreshold)
	}
	if cfg.Memory.TokenBudget != DefaultTokenBudget {
		t.Errorf("Memory.TokenBudget = %d, want %d", cfg.Memory.TokenBudget, DefaultTokenBudget)
	}
	if cfg.Memory.BudgetFraction != DefaultBudgetFraction {
		t.Errorf("Memory.BudgetFraction = %g, want %g", cfg.Memory.BudgetFraction, DefaultBudgetFraction)
	}
	if cfg.Memory.RetentionWindow != DefaultRetentionWindow {
		t.Errorf("Memory.RetentionWindow = %d, want %d", cfg.Memory.RetentionWindow, DefaultRetentionWindow)
	}
	if cfg.Memory.Tokenizer != "" {
		t.Errorf("Memory.Tokenizer = %q, want empty", cfg.Memory.Tokenizer)
	}
	if cfg.Jobs.KeepCheckpoints != DefaultKeepCheckpoints {
		t.Errorf("Jobs.KeepCheckpoints = %d, want %d", cfg.Jobs.KeepCheckpoints, DefaultKeepCheckpoints)
	}
	if cfg.Metrics.PrometheusURL != "" {
		t.Errorf("Metrics.PrometheusURL = %q, want empty", cfg.Metrics.PrometheusURL)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: /var/lib/curator/curator.db
events:
  dir: /var/log/curator
review:
  confidence_threshold: 0.85
memory:
  token_budget: 16000
  budget_fraction: 0.9
  retention_window: 5
  tokenizer: gpt-4
jobs:
  keep_checkpoints: 10
metrics:
  prometheus_url: http://localhost:9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/var/lib/curator/curator.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Events.Dir != "/var/log/curator" {
		t.Errorf("Events.Dir = %q", cfg.Events.Dir)
	}
	if cfg.Review.ConfidenceThreshold != 0.85 {
		t.Errorf("Review.ConfidenceThreshold = %g", cfg.Review.ConfidenceThreshold)
	}
	if cfg.Memory.TokenBudget != 16000 {
		t.Errorf("Memory.TokenBudget = %d", cfg.Memory.TokenBudget)
	}
	if cfg.Memory.BudgetFraction != 0.9 {
		t.Errorf("Memory.BudgetFraction = %g", cfg.Memory.BudgetFraction)
	}
	if cfg.Memory.RetentionWindow != 5 {
		t.Errorf("Memory.RetentionWindow = %d", cfg.Memory.RetentionWindow)
	}
	if cfg.Memory.Tokenizer != "gpt-4" {
		t.Errorf("Memory.Tokenizer = %q", cfg.Memory.Tokenizer)
	}
	if cfg.Jobs.KeepCheckpoints != 10 {
		t.Errorf("Jobs.KeepCheckpoints = %d", cfg.Jobs.KeepCheckpoints)
	}
	if cfg.Metrics.PrometheusURL != "http://localhost:9090" {
		t.Errorf("Metrics.PrometheusURL = %q", cfg.Metrics.PrometheusURL)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "test.db")
	}
	if cfg.Memory.TokenBudget != DefaultTokenBudget {
		t.Errorf("Memory.TokenBudget = %d, want default %d", cfg.Memory.TokenBudget, DefaultTokenBudget)
	}
	if cfg.Review.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("Review.ConfidenceThreshold = %g, want default %g", cfg.Review.ConfidenceThreshold, DefaultConfidenceThreshold)
	}
	if cfg.Jobs.KeepCheckpoints != DefaultKeepCheckpoints {
		t.Errorf("Jobs.KeepCheckpoints = %d, want default %d", cfg.Jobs.KeepCheckpoints, DefaultKeepCheckpoints)
	}
}

func TestLoadEmptyFileYieldsDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path = %q, want default %q", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.Memory.BudgetFraction != DefaultBudgetFraction {
		t.Errorf("Memory.BudgetFraction = %g, want default %g", cfg.Memory.BudgetFraction, DefaultBudgetFraction)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: test.db
  flavor: postgres
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "flavor") {
		t.Errorf("Expected error to name the unknown key, got: %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "threshold above one",
			content: "review:\n  confidence_threshold: 1.5\n",
			want:    "confidence_threshold",
		},
		{
			name:    "negative threshold",
			content: "review:\n  confidence_threshold: -0.1\n",
			want:    "confidence_threshold",
		},
		{
			name:    "negative budget",
			content: "memory:\n  token_budget: -100\n",
			want:    "token_budget",
		},
		{
			name:    "fraction above one",
			content: "memory:\n  budget_fraction: 1.2\n",
			want:    "budget_fraction",
		},
		{
			name:    "negative retention window",
			content: "memory:\n  retention_window: -1\n",
			want:    "retention_window",
		},
		{
			name:    "negative keep checkpoints",
			content: "jobs:\n  keep_checkpoints: -2\n",
			want:    "keep_checkpoints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("CURATOR_TEST_DB", "from-env.db")

	path := writeConfigFile(t, `
database:
  path: ${CURATOR_TEST_DB}
events:
  dir: ${CURATOR_TEST_UNSET_DIR}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "from-env.db")
	}
	if cfg.Events.Dir != "${CURATOR_TEST_UNSET_DIR}" {
		t.Errorf("Events.Dir = %q, want placeholder left verbatim", cfg.Events.Dir)
	}
}
