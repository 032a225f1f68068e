package main

import (
	"os"
	"path/filepath"
	"testing"

	"curator/pkg/codec"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name    string
		workDir string
		path    string
		want    string
	}{
		{"relative under workdir", "/work/jobs", "curator.db", "/work/jobs/curator.db"},
		{"absolute passes through", "/work/jobs", "/data/curator.db", "/data/curator.db"},
		{"dot workdir", ".", "logs", "logs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolvePath(tt.workDir, tt.path)
			if got != tt.want {
				t.Errorf("resolvePath(%q, %q) = %q, want %q", tt.workDir, tt.path, got, tt.want)
			}
		})
	}
}

func TestParsePayloadCompactText(t *testing.T) {
	value, err := parsePayload("concept: 3025315\nunit: mmHg", false)
	if err != nil {
		t.Fatalf("parsePayload failed: %v", err)
	}
	m, ok := value.(*codec.Map)
	if !ok {
		t.Fatalf("expected map value, got %T", value)
	}
	if got, _ := m.Get("unit"); got != codec.String("mmHg") {
		t.Errorf("unit = %v, want mmHg", got)
	}
}

func TestParsePayloadJSON(t *testing.T) {
	value, err := parsePayload(`{"concept": 3025315}`, true)
	if err != nil {
		t.Fatalf("parsePayload failed: %v", err)
	}
	m, ok := value.(*codec.Map)
	if !ok {
		t.Fatalf("expected map value, got %T", value)
	}
	if got, _ := m.Get("concept"); got != codec.Int(3025315) {
		t.Errorf("concept = %v, want 3025315", got)
	}
}

func TestParsePayloadMalformed(t *testing.T) {
	if _, err := parsePayload("parent:\n   odd: indent", false); err == nil {
		t.Error("expected error for malformed compact text")
	}
	if _, err := parsePayload("{not json", true); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoadWorkspaceConfigDefaults(t *testing.T) {
	workDir := t.TempDir()

	cfg, err := loadWorkspaceConfig(workDir)
	if err != nil {
		t.Fatalf("loadWorkspaceConfig failed: %v", err)
	}
	if cfg.Database.Path != "curator.db" {
		t.Errorf("database path = %q, want curator.db", cfg.Database.Path)
	}
	if cfg.Memory.TokenBudget != 8000 {
		t.Errorf("token budget = %d, want 8000", cfg.Memory.TokenBudget)
	}
}

func TestLoadWorkspaceConfigReadsFile(t *testing.T) {
	workDir := t.TempDir()
	curatorDir := filepath.Join(workDir, ".curator")
	if err := os.MkdirAll(curatorDir, 0755); err != nil {
		t.Fatalf("Failed to create .curator: %v", err)
	}
	content := "memory:\n  token_budget: 4000\n"
	if err := os.WriteFile(filepath.Join(curatorDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := loadWorkspaceConfig(workDir)
	if err != nil {
		t.Fatalf("loadWorkspaceConfig failed: %v", err)
	}
	if cfg.Memory.TokenBudget != 4000 {
		t.Errorf("token budget = %d, want 4000", cfg.Memory.TokenBudget)
	}
	if cfg.Database.Path != "curator.db" {
		t.Errorf("database path = %q, want default curator.db", cfg.Database.Path)
	}
}

func TestIndent(t *testing.T) {
	got := indent("concept: 1\nunit: mmHg\n")
	want := "  concept: 1\n  unit: mmHg"
	if got != want {
		t.Errorf("indent = %q, want %q", got, want)
	}
}
