package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateCuratorWorkspace(t *testing.T) {
	workDir := t.TempDir()

	if err := CreateCuratorWorkspace(workDir); err != nil {
		t.Fatalf("CreateCuratorWorkspace failed: %v", err)
	}

	curatorPath := filepath.Join(workDir, CuratorDir)
	if info, err := os.Stat(curatorPath); err != nil || !info.IsDir() {
		t.Errorf("expected %s directory to exist", curatorPath)
	}

	logsPath := filepath.Join(workDir, "logs")
	if info, err := os.Stat(logsPath); err != nil || !info.IsDir() {
		t.Errorf("expected %s directory to exist", logsPath)
	}

	data, err := os.ReadFile(ConfigPath(workDir))
	if err != nil {
		t.Fatalf("Failed to read generated config: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "token_budget: 8000") {
		t.Errorf("config template missing token budget, got:\n%s", content)
	}
	if !strings.Contains(content, "path: curator.db") {
		t.Errorf("config template missing database path, got:\n%s", content)
	}
}

func TestCreateCuratorWorkspaceIdempotent(t *testing.T) {
	workDir := t.TempDir()

	if err := CreateCuratorWorkspace(workDir); err != nil {
		t.Fatalf("first CreateCuratorWorkspace failed: %v", err)
	}

	custom := "database:\n  path: edited-by-hand.db\n"
	if err := os.WriteFile(ConfigPath(workDir), []byte(custom), 0644); err != nil {
		t.Fatalf("Failed to edit config: %v", err)
	}

	if err := CreateCuratorWorkspace(workDir); err != nil {
		t.Fatalf("second CreateCuratorWorkspace failed: %v", err)
	}

	data, err := os.ReadFile(ConfigPath(workDir))
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(data) != custom {
		t.Errorf("second run overwrote user config, got:\n%s", string(data))
	}
}

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/work/jobs")
	want := filepath.Join("/work/jobs", ".curator", "config.yaml")
	if got != want {
		t.Errorf("ConfigPath(/work/jobs) = %q, want %q", got, want)
	}
}
