package safety

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPolicyDir_MissingDirIsNotError(t *testing.T) {
	packs, err := LoadPolicyDir(filepath.Join(t.TempDir(), "nope"), slog.Default())
	if err != nil {
		t.Fatalf("LoadPolicyDir() error = %v", err)
	}
	if packs != nil {
		t.Errorf("packs = %v, want nil", packs)
	}
}

func TestLoadPolicyDir_LoadsYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "name: alpha\ndeny:\n  - pattern: curl\n")
	writePolicy(t, dir, "b.yml", "deny:\n  - pattern: wget\n    description: downloader\n")
	writePolicy(t, dir, "notes.txt", "not a policy")

	packs, err := LoadPolicyDir(dir, slog.Default())
	if err != nil {
		t.Fatalf("LoadPolicyDir() error = %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("packs = %d, want 2", len(packs))
	}
	if packs[0].Name != "alpha" {
		t.Errorf("packs[0].Name = %q, want %q", packs[0].Name, "alpha")
	}
	// Name falls back to the filename without extension.
	if packs[1].Name != "b" {
		t.Errorf("packs[1].Name = %q, want %q", packs[1].Name, "b")
	}
	if packs[1].Deny[0].Description != "downloader" {
		t.Errorf("description = %q", packs[1].Deny[0].Description)
	}
}

func TestLoadPolicyDir_SkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "bad.yaml", "deny: [unclosed")
	writePolicy(t, dir, "good.yaml", "name: good\ndeny:\n  - pattern: nc\n")

	packs, err := LoadPolicyDir(dir, slog.Default())
	if err != nil {
		t.Fatalf("LoadPolicyDir() error = %v", err)
	}
	if len(packs) != 1 || packs[0].Name != "good" {
		t.Errorf("packs = %+v, want only the good pack", packs)
	}
}
