package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigValidateCommand(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "lodestar.yaml")
	content := []byte(`version: 1
sources:
  - id: web
    push_url: http://localhost:8080/events
`)
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"config", "validate", tmp})
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	content := []byte(`version: 3
sources:
  - id: web
`)
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"config", "validate", tmp})
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected validation failure")
	}
}

func TestConfigInitCommand(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "lodestar.yaml")
	rootCmd.SetArgs([]string{"config", "init", "--output", tmp})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("generated config is empty")
	}
}

func TestVersionCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
}
