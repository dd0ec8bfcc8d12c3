// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/27inator/KPM-cursor/lib/vault"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestLoadWithoutEnvVarReturnsDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HeartbeatSeconds != 3600 || cfg.DrainSeconds != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Backend() != vault.Keyring {
		t.Fatalf("default backend = %v", cfg.Backend())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pea.yaml")
	content := strings.Join([]string{
		"bus_url: https://bus.example.com",
		"company_id: \"42\"",
		"vault_backend: file",
		"drain_seconds: 5",
		"hostname: line-3-scanner",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.BusURL != "https://bus.example.com" {
		t.Fatalf("BusURL = %q", cfg.BusURL)
	}
	if cfg.CompanyID != "42" {
		t.Fatalf("CompanyID = %q", cfg.CompanyID)
	}
	if cfg.Backend() != vault.File {
		t.Fatalf("Backend = %v", cfg.Backend())
	}
	if cfg.DrainSeconds != 5 {
		t.Fatalf("DrainSeconds = %d", cfg.DrainSeconds)
	}
	if cfg.Hostname != "line-3-scanner" {
		t.Fatalf("Hostname = %q", cfg.Hostname)
	}
	// Untouched fields keep their defaults.
	if cfg.HeartbeatSeconds != 3600 {
		t.Fatalf("HeartbeatSeconds = %d", cfg.HeartbeatSeconds)
	}
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pea.yaml")
	content := strings.Join([]string{
		"vault_backend: tpm",
		"drain_seconds: -1",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	// Both problems are reported in one pass.
	if !strings.Contains(err.Error(), "backend") || !strings.Contains(err.Error(), "drain_seconds") {
		t.Fatalf("error missing a field: %v", err)
	}
}

func TestLoadFileMissingFileIsAnError(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestQueueDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/pea"
	if got := cfg.QueueDir(); got != filepath.Join("/var/lib/pea", "queue") {
		t.Fatalf("QueueDir = %q", got)
	}
}
