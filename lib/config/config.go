// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the agent configuration.
//
// Configuration is one YAML file, located by the PEA_CONFIG environment
// variable or a --config flag. Every field has a working default, so
// running without a config file is supported: the agent then talks to
// the bus named by defaults and flags alone. Environment variables
// never override file values; the file is the single source of truth.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/27inator/KPM-cursor/lib/trust"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// EnvVar names the environment variable pointing at the config file.
const EnvVar = "PEA_CONFIG"

// Service is the credential namespace for vault secrets.
const Service = "kmp-pea"

// Config is the agent configuration.
type Config struct {
	// BusURL is the message bus root URL.
	BusURL string `yaml:"bus_url"`

	// CompanyID scopes provisioning to a tenant. Optional.
	CompanyID string `yaml:"company_id"`

	// DataDir holds the file vault secrets and the offline queue.
	DataDir string `yaml:"data_dir"`

	// VaultBackend is the preferred secret backend: "keyring" or
	// "file".
	VaultBackend string `yaml:"vault_backend"`

	// HeartbeatSeconds is the monitoring heartbeat interval.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`

	// DrainSeconds is the offline queue drain interval.
	DrainSeconds int `yaml:"drain_seconds"`

	// RenewThresholdHours is how close to expiry the trust token must
	// be before a renewal is attempted.
	RenewThresholdHours int `yaml:"renew_threshold_hours"`

	// RetentionDays bounds the age of queued events; older entries are
	// pruned on every drain. Zero disables pruning.
	RetentionDays int `yaml:"retention_days"`

	// Hostname and Username override the resolved host identity. For
	// fleet images where the OS hostname is not the device's name.
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BusURL:              "http://localhost:4000",
		DataDir:             defaultDataDir(),
		VaultBackend:        vault.Keyring.String(),
		HeartbeatSeconds:    3600,
		DrainSeconds:        30,
		RenewThresholdHours: int(trust.DefaultRenewThreshold.Hours()),
		RetentionDays:       30,
	}
}

// defaultDataDir follows XDG: $XDG_DATA_HOME/kmp-pea, falling back to
// ~/.local/share/kmp-pea.
func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "kmp-pea")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "kmp-pea")
	}
	return filepath.Join(homeDir, ".local", "share", "kmp-pea")
}

// Load reads the file named by PEA_CONFIG, or returns defaults when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads one YAML file over the defaults and validates the
// result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.BusURL == "" {
		errs = append(errs, fmt.Errorf("bus_url is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}
	if _, err := vault.ParseBackend(c.VaultBackend); err != nil {
		errs = append(errs, err)
	}
	if c.HeartbeatSeconds <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat_seconds must be positive"))
	}
	if c.DrainSeconds <= 0 {
		errs = append(errs, fmt.Errorf("drain_seconds must be positive"))
	}
	if c.RenewThresholdHours <= 0 {
		errs = append(errs, fmt.Errorf("renew_threshold_hours must be positive"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Backend returns the parsed preferred vault backend. Call after
// Validate.
func (c *Config) Backend() vault.Backend {
	backend, err := vault.ParseBackend(c.VaultBackend)
	if err != nil {
		return vault.Keyring
	}
	return backend
}

// QueueDir is the offline queue directory under DataDir.
func (c *Config) QueueDir() string {
	return filepath.Join(c.DataDir, "queue")
}
