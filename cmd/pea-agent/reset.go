// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/27inator/KPM-cursor/lib/config"
	"github.com/27inator/KPM-cursor/lib/hostid"
	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/queue"
	"github.com/27inator/KPM-cursor/lib/trust"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// loadVaultConfig builds the vault configuration without loading (and
// possibly generating) a device identity. Reset and uninstall must
// never create the keypair they are about to delete.
func loadVaultConfig(configPath string) (*config.Config, vault.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, vault.Config{}, err
	}

	host := hostid.Resolve()
	if cfg.Hostname != "" {
		host.Hostname = cfg.Hostname
	}
	if cfg.Username != "" {
		host.Username = cfg.Username
	}
	return cfg, vault.Config{
		Service:  config.Service,
		DataDir:  cfg.DataDir,
		Identity: host,
	}, nil
}

// deleteTrustToken removes the stored trust token from both backends.
func deleteTrustToken(vaultConfig vault.Config) error {
	tokenConfig := vaultConfig
	tokenConfig.Account = trust.TokenAccount

	var failure error
	for _, backend := range []vault.Backend{vault.Keyring, vault.File} {
		if err := vault.New(backend, tokenConfig).Delete(); err != nil {
			failure = err
		}
	}
	return failure
}

func runReset(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("reset", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	yes := flags.Bool("yes", false, "skip the confirmation prompt")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if !*yes {
		return fmt.Errorf("reset deletes the device identity and trust token; re-run with --yes to confirm")
	}

	_, vaultConfig, err := loadVaultConfig(*configPath)
	if err != nil {
		return err
	}

	if err := identity.Reset(vaultConfig); err != nil {
		return err
	}
	if err := deleteTrustToken(vaultConfig); err != nil {
		return fmt.Errorf("deleting trust token: %w", err)
	}
	logger.Info("device identity and trust token deleted")
	fmt.Println("reset: done")
	return nil
}

func runUninstall(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("uninstall", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	yes := flags.Bool("yes", false, "skip the confirmation prompt")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if !*yes {
		return fmt.Errorf("uninstall deletes the identity, trust token, and all queued events; re-run with --yes to confirm")
	}

	cfg, vaultConfig, err := loadVaultConfig(*configPath)
	if err != nil {
		return err
	}

	if err := identity.Reset(vaultConfig); err != nil {
		return err
	}
	if err := deleteTrustToken(vaultConfig); err != nil {
		return fmt.Errorf("deleting trust token: %w", err)
	}

	offlineQueue, err := queue.New(queue.Config{
		Dir:      cfg.QueueDir(),
		Identity: vaultConfig.Identity,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := offlineQueue.Wipe(); err != nil {
		return err
	}
	if err := os.RemoveAll(cfg.DataDir); err != nil {
		return fmt.Errorf("removing data directory: %w", err)
	}
	logger.Info("agent data removed", "data_dir", cfg.DataDir)
	fmt.Println("uninstall: done")
	return nil
}
