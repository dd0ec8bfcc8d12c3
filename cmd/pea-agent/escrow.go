// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/sealed"
	"github.com/27inator/KPM-cursor/lib/secret"
)

// runKeygen prints a fresh age keypair for identity escrow. The public
// key goes to stdout for distribution; the private key to stderr so a
// shell redirect of stdout cannot capture it by accident.
func runKeygen() error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	fmt.Fprintf(os.Stderr, "# Private key (store securely, needed for import-identity):\n")
	fmt.Fprintf(os.Stderr, "%s\n", keypair.PrivateKey.String())
	fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
	return nil
}

func runExportIdentity(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("export-identity", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	recipients := flags.StringSlice("recipient", nil, "age public key to seal to (repeatable)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if len(*recipients) == 0 {
		return fmt.Errorf("at least one --recipient is required")
	}
	for _, key := range *recipients {
		if err := sealed.ParsePublicKey(key); err != nil {
			return err
		}
	}

	agent, err := newAgent(*configPath, logger)
	if err != nil {
		return err
	}

	seed, err := agent.device.Seed()
	if err != nil {
		return err
	}
	defer seed.Close()

	ciphertext, err := sealed.ExportIdentity(agent.device.DeviceID(), seed, *recipients)
	if err != nil {
		return err
	}
	fmt.Println(ciphertext)
	return nil
}

func runImportIdentity(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("import-identity", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	bundlePath := flags.String("bundle", "-", "file holding the sealed bundle (\"-\" for stdin)")
	keyPath := flags.String("key-file", "", "file holding the age private key (\"-\" for stdin)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *keyPath == "" {
		return fmt.Errorf("--key-file is required")
	}
	if *bundlePath == "-" && *keyPath == "-" {
		return fmt.Errorf("only one of --bundle and --key-file can read stdin")
	}

	privateKey, err := secret.ReadFromPath(*keyPath)
	if err != nil {
		return err
	}
	defer privateKey.Close()

	var ciphertext string
	if *bundlePath == "-" {
		bundle, err := secret.ReadFromPath("-")
		if err != nil {
			return err
		}
		ciphertext = bundle.String()
		bundle.Close()
	} else {
		data, err := os.ReadFile(*bundlePath)
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}
		ciphertext = strings.TrimSpace(string(data))
	}

	deviceID, seed, err := sealed.ImportIdentity(ciphertext, privateKey)
	if err != nil {
		return err
	}
	defer seed.Close()

	cfg, vaultConfig, err := loadVaultConfig(*configPath)
	if err != nil {
		return err
	}
	if err := identity.Restore(cfg.Backend(), vaultConfig, seed.Bytes()); err != nil {
		return err
	}
	logger.Info("device identity restored", "device_id", deviceID)
	fmt.Printf("imported: %s\n", deviceID)
	return nil
}
