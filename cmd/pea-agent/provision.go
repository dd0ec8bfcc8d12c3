// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/27inator/KPM-cursor/lib/secret"
)

func runProvision(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	secretPath := flags.String("secret-file", "", "read the provisioning secret from this file (\"-\" for stdin)")
	company := flags.String("company", "", "company ID override (default from config)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	agent, err := newAgent(*configPath, logger)
	if err != nil {
		return err
	}

	// The secret never appears in argv: file, stdin, or an interactive
	// no-echo prompt only.
	var provisioningSecret *secret.Buffer
	if *secretPath != "" {
		provisioningSecret, err = secret.ReadFromPath(*secretPath)
	} else {
		provisioningSecret, err = secret.ReadFromTerminal("Provisioning secret: ")
	}
	if err != nil {
		return fmt.Errorf("reading provisioning secret: %w", err)
	}
	defer provisioningSecret.Close()

	companyID := agent.cfg.CompanyID
	if *company != "" {
		companyID = *company
	}

	if err := agent.trust.Provision(context.Background(), agent.device, provisioningSecret, companyID); err != nil {
		return err
	}
	fmt.Printf("provisioned: %s\n", agent.device.DeviceID())
	return nil
}
