// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/27inator/KPM-cursor/lib/trust"
)

func runStatus(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
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

	count, totalBytes, err := agent.queue.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("device_id: %s\n", agent.device.DeviceID())
	fmt.Printf("public_key_b64: %s\n", agent.device.PublicKeyBase64())
	fmt.Printf("bus: %s\n", agent.cfg.BusURL)
	fmt.Printf("company_id: %s\n", agent.cfg.CompanyID)
	fmt.Printf("vault_backend: %s\n", agent.cfg.Backend())
	fmt.Printf("data_dir: %s\n", agent.cfg.DataDir)
	fmt.Printf("trust: %s\n", agent.trust.State())
	if token, err := agent.trust.Token(); err == nil {
		if expiry, err := trust.ParseExpiry(token); err == nil {
			fmt.Printf("trust_expiry: %s\n", expiry.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}
	fmt.Printf("queue: %d entries, %d bytes\n", count, totalBytes)
	return nil
}
