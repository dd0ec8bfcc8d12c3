// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"
)

func runQueueDrain(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("queue-drain", pflag.ContinueOnError)
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

	before, _, err := agent.queue.Stats()
	if err != nil {
		return err
	}
	if err := agent.submitter.DrainQueue(context.Background()); err != nil {
		return err
	}
	after, _, err := agent.queue.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("drained: %d delivered, %d remaining\n", before-after, after)
	return nil
}

func runHeartbeat(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("heartbeat", pflag.ContinueOnError)
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
	if err := agent.submitter.SendHeartbeat(context.Background()); err != nil {
		return err
	}
	fmt.Println("heartbeat: sent")
	return nil
}

func runUpdateCheck(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("update-check", pflag.ContinueOnError)
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
	manifest, err := agent.bus.LatestManifest(context.Background())
	if err != nil {
		return err
	}
	// The agent never self-updates; the manifest is printed for the
	// operator or a supervising updater to act on.
	fmt.Printf("update_manifest: %s\n", manifest)
	return nil
}
