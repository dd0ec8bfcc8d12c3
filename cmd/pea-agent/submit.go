// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/27inator/KPM-cursor/lib/submit"
)

func runSubmit(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("submit", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	location := flags.String("location", "", "event location override (default: device ID)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: pea-agent submit [flags] <product-code>")
	}

	agent, err := newAgent(*configPath, logger)
	if err != nil {
		return err
	}
	return submitOne(context.Background(), agent, flags.Arg(0), *location)
}

// runScan submits a quality-check event per product code, taken from
// the arguments or, with no arguments, line by line from stdin. The
// hardware scanner presents as a line-oriented stream, so piping its
// device node in is the deployment story.
func runScan(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	location := flags.String("location", "", "event location override (default: device ID)")
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
	ctx := context.Background()

	if flags.NArg() > 0 {
		for _, code := range flags.Args() {
			if err := submitOne(ctx, agent, code, *location); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		if err := submitOne(ctx, agent, code, *location); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func submitOne(ctx context.Context, agent *agent, productCode, location string) error {
	event := submit.NewQualityCheck(productCode, agent.device.DeviceID(), agent.clock.Now())
	if location != "" {
		event.Location = location
	}

	queued, err := agent.submitter.Submit(ctx, event)
	if err != nil {
		return err
	}
	if queued {
		fmt.Printf("queued: %s\n", productCode)
	} else {
		fmt.Printf("submitted: %s\n", productCode)
	}
	return nil
}
