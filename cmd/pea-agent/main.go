// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// pea-agent is the KMP edge agent: it holds the device identity,
// submits signed supply-chain events to the message bus, and queues
// them durably when the bus is unreachable.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/27inator/KPM-cursor/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	logger := newLogger()

	subcommand := os.Args[1]
	args := os.Args[2:]
	switch subcommand {
	case "status":
		return runStatus(args, logger)
	case "provision":
		return runProvision(args, logger)
	case "submit":
		return runSubmit(args, logger)
	case "scan":
		return runScan(args, logger)
	case "queue-drain":
		return runQueueDrain(args, logger)
	case "heartbeat":
		return runHeartbeat(args, logger)
	case "run":
		return runAgent(args, logger)
	case "reset":
		return runReset(args, logger)
	case "uninstall":
		return runUninstall(args, logger)
	case "update-check":
		return runUpdateCheck(args, logger)
	case "export-identity":
		return runExportIdentity(args, logger)
	case "import-identity":
		return runImportIdentity(args, logger)
	case "keygen":
		return runKeygen()
	case "version":
		fmt.Println(version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: pea-agent <subcommand> [flags]

Subcommands:
  status           Print device identity, trust state, and queue figures
  provision        Register this device with the bus (one-time handshake)
  submit           Sign and submit one supply-chain event
  scan             Submit events for scanned product codes (args or stdin)
  queue-drain      Redeliver queued events once
  heartbeat        Send one monitoring heartbeat
  run              Run the agent loop (periodic heartbeat and drain)
  reset            Delete the device identity and trust token
  uninstall        Reset and remove all local agent data
  update-check     Print the latest agent update manifest
  export-identity  Seal the device identity to an age recipient
  import-identity  Restore a sealed device identity
  keygen           Generate an age keypair for identity escrow
  version          Print version information

Run 'pea-agent <subcommand> --help' for subcommand flags.
`)
}

// newLogger builds the process logger. PEA_DEBUG=1 enables debug
// records; output is text on stderr, leaving stdout for command
// results.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("PEA_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
