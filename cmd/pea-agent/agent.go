// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/27inator/KPM-cursor/lib/bus"
	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/config"
	"github.com/27inator/KPM-cursor/lib/hostid"
	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/queue"
	"github.com/27inator/KPM-cursor/lib/submit"
	"github.com/27inator/KPM-cursor/lib/trust"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// agent bundles the wired-up components every subcommand works with.
type agent struct {
	cfg       *config.Config
	host      hostid.Identity
	vault     vault.Config
	device    *identity.Device
	bus       *bus.Client
	trust     *trust.Manager
	queue     *queue.Queue
	submitter *submit.Submitter
	clock     clock.Clock
	logger    *slog.Logger
}

// newAgent loads configuration and wires the component graph. Loading
// the device identity may generate and persist a fresh keypair on
// first run.
func newAgent(configPath string, logger *slog.Logger) (*agent, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return newAgentFromConfig(cfg, clock.Real(), logger)
}

// newAgentFromConfig wires components from an already-validated
// config. Tests inject a fake clock here.
func newAgentFromConfig(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*agent, error) {
	host := hostid.Resolve()
	if cfg.Hostname != "" {
		host.Hostname = cfg.Hostname
	}
	if cfg.Username != "" {
		host.Username = cfg.Username
	}

	vaultConfig := vault.Config{
		Service:  config.Service,
		DataDir:  cfg.DataDir,
		Identity: host,
	}

	device, err := identity.Load(cfg.Backend(), vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("loading device identity: %w", err)
	}

	busClient, err := bus.New(bus.Config{BaseURL: cfg.BusURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	trustManager, err := trust.NewManager(trust.Config{
		Bus:            busClient,
		Vault:          vaultConfig,
		Backend:        cfg.Backend(),
		RenewThreshold: time.Duration(cfg.RenewThresholdHours) * time.Hour,
		Clock:          clk,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	offlineQueue, err := queue.New(queue.Config{
		Dir:      cfg.QueueDir(),
		Identity: host,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	submitter, err := submit.New(submit.Config{
		Device: device,
		Trust:  trustManager,
		Queue:  offlineQueue,
		Bus:    busClient,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &agent{
		cfg:       cfg,
		host:      host,
		vault:     vaultConfig,
		device:    device,
		bus:       busClient,
		trust:     trustManager,
		queue:     offlineQueue,
		submitter: submitter,
		clock:     clk,
		logger:    logger,
	}, nil
}
