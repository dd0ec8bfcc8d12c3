// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

// loopConfig parameterizes the agent loop so tests can drive it with
// short intervals and a fake clock.
type loopConfig struct {
	agent             *agent
	heartbeatInterval time.Duration
	drainInterval     time.Duration
	retentionDays     int
}

func runAgent(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runLoop(ctx, loopConfig{
		agent:             agent,
		heartbeatInterval: time.Duration(agent.cfg.HeartbeatSeconds) * time.Second,
		drainInterval:     time.Duration(agent.cfg.DrainSeconds) * time.Second,
		retentionDays:     agent.cfg.RetentionDays,
	})
}

// runLoop drives the agent's two periodic duties: heartbeats and
// queue drains. Token renewal has no ticker of its own; it piggybacks
// on whichever duty fires. Every failure is logged and absorbed — the
// loop only exits when the context is cancelled.
func runLoop(ctx context.Context, cfg loopConfig) error {
	agent := cfg.agent
	agent.logger.Info("agent loop started",
		"device_id", agent.device.DeviceID(),
		"bus", agent.cfg.BusURL,
		"heartbeat_interval", cfg.heartbeatInterval,
		"drain_interval", cfg.drainInterval)

	heartbeat := agent.clock.NewTicker(cfg.heartbeatInterval)
	defer heartbeat.Stop()
	drain := agent.clock.NewTicker(cfg.drainInterval)
	defer drain.Stop()

	// One immediate heartbeat so the fleet dashboard sees the device as
	// soon as it boots, not an interval later.
	if err := agent.submitter.SendHeartbeat(ctx); err != nil {
		agent.logger.Warn("heartbeat failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			agent.logger.Info("agent loop stopping")
			return nil

		case <-heartbeat.C:
			if err := agent.submitter.SendHeartbeat(ctx); err != nil {
				agent.logger.Warn("heartbeat failed", "error", err)
			}

		case <-drain.C:
			if cfg.retentionDays > 0 {
				if removed, err := agent.queue.PruneByAge(cfg.retentionDays); err != nil {
					agent.logger.Warn("queue prune failed", "error", err)
				} else if removed > 0 {
					agent.logger.Info("pruned expired queue entries", "removed", removed)
				}
			}
			if err := agent.submitter.DrainQueue(ctx); err != nil {
				agent.logger.Warn("queue drain failed", "error", err)
			}
		}
	}
}
