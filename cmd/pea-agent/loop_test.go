// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/config"
	"github.com/27inator/KPM-cursor/lib/submit"
	"github.com/27inator/KPM-cursor/lib/testutil"
)

const receiveTimeout = 10 * time.Second

// TestRunLoopDrivesHeartbeatAndDrain runs the full loop against a bus
// that starts down: an event queued during the outage is redelivered
// by the first drain tick, and heartbeats fire on their own schedule.
func TestRunLoopDrivesHeartbeatAndDrain(t *testing.T) {
	keyring.MockInit()
	clk := clock.Fake(time.Unix(1700000000, 0))

	var busDown atomic.Bool
	delivered := make(chan string, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if busDown.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		delivered <- r.URL.Path
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.BusURL = server.URL
	cfg.DataDir = t.TempDir()
	cfg.Hostname = "loop-host"
	cfg.Username = "loop-user"

	agent, err := newAgentFromConfig(cfg, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newAgentFromConfig: %v", err)
	}

	// Bus down: the submission must fall back to the queue.
	busDown.Store(true)
	queued, err := agent.submitter.Submit(context.Background(),
		submit.NewQualityCheck("SKU-LOOP", agent.device.DeviceID(), clk.Now()))
	if err != nil || !queued {
		t.Fatalf("Submit = (%v, %v), want queued", queued, err)
	}
	busDown.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runLoop(ctx, loopConfig{
			agent:             agent,
			heartbeatInterval: time.Hour,
			drainInterval:     30 * time.Second,
			retentionDays:     30,
		})
	}()

	// The loop sends one heartbeat immediately on startup.
	if path := testutil.RequireReceive(t, delivered, receiveTimeout, "startup heartbeat"); path != "/api/monitoring/heartbeat" {
		t.Fatalf("first request = %q, want startup heartbeat", path)
	}

	// First drain tick redelivers the queued event.
	clk.BlockUntil(2)
	clk.Advance(30 * time.Second)
	if path := testutil.RequireReceive(t, delivered, receiveTimeout, "queued event redelivery"); path != "/api/supply-chain/event" {
		t.Fatalf("request after drain tick = %q, want event redelivery", path)
	}

	// The queue is now empty, so advancing a full hour produces only
	// the scheduled heartbeat; the intervening drain ticks are no-ops.
	clk.Advance(time.Hour)
	if path := testutil.RequireReceive(t, delivered, receiveTimeout, "scheduled heartbeat"); path != "/api/monitoring/heartbeat" {
		t.Fatalf("request after heartbeat tick = %q, want heartbeat", path)
	}

	count, _, err := agent.queue.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 0 {
		t.Fatalf("queue count = %d, want 0 after redelivery", count)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, receiveTimeout, "loop shutdown"); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
}

// TestRunLoopSurvivesBusOutage checks that failing heartbeats and
// drains never stop the loop.
func TestRunLoopSurvivesBusOutage(t *testing.T) {
	keyring.MockInit()
	clk := clock.Fake(time.Unix(1700000000, 0))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.BusURL = server.URL
	cfg.DataDir = t.TempDir()
	cfg.Hostname = "outage-host"
	cfg.Username = "outage-user"

	agent, err := newAgentFromConfig(cfg, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newAgentFromConfig: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runLoop(ctx, loopConfig{
			agent:             agent,
			heartbeatInterval: time.Minute,
			drainInterval:     30 * time.Second,
		})
	}()

	clk.BlockUntil(2)
	clk.Advance(5 * time.Minute)

	cancel()
	if err := testutil.RequireReceive(t, done, receiveTimeout, "loop shutdown during outage"); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
}
