// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package submit

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/27inator/KPM-cursor/lib/bus"
	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/hostid"
	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/queue"
	"github.com/27inator/KPM-cursor/lib/trust"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// testHarness wires a Submitter against an httptest bus whose handler
// the test can swap mid-flight, to flip the bus between down and up.
type testHarness struct {
	submitter *Submitter
	queue     *queue.Queue
	handler   http.Handler
}

func newHarness(t *testing.T, clk clock.Clock) *testHarness {
	t.Helper()
	keyring.MockInit()

	harness := &testHarness{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		harness.handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vaultConfig := vault.Config{
		Service:  "kmp-pea-test",
		DataDir:  t.TempDir(),
		Identity: hostid.Identity{Hostname: "test-host", Username: "test-user"},
	}

	device, err := identity.Load(vault.Keyring, vaultConfig)
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	busClient, err := bus.New(bus.Config{BaseURL: server.URL, HTTPClient: server.Client(), Logger: logger})
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	trustManager, err := trust.NewManager(trust.Config{Bus: busClient, Vault: vaultConfig, Clock: clk, Logger: logger})
	if err != nil {
		t.Fatalf("trust.NewManager: %v", err)
	}
	offlineQueue, err := queue.New(queue.Config{
		Dir:      t.TempDir() + "/queue",
		Identity: vaultConfig.Identity,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	submitter, err := New(Config{
		Device: device,
		Trust:  trustManager,
		Queue:  offlineQueue,
		Bus:    busClient,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	harness.submitter = submitter
	harness.queue = offlineQueue
	return harness
}

func (h *testHarness) queueCount(t *testing.T) int {
	t.Helper()
	count, _, err := h.queue.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return count
}

func TestSubmitDeliversSignedEvent(t *testing.T) {
	harness := newHarness(t, nil)

	var gotPayload []byte
	var gotHeader http.Header
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPayload, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	})

	event := NewQualityCheck("SKU-42", "test-host-test-user", time.Unix(1700000000, 0))
	queued, err := harness.submitter.Submit(context.Background(), event)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if queued {
		t.Fatal("accepted event reported as queued")
	}

	var decoded Event
	if err := json.Unmarshal(gotPayload, &decoded); err != nil {
		t.Fatalf("payload is not event JSON: %v", err)
	}
	if decoded.ProductID != "SKU-42" || decoded.EventType != EventTypeQualityCheck {
		t.Fatalf("decoded event = %+v", decoded)
	}

	publicKey, err := base64.StdEncoding.DecodeString(gotHeader.Get(bus.HeaderPublicKey))
	if err != nil {
		t.Fatalf("decoding public key header: %v", err)
	}
	signature, err := base64.StdEncoding.DecodeString(gotHeader.Get(bus.HeaderSignature))
	if err != nil {
		t.Fatalf("decoding signature header: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), gotPayload, signature) {
		t.Fatal("signature header does not verify over the payload bytes")
	}
	if gotHeader.Get(bus.HeaderDeviceID) != "test-host-test-user" {
		t.Fatalf("device id header = %q", gotHeader.Get(bus.HeaderDeviceID))
	}
}

func TestSubmitFallsBackToQueue(t *testing.T) {
	harness := newHarness(t, nil)
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	queued, err := harness.submitter.Submit(context.Background(),
		NewQualityCheck("SKU-1", "test-host-test-user", time.Now()))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !queued {
		t.Fatal("rejected event not reported as queued")
	}
	if got := harness.queueCount(t); got != 1 {
		t.Fatalf("queue count = %d, want 1", got)
	}
}

func TestFallbackThenRedeliver(t *testing.T) {
	harness := newHarness(t, nil)

	// Bus down: the submission lands in the queue.
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	event := NewQualityCheck("SKU-7", "test-host-test-user", time.Unix(1700000000, 0))
	queued, err := harness.submitter.Submit(context.Background(), event)
	if err != nil || !queued {
		t.Fatalf("Submit = (%v, %v), want queued", queued, err)
	}
	originalPayload, _ := json.Marshal(event)

	// Bus back up: drain replays the original payload and signature.
	var replayedPayload []byte
	var replayedHeader http.Header
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		replayedPayload, _ = io.ReadAll(r.Body)
		replayedHeader = r.Header.Clone()
	})
	if err := harness.submitter.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}

	if !bytes.Equal(replayedPayload, originalPayload) {
		t.Fatalf("replayed payload differs from original:\n%s\n%s", replayedPayload, originalPayload)
	}
	publicKey, _ := base64.StdEncoding.DecodeString(replayedHeader.Get(bus.HeaderPublicKey))
	signature, _ := base64.StdEncoding.DecodeString(replayedHeader.Get(bus.HeaderSignature))
	if !ed25519.Verify(ed25519.PublicKey(publicKey), replayedPayload, signature) {
		t.Fatal("replayed signature does not verify")
	}
	if got := harness.queueCount(t); got != 0 {
		t.Fatalf("queue count after redelivery = %d, want 0", got)
	}
}

func TestDrainQueueSkipsNonEnvelopeEntries(t *testing.T) {
	harness := newHarness(t, nil)
	if err := harness.queue.Enqueue("stray", []byte("not a CBOR envelope")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("bus called for a non-envelope entry")
	})
	if err := harness.submitter.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}
	if got := harness.queueCount(t); got != 1 {
		t.Fatalf("non-envelope entry was deleted, count = %d", got)
	}
}

func TestSendHeartbeatReportsQueueState(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	harness := newHarness(t, clk)

	// Park one undeliverable event in the queue first.
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	if _, err := harness.submitter.Submit(context.Background(),
		NewQualityCheck("SKU-9", "test-host-test-user", clk.Now())); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var gotPayload []byte
	harness.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/monitoring/heartbeat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotPayload, _ = io.ReadAll(r.Body)
	})
	if err := harness.submitter.SendHeartbeat(context.Background()); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}

	var beat struct {
		DeviceID   string `json:"device_id"`
		QueueSize  int    `json:"queue_size"`
		QueueBytes int64  `json:"queue_bytes"`
		Version    string `json:"version"`
	}
	if err := json.Unmarshal(gotPayload, &beat); err != nil {
		t.Fatalf("heartbeat is not JSON: %v", err)
	}
	if beat.DeviceID != "test-host-test-user" {
		t.Fatalf("device_id = %q", beat.DeviceID)
	}
	if beat.QueueSize != 1 || beat.QueueBytes == 0 {
		t.Fatalf("queue figures = (%d, %d), want (1, >0)", beat.QueueSize, beat.QueueBytes)
	}
	if beat.Version == "" {
		t.Fatal("heartbeat missing version")
	}
}
