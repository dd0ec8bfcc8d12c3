// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package submit

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/27inator/KPM-cursor/lib/bus"
	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/codec"
	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/queue"
	"github.com/27inator/KPM-cursor/lib/trust"
	"github.com/27inator/KPM-cursor/lib/version"
)

// Config configures a Submitter.
type Config struct {
	// Device signs every payload.
	Device *identity.Device

	// Trust supplies and renews the bearer token.
	Trust *trust.Manager

	// Queue receives events the bus did not accept.
	Queue *queue.Queue

	// Bus is the delivery transport.
	Bus *bus.Client

	// Clock supplies timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger records fallbacks and renewal failures. Nil means
	// slog.Default.
	Logger *slog.Logger
}

// Submitter delivers events, heartbeats, and queued redeliveries.
type Submitter struct {
	device *identity.Device
	trust  *trust.Manager
	queue  *queue.Queue
	bus    *bus.Client
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Submitter.
func New(config Config) (*Submitter, error) {
	if config.Device == nil || config.Trust == nil || config.Queue == nil || config.Bus == nil {
		return nil, fmt.Errorf("submit: Device, Trust, Queue, and Bus are all required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Submitter{
		device: config.Device,
		trust:  config.Trust,
		queue:  config.Queue,
		bus:    config.Bus,
		clock:  clk,
		logger: logger,
	}, nil
}

// Submit signs and posts one event. When the bus is unreachable or
// refuses the request, the signed submission is enqueued for a later
// drain and Submit reports queued=true with a nil error: fallback is
// the designed path, not a failure. The returned error is non-nil only
// when the event could be neither delivered nor queued.
func (s *Submitter) Submit(ctx context.Context, event Event) (queued bool, err error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("submit: encoding event: %w", err)
	}

	if err := s.trust.RenewIfNeeded(ctx); err != nil {
		s.logger.Warn("submit: token renewal failed", "error", err)
	}

	nonce := uuid.NewString()
	timestampMS := s.clock.Now().UnixMilli()
	signature := s.device.Sign(payload)

	deliverErr := s.bus.SubmitEvent(ctx, payload, s.headers(payload, signature, nonce, timestampMS))
	if deliverErr == nil {
		return false, nil
	}

	envelope, err := codec.Marshal(Envelope{
		Payload:     payload,
		Signature:   signature,
		Nonce:       nonce,
		TimestampMS: timestampMS,
		PublicKey:   s.device.PublicKey(),
	})
	if err != nil {
		return false, fmt.Errorf("submit: encoding envelope: %w", err)
	}
	if err := s.queue.Enqueue(queue.ContentName(payload), envelope); err != nil {
		return false, fmt.Errorf("submit: delivery failed (%v) and enqueue failed: %w", deliverErr, err)
	}

	s.logger.Info("submit: event queued for redelivery",
		"product_id", event.ProductID, "error", deliverErr)
	return true, nil
}

// DrainQueue redelivers queued submissions. Envelopes replay their
// persisted signature, nonce, and timestamp; entries that are not
// valid envelopes are skipped without delaying the pass.
func (s *Submitter) DrainQueue(ctx context.Context) error {
	if err := s.trust.RenewIfNeeded(ctx); err != nil {
		s.logger.Warn("submit: token renewal failed", "error", err)
	}
	bearer, err := s.trust.Token()
	if err != nil {
		bearer = ""
	}

	return s.queue.Drain(ctx, func(ctx context.Context, name string, plaintext []byte) error {
		var envelope Envelope
		if err := codec.Unmarshal(plaintext, &envelope); err != nil {
			return fmt.Errorf("decoding envelope %q (%v): %w", name, err, queue.ErrSkipEntry)
		}

		digest := sha256.Sum256(envelope.Payload)
		return s.bus.SubmitEvent(ctx, envelope.Payload, bus.EventHeaders{
			DeviceID:    s.device.DeviceID(),
			PublicKey:   base64.StdEncoding.EncodeToString(envelope.PublicKey),
			Signature:   base64.StdEncoding.EncodeToString(envelope.Signature),
			PayloadHash: hex.EncodeToString(digest[:]),
			Nonce:       envelope.Nonce,
			TimestampMS: envelope.TimestampMS,
			Bearer:      bearer,
		})
	})
}

// heartbeatBody is the monitoring payload. Timestamp is RFC 3339;
// queue figures let the fleet dashboard spot devices going dark.
type heartbeatBody struct {
	DeviceID   string `json:"device_id"`
	Timestamp  string `json:"timestamp"`
	QueueSize  int    `json:"queue_size"`
	QueueBytes int64  `json:"queue_bytes"`
	Version    string `json:"version"`
}

// SendHeartbeat posts one signed monitoring heartbeat. Heartbeats are
// never queued; a missed beat is itself the signal.
func (s *Submitter) SendHeartbeat(ctx context.Context) error {
	if err := s.trust.RenewIfNeeded(ctx); err != nil {
		s.logger.Warn("submit: token renewal failed", "error", err)
	}

	count, totalBytes, err := s.queue.Stats()
	if err != nil {
		return fmt.Errorf("submit: reading queue stats: %w", err)
	}
	payload, err := json.Marshal(heartbeatBody{
		DeviceID:   s.device.DeviceID(),
		Timestamp:  s.clock.Now().UTC().Format(time.RFC3339),
		QueueSize:  count,
		QueueBytes: totalBytes,
		Version:    version.Version,
	})
	if err != nil {
		return fmt.Errorf("submit: encoding heartbeat: %w", err)
	}

	headers := s.headers(payload, s.device.Sign(payload), uuid.NewString(), s.clock.Now().UnixMilli())
	if err := s.bus.Heartbeat(ctx, payload, headers); err != nil {
		return fmt.Errorf("submit: heartbeat: %w", err)
	}
	return nil
}

// headers assembles the device authentication headers for a payload
// signed by this device, attaching the bearer token when one is held.
func (s *Submitter) headers(payload, signature []byte, nonce string, timestampMS int64) bus.EventHeaders {
	bearer, err := s.trust.Token()
	if err != nil {
		bearer = ""
	}
	digest := sha256.Sum256(payload)
	return bus.EventHeaders{
		DeviceID:    s.device.DeviceID(),
		PublicKey:   s.device.PublicKeyBase64(),
		Signature:   base64.StdEncoding.EncodeToString(signature),
		PayloadHash: hex.EncodeToString(digest[:]),
		Nonce:       nonce,
		TimestampMS: timestampMS,
		Bearer:      bearer,
	}
}
