// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package submit

import "time"

// EventTypeQualityCheck is the event type emitted by the scan and
// submit subcommands.
const EventTypeQualityCheck = "QUALITY_CHECK"

// Event is one supply-chain event. The JSON field names are the bus's
// wire contract.
type Event struct {
	ProductID string         `json:"productId"`
	EventType string         `json:"eventType"`
	Location  string         `json:"location"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewQualityCheck builds the standard quality-check event for a
// scanned product code. Location is the device ID: edge devices are
// stationary, so the device names the site.
func NewQualityCheck(productID, deviceID string, now time.Time) Event {
	return Event{
		ProductID: productID,
		EventType: EventTypeQualityCheck,
		Location:  deviceID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Metadata: map[string]any{
			"device_id": deviceID,
			"ts":        now.Unix(),
		},
	}
}

// Envelope is the durable form of a failed submission. Integer keys
// keep the CBOR encoding compact and deterministic.
type Envelope struct {
	Payload     []byte `cbor:"1,keyasint"`
	Signature   []byte `cbor:"2,keyasint"`
	Nonce       string `cbor:"3,keyasint"`
	TimestampMS int64  `cbor:"4,keyasint"`
	PublicKey   []byte `cbor:"5,keyasint"`
}
