// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package submit delivers signed supply-chain events to the bus,
// falling back to the offline queue when the bus is unreachable or
// refuses the request.
//
// Events are signed exactly once, when first submitted. The queued
// form is a CBOR envelope holding the original payload bytes together
// with the signature, nonce, and millisecond timestamp of that first
// attempt; a later drain replays them verbatim, so the bus's replay
// detection sees the original submission rather than a fresh one. Only
// the bearer token is taken fresh at drain time.
package submit
