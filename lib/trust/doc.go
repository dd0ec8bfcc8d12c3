// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust manages the device's trust token: the bearer
// credential the bus issues at provisioning and the agent renews
// before expiry.
//
// Provisioning is a one-time HMAC handshake under an operator-issued
// secret; the issued token is persisted through the vault with the
// same keyring-then-file failover as the device key. Renewal is
// self-scheduled from the token's own exp claim — the claim is read
// without verifying the signature, because the agent only uses it to
// decide when to ask the bus for a fresh token; the bus verifies for
// real on every request.
//
// There is no renewal poller. RenewIfNeeded runs as a side effect of
// submissions and heartbeats, and its failures are never fatal: the
// agent keeps using the old token until the bus stops accepting it.
package trust
