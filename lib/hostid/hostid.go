// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostid resolves the host identity (hostname, username) that
// anchors a device's identity and its local encryption key.
//
// The identity is resolved once and passed explicitly to every
// component that needs it. Nothing in this repository reads the
// hostname or username ambiently — tests construct an Identity with
// fixed values and get fully deterministic behavior.
package hostid

import (
	"crypto/sha256"
	"os"
	"os/user"
	"strings"
)

// Identity is the host identity pair used to derive the device ID and
// the local file-encryption key.
type Identity struct {
	Hostname string
	Username string
}

// Resolve reads the host identity from the operating system. Failures
// fall back to fixed placeholder values rather than erroring: a device
// that cannot determine its hostname must still be able to enqueue
// events and provision itself.
func Resolve() Identity {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}

	username := ""
	if current, err := user.Current(); err == nil {
		username = current.Username
	}
	if username == "" {
		username = os.Getenv("USER")
	}
	if username == "" {
		username = "unknown-user"
	}

	return Identity{Hostname: hostname, Username: username}
}

// DeviceID returns the deterministic device identifier: lowercase
// "{hostname}-{username}". Stable across restarts on the same host and
// user. It is NOT globally unique — two machines sharing hostname and
// username produce the same ID — and must never be treated as a
// cryptographic identifier. Authenticity comes from the Ed25519
// signature, not from this string.
func (id Identity) DeviceID() string {
	return strings.ToLower(id.Hostname + "-" + id.Username)
}

// FileKey derives the 32-byte symmetric key for the encrypted-file
// vault backend and the offline queue: SHA-256(hostname ∥ username).
//
// This is a weak, non-salted derivation, not a KDF. Anyone who knows
// the hostname and username can reconstruct the key. The file backend
// is a fallback for hosts without a usable OS keyring, and this
// derivation is the documented trade-off of that fallback. It is kept
// as specified rather than silently strengthened.
func (id Identity) FileKey() [32]byte {
	h := sha256.New()
	h.Write([]byte(id.Hostname))
	h.Write([]byte(id.Username))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
