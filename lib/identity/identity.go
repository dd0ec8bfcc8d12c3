// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity owns the device's persistent Ed25519 signing
// keypair and its deterministic device identifier.
//
// The private key seed is persisted through the vault (keyring
// preferred, encrypted file fallback) and generated on first use. In
// memory the seed travels through a secret.Buffer; the expanded
// private key is held by the Device for the process lifetime and is
// never exposed outside Sign and PublicKey.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/27inator/KPM-cursor/lib/hostid"
	"github.com/27inator/KPM-cursor/lib/secret"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// SeedAccount is the vault account holding the Ed25519 seed.
const SeedAccount = "device-ed25519-sk"

// Device is the signing identity of this agent installation.
type Device struct {
	host    hostid.Identity
	private ed25519.PrivateKey
}

// Load retrieves the device keypair through the vault, generating and
// persisting a fresh one on first run. The vault config's Account is
// overridden with SeedAccount.
func Load(preferred vault.Backend, config vault.Config) (*Device, error) {
	config.Account = SeedAccount

	seed, err := vault.LoadOrGenerate(preferred, config, func() ([]byte, error) {
		_, private, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("identity: generating keypair: %w", err)
		}
		return private.Seed(), nil
	})
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: persisted seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}

	// Move the seed into protected memory, expand the key, release.
	// The expanded private key stays on the heap for the process
	// lifetime — the seed copies are what we can and do scrub.
	buffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("identity: protecting seed: %w", err)
	}
	private := ed25519.NewKeyFromSeed(buffer.Bytes())
	if err := buffer.Close(); err != nil {
		return nil, err
	}

	return &Device{host: config.Identity, private: private}, nil
}

// DeviceID returns the lowercase "{hostname}-{username}" identifier.
// Deterministic across restarts; not globally unique — see
// hostid.Identity.DeviceID.
func (d *Device) DeviceID() string {
	return d.host.DeviceID()
}

// Sign returns the Ed25519 signature of payload.
func (d *Device) Sign(payload []byte) []byte {
	return ed25519.Sign(d.private, payload)
}

// PublicKey returns the public half of the keypair.
func (d *Device) PublicKey() ed25519.PublicKey {
	return d.private.Public().(ed25519.PublicKey)
}

// PublicKeyBase64 returns the standard-base64 public key, the encoding
// used in provisioning bodies and X-PEA-Public-Key headers.
func (d *Device) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(d.PublicKey())
}

// Seed returns the private key seed in a protected buffer, for sealed
// export. The caller must close the buffer.
func (d *Device) Seed() (*secret.Buffer, error) {
	seed := d.private.Seed()
	buffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("identity: protecting seed: %w", err)
	}
	return buffer, nil
}

// Reset deletes the persisted seed from both vault backends. The next
// Load generates a fresh keypair, after which the device must be
// re-provisioned.
func Reset(config vault.Config) error {
	config.Account = SeedAccount

	var firstError error
	for _, backend := range []vault.Backend{vault.Keyring, vault.File} {
		if err := vault.New(backend, config).Delete(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

// Restore writes a previously exported seed into the preferred vault
// backend, overwriting any existing keypair. Used by identity import.
func Restore(preferred vault.Backend, config vault.Config, seed []byte) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("identity: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	config.Account = SeedAccount
	return vault.New(preferred, config).Store(seed)
}
