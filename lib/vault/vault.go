// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"fmt"

	"github.com/27inator/KPM-cursor/lib/blob"
	"github.com/27inator/KPM-cursor/lib/hostid"
)

// Errors returned by Store implementations.
var (
	// ErrNotFound reports that no secret exists under the key.
	ErrNotFound = errors.New("vault: secret not found")

	// ErrDecrypt reports that a stored secret exists but could not be
	// decrypted or parsed. Aliased to blob.ErrDecrypt so either
	// sentinel matches with errors.Is.
	ErrDecrypt = blob.ErrDecrypt
)

// Backend selects which credential facility a Store uses.
type Backend int

const (
	// Keyring is the OS-native credential store. The default.
	Keyring Backend = iota
	// File is the encrypted-file fallback in the agent data directory.
	File
)

// String returns the config-file spelling of the backend.
func (b Backend) String() string {
	switch b {
	case Keyring:
		return "keyring"
	case File:
		return "file"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend converts a config-file spelling into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "keyring", "":
		return Keyring, nil
	case "file":
		return File, nil
	default:
		return 0, fmt.Errorf("vault: unknown backend %q (want \"keyring\" or \"file\")", s)
	}
}

// Alternate returns the other backend, for failover.
func (b Backend) Alternate() Backend {
	if b == Keyring {
		return File
	}
	return Keyring
}

// Store persists and retrieves one secret. Implementations are cheap
// value-like objects; construct one per operation if convenient.
type Store interface {
	// Store persists the secret, replacing any previous value.
	Store(data []byte) error

	// Load retrieves the secret. Returns ErrNotFound if no secret was
	// ever stored, ErrDecrypt if a stored secret cannot be opened.
	Load() ([]byte, error)

	// Delete removes the secret. Deleting an absent secret is not an
	// error.
	Delete() error
}

// Config identifies a secret and carries the state both backends need.
type Config struct {
	// Service is the credential namespace (e.g. "kmp-pea").
	Service string

	// Account names the individual secret within the service.
	Account string

	// DataDir is the agent data directory holding {Account}.bin files
	// for the File backend.
	DataDir string

	// Identity supplies the file-encryption key derivation.
	Identity hostid.Identity
}

// New returns a Store for the given backend.
func New(backend Backend, config Config) Store {
	if backend == File {
		return &fileStore{config: config}
	}
	return &keyringStore{config: config}
}

// LoadOrGenerate retrieves the secret, generating and persisting it on
// first use. The failover ladder:
//
//  1. Load from the preferred backend; return on success.
//  2. Generate fresh bytes and store them on the preferred backend;
//     return the bytes on success.
//  3. The preferred backend is unusable. Load from the alternate
//     backend; return on success.
//  4. Generate fresh bytes and store them on the alternate backend.
//     This final store's failure is the only fatal outcome.
//
// The generator must return cryptographically fresh secret material on
// every call; it may be invoked twice when the preferred backend
// accepts neither reads nor writes.
func LoadOrGenerate(preferred Backend, config Config, generate func() ([]byte, error)) ([]byte, error) {
	primary := New(preferred, config)
	if data, err := primary.Load(); err == nil {
		return data, nil
	}

	data, err := generate()
	if err != nil {
		return nil, fmt.Errorf("vault: generating secret %q: %w", config.Account, err)
	}
	if err := primary.Store(data); err == nil {
		return data, nil
	}

	fallback := New(preferred.Alternate(), config)
	if data, err := fallback.Load(); err == nil {
		return data, nil
	}

	data, err = generate()
	if err != nil {
		return nil, fmt.Errorf("vault: generating secret %q: %w", config.Account, err)
	}
	if err := fallback.Store(data); err != nil {
		return nil, fmt.Errorf("vault: both backends unusable for %q: %w", config.Account, err)
	}
	return data, nil
}
