// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringStore holds secrets in the OS-native credential facility.
// The facility's storage granularity is string-typed, so the secret
// bytes are base64-encoded on the way in and decoded on the way out.
type keyringStore struct {
	config Config
}

func (s *keyringStore) Store(data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	if err := keyring.Set(s.config.Service, s.config.Account, encoded); err != nil {
		return fmt.Errorf("vault: keyring store %q: %w", s.config.Account, err)
	}
	return nil
}

func (s *keyringStore) Load() ([]byte, error) {
	encoded, err := keyring.Get(s.config.Service, s.config.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: keyring %q", ErrNotFound, s.config.Account)
		}
		return nil, fmt.Errorf("vault: keyring load %q: %w", s.config.Account, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// A credential exists but is not valid base64 — corrupt, not
		// absent.
		return nil, fmt.Errorf("%w: keyring %q holds malformed data", ErrDecrypt, s.config.Account)
	}
	return data, nil
}

func (s *keyringStore) Delete() error {
	err := keyring.Delete(s.config.Service, s.config.Account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("vault: keyring delete %q: %w", s.config.Account, err)
	}
	return nil
}
