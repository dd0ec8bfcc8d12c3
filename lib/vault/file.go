// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/27inator/KPM-cursor/lib/blob"
)

// fileStore holds secrets as encrypted {account}.bin files in the
// agent data directory. The encryption key is derived from the host
// identity (hostid.FileKey), so the files are unreadable when copied
// to another machine but offer no secrecy against an attacker who
// knows the hostname and username.
type fileStore struct {
	config Config
}

func (s *fileStore) path() string {
	return filepath.Join(s.config.DataDir, s.config.Account+".bin")
}

func (s *fileStore) Store(data []byte) error {
	if err := os.MkdirAll(s.config.DataDir, 0o700); err != nil {
		return fmt.Errorf("vault: creating data directory: %w", err)
	}

	sealed, err := blob.Seal(s.config.Identity.FileKey(), data)
	if err != nil {
		return fmt.Errorf("vault: sealing %q: %w", s.config.Account, err)
	}

	// Write through a temp file and rename so a crash mid-write never
	// leaves a truncated secret in place of a good one.
	tmp, err := os.CreateTemp(s.config.DataDir, "."+s.config.Account+".*")
	if err != nil {
		return fmt.Errorf("vault: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("vault: writing %q: %w", s.config.Account, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("vault: closing %q: %w", s.config.Account, err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("vault: renaming %q into place: %w", s.config.Account, err)
	}
	return nil
}

func (s *fileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %q", ErrNotFound, s.config.Account)
		}
		return nil, fmt.Errorf("vault: reading %q: %w", s.config.Account, err)
	}

	plaintext, err := blob.Open(s.config.Identity.FileKey(), data)
	if err != nil {
		return nil, fmt.Errorf("vault: opening %q: %w", s.config.Account, err)
	}
	return plaintext, nil
}

func (s *fileStore) Delete() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: deleting %q: %w", s.config.Account, err)
	}
	return nil
}
