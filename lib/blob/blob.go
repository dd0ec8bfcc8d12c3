// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob implements the encrypted-at-rest wire format shared by
// the file vault backend and the offline queue: a 12-byte random nonce
// followed by the ChaCha20-Poly1305 ciphertext of the payload.
//
// Decryption fails closed: a truncated, corrupted, or wrong-key blob
// yields ErrDecrypt, never wrong plaintext.
package blob

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt reports that a blob could not be authenticated and
// decrypted. It is distinct from "not found" conditions, which are the
// caller's concern — a blob that exists but fails to open is corrupt
// or encrypted under a different key.
var ErrDecrypt = errors.New("blob: decrypt failed")

// NonceSize is the length of the random nonce prepended to every blob.
const NonceSize = chacha20poly1305.NonceSize

// Seal encrypts payload under key with a fresh random nonce and
// returns nonce ∥ ciphertext.
func Seal(key [32]byte, payload []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("blob: creating cipher: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("blob: generating nonce: %w", err)
	}

	// Seal appends to the nonce slice, producing nonce ∥ ciphertext in
	// one allocation.
	return aead.Seal(nonce, nonce, payload, nil), nil
}

// Open splits data into nonce and ciphertext and decrypts. Returns
// ErrDecrypt for anything that does not authenticate, including blobs
// too short to contain a nonce and tag.
func Open(key [32]byte, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("blob: creating cipher: %w", err)
	}

	if len(data) < NonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrDecrypt, len(data))
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
