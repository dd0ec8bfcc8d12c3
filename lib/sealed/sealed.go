// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed exports and imports the device identity as an age
// encrypted bundle, for migration to replacement hardware and for
// operator escrow.
//
// The bundle is the device's ed25519 seed plus enough context to
// verify it landed on the right device. Ciphertext is base64 so it can
// travel through tickets, chat, or a clipboard. Private keys and
// decrypted seeds live in secret.Buffer memory (mlocked, excluded from
// core dumps, zeroed on close).
package sealed

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/27inator/KPM-cursor/lib/secret"
)

// Keypair is an age x25519 keypair for receiving identity bundles.
// The private key never touches the Go heap for longer than the age
// API forces it to. Call Close when done.
type Keypair struct {
	// PrivateKey holds the AGE-SECRET-KEY-1... string.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string, safe to publish.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a recipient keypair for identity escrow.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating keypair: %w", err)
	}

	// The age API only exposes the key as a string; move it into
	// protected memory and let the heap copy go.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// bundle is the escrowed identity document.
type bundle struct {
	DeviceID string `json:"device_id"`
	Seed     []byte `json:"seed_b64"`
}

// ExportIdentity seals the device seed to one or more age recipients
// and returns base64 ciphertext. The seed buffer is borrowed, not
// closed.
func ExportIdentity(deviceID string, seed *secret.Buffer, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("sealed: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	plaintext, err := json.Marshal(bundle{DeviceID: deviceID, Seed: seed.Bytes()})
	if err != nil {
		return "", fmt.Errorf("sealed: encoding bundle: %w", err)
	}
	defer secret.Zero(plaintext)

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("sealed: encrypting bundle: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("sealed: finalizing encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// ImportIdentity opens a base64 identity bundle with the recipient's
// private key. The returned seed is in protected memory; the caller
// owns it and must Close it. The private key buffer is borrowed.
func ImportIdentity(ciphertext string, privateKey *secret.Buffer) (deviceID string, seed *secret.Buffer, err error) {
	recipientIdentity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", nil, fmt.Errorf("sealed: decoding ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), recipientIdentity)
	if err != nil {
		return "", nil, fmt.Errorf("sealed: decrypting bundle: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, fmt.Errorf("sealed: reading bundle: %w", err)
	}
	defer secret.Zero(plaintext)

	var decoded bundle
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return "", nil, fmt.Errorf("sealed: parsing bundle: %w", err)
	}
	if decoded.DeviceID == "" || len(decoded.Seed) == 0 {
		return "", nil, fmt.Errorf("sealed: bundle missing device_id or seed")
	}

	seedBuffer, err := secret.NewFromBytes(decoded.Seed)
	if err != nil {
		return "", nil, fmt.Errorf("sealed: protecting seed: %w", err)
	}
	return decoded.DeviceID, seedBuffer, nil
}

// ParsePublicKey validates an age recipient string before it is used
// for an export.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("sealed: invalid age public key: %w", err)
	}
	return nil
}
