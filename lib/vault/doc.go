// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault persists opaque secret byte-strings under a
// (service, account) key. Two backends implement the Store interface:
//
//   - Keyring: the OS-native credential facility (Secret Service,
//     Keychain, Credential Manager) via zalando/go-keyring. The
//     facility stores strings, so secrets are base64-encoded.
//   - File: one {account}.bin file per secret in the agent data
//     directory, 12-byte nonce ∥ ChaCha20-Poly1305 ciphertext, keyed
//     by the weak host-identity derivation (see hostid.FileKey).
//
// Backends are selected by an explicit Backend value — there is no
// ambient process-wide state. LoadOrGenerate implements the failover
// ladder that guarantees a caller receives usable secret bytes unless
// both backends are simultaneously unusable for both read and write.
//
// "Not found" (ErrNotFound) is deliberately distinguishable from
// "decrypt/parse failed" (ErrDecrypt): the first means no secret was
// ever stored, the second means a stored secret is corrupt or
// encrypted under a different host identity.
package vault
