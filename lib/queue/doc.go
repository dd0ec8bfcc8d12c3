// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue is the durable, encrypted-at-rest offline queue for
// events that could not be delivered immediately.
//
// Each entry is one {name}.bin file in the queue directory: a 12-byte
// nonce followed by the ChaCha20-Poly1305 ciphertext of the
// zstd-compressed payload. Compression is transparent — Drain hands
// the callback the exact bytes that were enqueued. The encryption key
// is the same weak host-identity derivation the file vault backend
// uses (hostid.FileKey).
//
// Durability contract: Enqueue is all-or-nothing (temp file + rename),
// and an entry is deleted only after its submit callback returns nil.
// A failing entry delays the pass by a fixed backoff and is retried on
// the next drain; an undecryptable entry is logged and skipped,
// forever, until PruneByAge removes it — it is never silently deleted.
//
// The queue is not locked against concurrent processes. Two agents
// draining the same directory can double-submit or race a delete;
// the deployment model is one agent per device.
package queue
