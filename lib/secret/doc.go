// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive material:
// the pre-shared provisioning secret, trust tokens in transit, and the
// device key seed on its way between the vault and the signer.
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (no swap), and marks it
// excluded from core dumps (MADV_DONTDUMP). Close zeros, unlocks, and
// unmaps the region. Because the garbage collector never sees the
// allocation, it cannot copy or relocate the secret behind our back.
//
// ReadFromPath and ReadFromTerminal produce Buffers directly from a
// file, stdin, or an interactive no-echo prompt, for the provision
// subcommand.
package secret
