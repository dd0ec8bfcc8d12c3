// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/27inator/KPM-cursor/lib/blob"
	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/hostid"
)

// ErrSkipEntry marks a submit failure as permanent-for-this-format:
// the entry is retained but the drain pass moves on immediately, with
// no backoff. Callbacks return it (wrapped or bare) for payloads they
// can read but not interpret, e.g. an envelope that fails to decode.
var ErrSkipEntry = errors.New("queue: skip entry")

// DefaultBackoff is the pause after a failed submit before the drain
// pass moves to the next entry.
const DefaultBackoff = 2 * time.Second

// SubmitFunc attempts redelivery of one decrypted entry. A nil return
// deletes the entry; any other return retains it for the next drain.
type SubmitFunc func(ctx context.Context, name string, plaintext []byte) error

// Config configures a Queue.
type Config struct {
	// Dir is the queue directory, created on first enqueue.
	Dir string

	// Identity supplies the encryption key derivation.
	Identity hostid.Identity

	// Clock drives the retry backoff. Nil means the real clock.
	Clock clock.Clock

	// Logger records skipped and failed entries. Nil means slog.Default.
	Logger *slog.Logger

	// Backoff overrides DefaultBackoff when positive.
	Backoff time.Duration
}

// Queue is a directory of encrypted event payloads. Methods are safe
// for sequential use from the agent's single scheduling loop; the
// package doc describes the cross-process caveats.
type Queue struct {
	dir        string
	key        [32]byte
	clock      clock.Clock
	logger     *slog.Logger
	backoff    time.Duration
	compressor *zstd.Encoder
	expander   *zstd.Decoder
}

// New creates a Queue. The directory is not created until the first
// enqueue, so a drained-empty installation leaves no trace on disk.
func New(config Config) (*Queue, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("queue: Dir is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := config.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	compressor, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("queue: creating compressor: %w", err)
	}
	expander, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("queue: creating decompressor: %w", err)
	}

	return &Queue{
		dir:        config.Dir,
		key:        config.Identity.FileKey(),
		clock:      clk,
		logger:     logger,
		backoff:    backoff,
		compressor: compressor,
		expander:   expander,
	}, nil
}

// ContentName returns a stable, filesystem-safe entry name for a
// payload: the hex BLAKE3 digest of its bytes. Enqueuing the same
// payload twice overwrites rather than duplicates.
func ContentName(payload []byte) string {
	digest := blake3.Sum256(payload)
	return hex.EncodeToString(digest[:])
}

// Enqueue encrypts plaintext and writes it durably under name. The
// write is all-or-nothing: a crash mid-enqueue leaves either the
// previous entry or none, never a truncated blob. Overwriting an
// existing name is allowed.
func (q *Queue) Enqueue(name string, plaintext []byte) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("queue: invalid entry name %q", name)
	}
	if err := os.MkdirAll(q.dir, 0o700); err != nil {
		return fmt.Errorf("queue: creating directory: %w", err)
	}

	compressed := q.compressor.EncodeAll(plaintext, nil)
	sealed, err := blob.Seal(q.key, compressed)
	if err != nil {
		return fmt.Errorf("queue: sealing %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(q.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("queue: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queue: writing %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue: closing %q: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(q.dir, name+".bin")); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue: renaming %q into place: %w", name, err)
	}
	return nil
}

// Drain makes one pass over all entries in lexicographic name order.
// Per entry: decrypt, call submit, delete on success. A submit failure
// pauses for the backoff and continues with the next entry — one stuck
// entry does not block the rest of the pass. Entries that fail to
// decrypt or that submit marks with ErrSkipEntry are logged and
// retained; they will fail identically on every subsequent drain until
// PruneByAge removes them.
//
// Returns the context error if cancelled mid-pass, otherwise nil.
func (q *Queue) Drain(ctx context.Context, submit SubmitFunc) error {
	entries, err := q.entries()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(q.dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".bin")

		data, err := os.ReadFile(path)
		if err != nil {
			q.logger.Warn("queue: reading entry", "name", name, "error", err)
			continue
		}
		plaintext, err := q.open(data)
		if err != nil {
			q.logger.Warn("queue: undecryptable entry retained", "name", name, "error", err)
			continue
		}

		if err := submit(ctx, name, plaintext); err != nil {
			if errors.Is(err, ErrSkipEntry) {
				q.logger.Warn("queue: entry skipped", "name", name, "error", err)
				continue
			}
			q.logger.Warn("queue: submit failed, retrying next drain", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.clock.After(q.backoff):
			}
			continue
		}

		if err := os.Remove(path); err != nil {
			q.logger.Warn("queue: deleting delivered entry", "name", name, "error", err)
		}
	}
	return nil
}

// PruneByAge deletes entries whose last-modified time precedes
// now - days, regardless of delivery status. This is the coarse
// retention bound that keeps permanently undeliverable entries from
// accumulating forever. Returns the number of entries removed.
func (q *Queue) PruneByAge(days int) (int, error) {
	entries, err := q.entries()
	if err != nil {
		return 0, err
	}

	cutoff := q.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(q.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats returns the current entry count and their total size in bytes.
func (q *Queue) Stats() (count int, totalBytes int64, err error) {
	entries, err := q.entries()
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		totalBytes += info.Size()
	}
	return count, totalBytes, nil
}

// Wipe removes the queue directory and everything in it. Uninstall
// support; there is no undo.
func (q *Queue) Wipe() error {
	if err := os.RemoveAll(q.dir); err != nil {
		return fmt.Errorf("queue: wiping directory: %w", err)
	}
	return nil
}

// entries lists the .bin files in the queue directory, sorted by name
// (os.ReadDir order). A missing directory is an empty queue.
func (q *Queue) entries() ([]os.DirEntry, error) {
	all, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: reading directory: %w", err)
	}

	bins := all[:0]
	for _, entry := range all {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".bin") {
			bins = append(bins, entry)
		}
	}
	return bins, nil
}

// open decrypts and decompresses one entry blob.
func (q *Queue) open(data []byte) ([]byte, error) {
	compressed, err := blob.Open(q.key, data)
	if err != nil {
		return nil, err
	}
	plaintext, err := q.expander.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: decompressing entry: %w", err)
	}
	return plaintext, nil
}
