// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/hostid"
)

func testQueue(t *testing.T, clk clock.Clock) *Queue {
	t.Helper()
	q, err := New(Config{
		Dir:      filepath.Join(t.TempDir(), "queue"),
		Identity: hostid.Identity{Hostname: "test-host", Username: "test-user"},
		Clock:    clk,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func TestEnqueueDrainRoundTrip(t *testing.T) {
	q := testQueue(t, nil)
	payload := []byte(`{"event":"QUALITY_CHECK","productId":"SKU-1"}`)

	if err := q.Enqueue(ContentName(payload), payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var got []byte
	err := q.Drain(context.Background(), func(_ context.Context, name string, plaintext []byte) error {
		if name != ContentName(payload) {
			t.Errorf("entry name = %q, want content name", name)
		}
		got = append([]byte(nil), plaintext...)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("drained bytes differ from enqueued: %q", got)
	}

	count, _, err := q.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 0 {
		t.Fatalf("delivered entry not deleted, count = %d", count)
	}
}

func TestEnqueueSamePayloadOverwrites(t *testing.T) {
	q := testQueue(t, nil)
	payload := []byte("same bytes")

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ContentName(payload), payload); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	count, _, err := q.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (content-named entries dedupe)", count)
	}
}

func TestEnqueueRejectsPathSeparators(t *testing.T) {
	q := testQueue(t, nil)
	if err := q.Enqueue("../escape", []byte("x")); err == nil {
		t.Fatal("expected error for name with path separator")
	}
	if err := q.Enqueue("", []byte("x")); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestEntriesAtRestAreNotPlaintext(t *testing.T) {
	q := testQueue(t, nil)
	payload := []byte("definitely-secret-marker-string")

	if err := q.Enqueue("entry", payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(q.dir, "entry.bin"))
	if err != nil {
		t.Fatalf("reading raw entry: %v", err)
	}
	if bytes.Contains(data, payload) {
		t.Fatal("payload visible in the on-disk blob")
	}
}

func TestDrainOrderIsLexicographic(t *testing.T) {
	q := testQueue(t, nil)
	for _, name := range []string{"ccc", "aaa", "bbb"} {
		if err := q.Enqueue(name, []byte(name)); err != nil {
			t.Fatalf("Enqueue %q: %v", name, err)
		}
	}

	var order []string
	err := q.Drain(context.Background(), func(_ context.Context, name string, _ []byte) error {
		order = append(order, name)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	want := []string{"aaa", "bbb", "ccc"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drain order = %v, want %v", order, want)
		}
	}
}

func TestDrainEmptyQueueIsNoOp(t *testing.T) {
	q := testQueue(t, nil)
	err := q.Drain(context.Background(), func(context.Context, string, []byte) error {
		t.Fatal("submit called on an empty queue")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestDrainRetainsFailingEntryAndBacksOff(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	q := testQueue(t, clk)
	if err := q.Enqueue("stuck", []byte("payload")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Drain(context.Background(), func(context.Context, string, []byte) error {
			return fmt.Errorf("bus unreachable")
		})
	}()

	// The drain must be parked on the backoff timer, not deleting.
	clk.BlockUntil(1)
	clk.Advance(DefaultBackoff)
	if err := <-done; err != nil {
		t.Fatalf("Drain: %v", err)
	}

	count, _, err := q.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 {
		t.Fatalf("failing entry was deleted, count = %d", count)
	}
}

func TestDrainSkipEntryHasNoBackoff(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	q := testQueue(t, clk)
	if err := q.Enqueue("malformed", []byte("not an envelope")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// No Advance: if a skip armed the backoff timer, Drain would hang.
	err := q.Drain(context.Background(), func(context.Context, string, []byte) error {
		return fmt.Errorf("decoding envelope: %w", ErrSkipEntry)
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}

	count, _, err := q.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 {
		t.Fatalf("skipped entry was deleted, count = %d", count)
	}
}

func TestDrainRetainsUndecryptableEntry(t *testing.T) {
	q := testQueue(t, nil)
	if err := os.MkdirAll(q.dir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(q.dir, "corrupt.bin"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := q.Drain(context.Background(), func(context.Context, string, []byte) error {
		t.Fatal("submit called for an undecryptable entry")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(q.dir, "corrupt.bin")); err != nil {
		t.Fatalf("undecryptable entry was removed: %v", err)
	}
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q := testQueue(t, nil)
	for _, name := range []string{"a", "b"} {
		if err := q.Enqueue(name, []byte(name)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := q.Drain(ctx, func(context.Context, string, []byte) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("submit calls = %d, want 1", calls)
	}
}

func TestPruneByAge(t *testing.T) {
	start := time.Now()
	clk := clock.Fake(start)
	q := testQueue(t, clk)

	if err := q.Enqueue("old", []byte("old")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	old := filepath.Join(q.dir, "old.bin")
	stale := start.Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := q.Enqueue("fresh", []byte("fresh")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := os.Chtimes(filepath.Join(q.dir, "fresh.bin"), start, start); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	removed, err := q.PruneByAge(30)
	if err != nil {
		t.Fatalf("PruneByAge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("stale entry still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(q.dir, "fresh.bin")); err != nil {
		t.Fatalf("fresh entry removed: %v", err)
	}
}

func TestPruneByAgeZeroDaysRemovesEverythingOld(t *testing.T) {
	start := time.Now()
	clk := clock.Fake(start)
	q := testQueue(t, clk)

	if err := q.Enqueue("entry", []byte("x")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	past := start.Add(-time.Minute)
	if err := os.Chtimes(filepath.Join(q.dir, "entry.bin"), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	removed, err := q.PruneByAge(0)
	if err != nil {
		t.Fatalf("PruneByAge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestStatsAndWipe(t *testing.T) {
	q := testQueue(t, nil)

	count, totalBytes, err := q.Stats()
	if err != nil || count != 0 || totalBytes != 0 {
		t.Fatalf("Stats on missing dir = (%d, %d, %v), want zeros", count, totalBytes, err)
	}

	if err := q.Enqueue("a", []byte("aaa")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue("b", []byte("bbb")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	count, totalBytes, err = q.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 2 || totalBytes == 0 {
		t.Fatalf("Stats = (%d, %d), want count 2 and nonzero bytes", count, totalBytes)
	}

	if err := q.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if _, err := os.Stat(q.dir); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("queue directory survives Wipe: %v", err)
	}
}

func TestContentNameIsStableAndDistinct(t *testing.T) {
	a := ContentName([]byte("payload-a"))
	if a != ContentName([]byte("payload-a")) {
		t.Fatal("ContentName is not deterministic")
	}
	if a == ContentName([]byte("payload-b")) {
		t.Fatal("distinct payloads share a content name")
	}
	if len(a) != 64 {
		t.Fatalf("content name length = %d, want 64 hex chars", len(a))
	}
}
