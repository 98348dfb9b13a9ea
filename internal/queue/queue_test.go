package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testStart = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release_queue", "beta.json")
	return newQueueAt(path)
}

func newQueueAt(path string) *Queue {
	now := testStart
	var mu sync.Mutex
	return New(path, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Minute)
			return now
		},
	})
}

func shas(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SHA)
	}
	return out
}

func TestQueue_enqueueClearStatusScenario(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	p, err := q.Enqueue(ctx, "abc123", "beta")
	if err != nil {
		t.Fatalf("Enqueue abc123: %v", err)
	}
	if p.Position != 1 || p.EstimatedWait != "Next in queue" {
		t.Fatalf("Enqueue abc123: got %+v", p)
	}
	p, err = q.Enqueue(ctx, "def456", "beta")
	if err != nil {
		t.Fatalf("Enqueue def456: %v", err)
	}
	if p.Position != 2 || p.EstimatedWait != "15 minutes" {
		t.Fatalf("Enqueue def456: got %+v", p)
	}

	removed, err := q.ClearUpTo(ctx, "abc123")
	if err != nil {
		t.Fatalf("ClearUpTo: %v", err)
	}
	if diff := cmp.Diff([]string{"abc123"}, shas(removed)); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	entries, err := q.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"def456"}, shas(entries)); diff != "" {
		t.Errorf("remaining (-want +got):\n%s", diff)
	}
	st, err := q.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Count != 1 {
		t.Errorf("Status count: got %d, want 1", st.Count)
	}
}

func TestQueue_enqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	first, err := q.Enqueue(ctx, "abc", "main")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	_, _ = q.Enqueue(ctx, "other", "main")
	before, _ := q.Load()

	second, err := q.Enqueue(ctx, "abc", "main")
	if err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}
	if first != second {
		t.Errorf("re-enqueue position: got %+v, want %+v", second, first)
	}
	after, _ := q.Load()
	if len(after) != 2 {
		t.Fatalf("re-enqueue duplicated entry: %v", shas(after))
	}
	if !after[0].Timestamp.After(before[0].Timestamp.Time) {
		t.Errorf("timestamp not refreshed: before %s after %s", before[0].Timestamp, after[0].Timestamp)
	}
	if after[1].Timestamp != before[1].Timestamp {
		t.Errorf("unrelated entry timestamp changed")
	}
}

func TestQueue_positionsIncrease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	waits := []string{"Next in queue", "15 minutes", "30 minutes", "45 minutes", "1 hour", "1 hour 15 minutes"}
	for i, want := range waits {
		p, err := q.Enqueue(ctx, fmt.Sprintf("sha%d", i), "beta")
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		if p.Position != i+1 || p.EstimatedWait != want {
			t.Errorf("Enqueue %d: got %+v, want position %d wait %q", i, p, i+1, want)
		}
	}
	entries, _ := q.Load()
	for i, e := range entries {
		if e.EstimatedTime != waits[i] || e.Status != StatusPending || e.Branch != "beta" {
			t.Errorf("entry %d: got %+v", i, e)
		}
	}
}

func TestQueue_clearUpToRenumbers(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	for _, sha := range []string{"a", "b", "c", "d"} {
		if _, err := q.Enqueue(ctx, sha, "beta"); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := q.ClearUpTo(ctx, "b")
	if err != nil {
		t.Fatalf("ClearUpTo: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, shas(removed)); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	entries, _ := q.Load()
	if diff := cmp.Diff([]string{"c", "d"}, shas(entries)); diff != "" {
		t.Errorf("remaining (-want +got):\n%s", diff)
	}
	if entries[0].EstimatedTime != "Next in queue" || entries[1].EstimatedTime != "15 minutes" {
		t.Errorf("waits not recomputed: %q, %q", entries[0].EstimatedTime, entries[1].EstimatedTime)
	}
	p, err := q.Position("d")
	if err != nil || p.Position != 2 {
		t.Errorf("Position d: got %+v err=%v", p, err)
	}
}

func TestQueue_clearUpToMissing(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	_, _ = q.Enqueue(ctx, "a", "beta")
	_, _ = q.Enqueue(ctx, "b", "beta")
	before, err := os.ReadFile(q.Path())
	if err != nil {
		t.Fatal(err)
	}
	removed, err := q.ClearUpTo(ctx, "zzz")
	if !errors.Is(err, ErrSHANotFound) {
		t.Fatalf("ClearUpTo missing: got %v, want ErrSHANotFound", err)
	}
	if len(removed) != 0 {
		t.Errorf("ClearUpTo missing removed %v", shas(removed))
	}
	after, _ := os.ReadFile(q.Path())
	if string(before) != string(after) {
		t.Error("ClearUpTo missing rewrote the file")
	}
	st, _ := q.Status()
	if st.Count != 2 {
		t.Errorf("Status count: got %d, want 2", st.Count)
	}
}

func TestQueue_loadMissingAndEmpty(t *testing.T) {
	q := newTestQueue(t)
	entries, err := q.Load()
	if err != nil || len(entries) != 0 {
		t.Fatalf("Load missing: got %v, %v", entries, err)
	}
	st, err := q.Status()
	if err != nil || st.Count != 0 || st.Oldest != "" {
		t.Fatalf("Status missing: got %+v, %v", st, err)
	}
	if err := os.MkdirAll(filepath.Dir(q.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(q.Path(), []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err = q.Load()
	if err != nil || len(entries) != 0 {
		t.Fatalf("Load empty: got %v, %v", entries, err)
	}
}

func TestQueue_saveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	for _, sha := range []string{"a", "b", "c"} {
		_, _ = q.Enqueue(ctx, sha, "main")
	}
	before, _ := os.ReadFile(q.Path())
	entries, err := q.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Save(ctx, entries); err != nil {
		t.Fatalf("Save: %v", err)
	}
	after, _ := os.ReadFile(q.Path())
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("save(load()) changed file (-before +after):\n%s", diff)
	}
	matches, _ := filepath.Glob(q.Path() + ".tmp-*")
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestQueue_loadLegacyItems(t *testing.T) {
	q := newTestQueue(t)
	_ = os.MkdirAll(filepath.Dir(q.Path()), 0o755)
	legacy := `{"items":[{"commit":"aaa","date":"2025-01-15T10:00:00Z","pr":12},{"commit":"bbb","date":"2025-01-15T11:00:00+00:00"}]}`
	if err := os.WriteFile(q.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := q.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"aaa", "bbb"}, shas(entries)); diff != "" {
		t.Fatalf("legacy shas (-want +got):\n%s", diff)
	}
	if entries[0].PR == nil || *entries[0].PR != 12 {
		t.Errorf("legacy pr not kept: %+v", entries[0])
	}
	if entries[0].Status != StatusPending {
		t.Errorf("legacy status: got %q", entries[0].Status)
	}
	st, _ := q.Status()
	if st.Oldest != "2025-01-15T10:00:00Z" {
		t.Errorf("Status oldest: got %q", st.Oldest)
	}
}

func TestQueue_loadLineDelimitedSkipsBadLines(t *testing.T) {
	q := newTestQueue(t)
	_ = os.MkdirAll(filepath.Dir(q.Path()), 0o755)
	data := `{"sha":"one","branch":"beta","timestamp":1736935200,"status":"pending","estimated_time":""}
not json at all
{"sha":"two","branch":"beta","timestamp":"2025-01-15T10:05:00Z","status":"pending"}

{"branch":"beta"}
`
	if err := os.WriteFile(q.Path(), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := q.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"one", "two"}, shas(entries)); diff != "" {
		t.Fatalf("ndjson shas (-want +got):\n%s", diff)
	}
	if got := entries[0].Timestamp.String(); got != "2025-01-15T10:00:00Z" {
		t.Errorf("unix timestamp: got %q", got)
	}

	// Enqueue rewrites the file as a JSON array.
	if _, err := q.Enqueue(context.Background(), "three", "beta"); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(q.Path())
	if len(raw) == 0 || raw[0] != '[' {
		t.Errorf("expected array after rewrite, got %q", raw)
	}
}

func TestQueue_loadLineDelimitedOversizedLine(t *testing.T) {
	q := newTestQueue(t)
	_ = os.MkdirAll(filepath.Dir(q.Path()), 0o755)
	huge := `{"sha":"` + strings.Repeat("x", 2<<20)
	data := `{"sha":"a","branch":"beta"}` + "\n" + huge + "\n" + `{"sha":"c","branch":"beta"}` + "\n"
	if err := os.WriteFile(q.Path(), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := q.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, shas(entries)); diff != "" {
		t.Errorf("shas around oversized line (-want +got):\n%s", diff)
	}
}

func TestQueue_enqueuePR(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	pr := int64(42)
	if _, err := q.EnqueuePR(ctx, "a", "beta", &pr); err != nil {
		t.Fatalf("EnqueuePR: %v", err)
	}
	// Re-adding without a PR keeps the stored one.
	if _, err := q.Enqueue(ctx, "a", "beta"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	entries, err := q.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].PR == nil || *entries[0].PR != 42 {
		t.Fatalf("PR after re-add: got %+v", entries)
	}
	other := int64(43)
	if _, err := q.EnqueuePR(ctx, "a", "beta", &other); err != nil {
		t.Fatal(err)
	}
	entries, _ = q.Load()
	if got := *entries[0].PR; got != 43 {
		t.Errorf("PR after re-add with new PR: got %d, want 43", got)
	}
}

func TestQueue_leftoverLockFileDoesNotBlock(t *testing.T) {
	q := newTestQueue(t)
	_ = os.MkdirAll(filepath.Dir(q.Path()), 0o755)
	// A lock file left by a killed run holds no lock.
	if err := os.WriteFile(q.lockPath(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := q.Enqueue(ctx, "a", "beta"); err != nil {
		t.Fatalf("Enqueue with leftover lock file: %v", err)
	}
}

func TestQueue_enqueueRequiresSHA(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), "", "beta"); err == nil {
		t.Fatal("Enqueue empty sha: expected error")
	}
}

func TestQueue_cancelledContext(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Enqueue(ctx, "a", "beta"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Enqueue cancelled: got %v", err)
	}
}

func TestQueue_concurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate Queue values share nothing but the file, like separate CI runs.
			q := newQueueAt(path)
			if _, err := q.Enqueue(context.Background(), fmt.Sprintf("sha-%02d", i), "beta"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Enqueue: %v", err)
	}
	entries, err := newQueueAt(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != writers {
		t.Fatalf("lost updates: got %d entries, want %d", len(entries), writers)
	}
	seen := make(map[string]bool)
	for i, e := range entries {
		if seen[e.SHA] {
			t.Errorf("duplicate sha %s", e.SHA)
		}
		seen[e.SHA] = true
		if want := FormatWait(WaitMinutes(i+1, DefaultSlotMinutes)); e.EstimatedTime != want {
			t.Errorf("entry %d wait: got %q, want %q", i, e.EstimatedTime, want)
		}
	}
}

func TestFormatWait(t *testing.T) {
	tests := map[int]string{
		0:   "Next in queue",
		1:   "1 minute",
		15:  "15 minutes",
		59:  "59 minutes",
		60:  "1 hour",
		61:  "1 hour 1 minute",
		75:  "1 hour 15 minutes",
		120: "2 hours",
		135: "2 hours 15 minutes",
	}
	for in, want := range tests {
		if got := FormatWait(in); got != want {
			t.Errorf("FormatWait(%d): got %q, want %q", in, got, want)
		}
	}
}

func TestCustomSlot(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "q.json"), Options{SlotMinutes: 30, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "a", "beta")
	_, _ = q.Enqueue(ctx, "b", "beta")
	p, err := q.Enqueue(ctx, "c", "beta")
	if err != nil {
		t.Fatal(err)
	}
	if p.EstimatedWait != "1 hour" {
		t.Errorf("slot 30 position 3: got %q", p.EstimatedWait)
	}
}
