package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state", "history.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenClose(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	var v int
	if err := st.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if v != 1 {
		t.Errorf("user_version: got %d, want 1", v)
	}
}

func TestRecordAndRecent(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	if err := st.RecordResolution(ctx, Resolution{Branch: "beta", Version: "beta-v1.0.1", IsPrerelease: true, Rule: "beta-patch"}); err != nil {
		t.Fatalf("RecordResolution: %v", err)
	}
	clock = clock.Add(time.Hour)
	err := st.RecordProcessed(ctx, []Processed{
		{SHA: "abc", Branch: "beta", EnqueuedAt: clock.Add(-30 * time.Minute)},
		{SHA: "def", Branch: "beta", EnqueuedAt: clock.Add(-20 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("RecordProcessed: %v", err)
	}

	events, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Recent: got %d events, want 3", len(events))
	}
	if events[0].Kind != KindProcessed || events[0].Ref != "def" {
		t.Errorf("newest event: got %+v", events[0])
	}
	last := events[2]
	if last.Kind != KindResolved || last.Ref != "beta-v1.0.1" || last.Detail != "beta-patch" || !last.At.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("oldest event: got %+v", last)
	}

	limited, err := st.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Recent limit 1: got %d, %v", len(limited), err)
	}
}

func TestRecordProcessed_empty(t *testing.T) {
	st := openTest(t)
	if err := st.RecordProcessed(context.Background(), nil); err != nil {
		t.Fatalf("RecordProcessed nil: %v", err)
	}
}
