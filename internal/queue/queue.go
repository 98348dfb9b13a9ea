// Package queue keeps the ordered, deduplicated list of pending release
// requests in a JSON file and answers position and wait-time queries.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrSHANotFound is returned when a commit is not in the queue. It is not fatal.
var ErrSHANotFound = errors.New("commit not found in queue")

// Placement is where a commit sits in the queue.
type Placement struct {
	Position      int
	EstimatedWait string
}

// Summary describes the queue as a whole.
type Summary struct {
	Count  int
	Oldest string
}

// Options configures a Queue. Zero values pick the defaults.
type Options struct {
	SlotMinutes int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Queue is a release queue persisted at a single path. Mutations take an
// exclusive lock on <path>.lock for the whole load-modify-save cycle.
type Queue struct {
	path string
	slot int
	log  *slog.Logger
	now  func() time.Time
}

// New returns a Queue backed by path. The file is created on first write.
func New(path string, opts Options) *Queue {
	q := &Queue{path: path, slot: opts.SlotMinutes, log: opts.Logger, now: opts.Now}
	if q.slot <= 0 {
		q.slot = DefaultSlotMinutes
	}
	if q.log == nil {
		q.log = slog.Default()
	}
	q.log = q.log.With("queue", path)
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// Path returns the queue file path.
func (q *Queue) Path() string { return q.path }

func (q *Queue) lockPath() string { return q.path + ".lock" }

// Load reads all entries. A missing or empty file is an empty queue.
func (q *Queue) Load() ([]Entry, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue: %w", err)
	}
	return q.parse(data), nil
}

// parse tries a JSON array, then the legacy {"items": [...]} object, then one
// JSON object per line. Lines that do not parse are dropped with a warning.
func (q *Queue) parse(data []byte) []Entry {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries
	}
	var legacy struct {
		Items *[]Entry `json:"items"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.Items != nil {
		return *legacy.Items
	}
	q.log.Warn("queue file is not a JSON array, reading line by line")
	var out []Entry
	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.SHA == "" {
			q.log.Warn("skipping unparseable queue line", "line", i+1, "bytes", len(line))
			continue
		}
		out = append(out, e)
	}
	return out
}

// Save replaces the queue file with entries.
func (q *Queue) Save(ctx context.Context, entries []Entry) error {
	return q.withLock(ctx, func() error { return q.save(entries) })
}

// save writes a temp file next to the queue and renames it into place, so
// readers see either the old or the new content.
func (q *Queue) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(q.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write queue: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod queue: %w", err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}

func (q *Queue) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := acquireLock(q.lockPath())
	if err != nil {
		return err
	}
	defer lock.release()
	return fn()
}

// Enqueue adds sha to the end of the queue, or refreshes its timestamp if it is
// already queued, and returns its position. The branch is stored as given.
func (q *Queue) Enqueue(ctx context.Context, sha, branch string) (Placement, error) {
	return q.EnqueuePR(ctx, sha, branch, nil)
}

// EnqueuePR is Enqueue with the pull request that produced sha. A nil pr keeps
// whatever an existing entry already records.
func (q *Queue) EnqueuePR(ctx context.Context, sha, branch string, pr *int64) (Placement, error) {
	if sha == "" {
		return Placement{}, errors.New("sha is required")
	}
	var placement Placement
	err := q.withLock(ctx, func() error {
		entries, err := q.Load()
		if err != nil {
			return err
		}
		now := NewTimestamp(q.now())
		idx := indexOf(entries, sha)
		if idx >= 0 {
			entries[idx].Timestamp = now
			if pr != nil {
				entries[idx].PR = pr
			}
			q.log.Info("commit already queued, refreshed timestamp", "sha", sha, "position", idx+1)
		} else {
			entries = append(entries, Entry{
				SHA:       sha,
				Branch:    branch,
				Timestamp: now,
				Status:    StatusPending,
				PR:        pr,
			})
			idx = len(entries) - 1
			q.log.Info("queued release", "sha", sha, "branch", branch, "position", idx+1)
		}
		q.estimate(entries)
		if err := q.save(entries); err != nil {
			return err
		}
		placement = Placement{Position: idx + 1, EstimatedWait: entries[idx].EstimatedTime}
		return nil
	})
	return placement, err
}

// ClearUpTo removes sha and every entry queued before it, returning the removed
// entries. If sha is not queued the file is left untouched and ErrSHANotFound is returned.
func (q *Queue) ClearUpTo(ctx context.Context, sha string) ([]Entry, error) {
	var removed []Entry
	err := q.withLock(ctx, func() error {
		entries, err := q.Load()
		if err != nil {
			return err
		}
		idx := indexOf(entries, sha)
		if idx < 0 {
			q.log.Warn("processed commit not found in queue", "sha", sha)
			return fmt.Errorf("%w: %s", ErrSHANotFound, sha)
		}
		rest := append([]Entry(nil), entries[idx+1:]...)
		q.estimate(rest)
		if err := q.save(rest); err != nil {
			return err
		}
		removed = entries[:idx+1]
		q.log.Info("cleared processed releases", "sha", sha, "removed", len(removed), "remaining", len(rest))
		return nil
	})
	return removed, err
}

// Status returns the entry count and the timestamp of the oldest entry.
func (q *Queue) Status() (Summary, error) {
	entries, err := q.Load()
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Count: len(entries)}
	if len(entries) > 0 {
		s.Oldest = entries[0].Timestamp.String()
	}
	return s, nil
}

// Position reports where sha currently sits.
func (q *Queue) Position(sha string) (Placement, error) {
	entries, err := q.Load()
	if err != nil {
		return Placement{}, err
	}
	idx := indexOf(entries, sha)
	if idx < 0 {
		return Placement{}, fmt.Errorf("%w: %s", ErrSHANotFound, sha)
	}
	return Placement{Position: idx + 1, EstimatedWait: FormatWait(WaitMinutes(idx+1, q.slot))}, nil
}

func (q *Queue) estimate(entries []Entry) {
	for i := range entries {
		entries[i].EstimatedTime = FormatWait(WaitMinutes(i+1, q.slot))
	}
}

func indexOf(entries []Entry, sha string) int {
	for i := range entries {
		if entries[i].SHA == sha {
			return i
		}
	}
	return -1
}
