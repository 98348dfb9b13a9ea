// Package history keeps an optional SQLite ledger of resolved versions and
// processed queue entries, so a run can report what previous runs released.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind distinguishes ledger events.
type Kind string

const (
	KindResolved  Kind = "resolved"
	KindProcessed Kind = "processed"
)

// Event is one ledger row. Ref is the version for resolutions and the commit sha
// for processed entries.
type Event struct {
	Kind   Kind
	Branch string
	Ref    string
	Detail string
	At     time.Time
}

// Resolution is a resolved release version.
type Resolution struct {
	Branch       string
	Version      string
	IsPrerelease bool
	Rule         string
}

// Processed is a queue entry that was cleared after its release ran.
type Processed struct {
	SHA        string
	Branch     string
	EnqueuedAt time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, now: time.Now}
	if err := s.initPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Migrate applies the embedded migrations newer than the database's
// user_version, each in its own transaction. Files are named NNNN_name.sql.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("history store not initialized")
	}
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		v, err := strconv.Atoi(strings.SplitN(f.Name(), "_", 2)[0])
		if err != nil {
			return fmt.Errorf("invalid migration version in %s", f.Name())
		}
		if v <= current {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, string(body))
		if err == nil {
			// PRAGMA takes no bind parameters; v is an int parsed above.
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", f.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		current = v
	}
	return nil
}

// RecordResolution appends a resolved version.
func (s *Store) RecordResolution(ctx context.Context, r Resolution) error {
	pre := 0
	if r.IsPrerelease {
		pre = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO resolutions(branch, version, is_prerelease, rule, created_at) VALUES(?, ?, ?, ?, ?)`,
		r.Branch, r.Version, pre, r.Rule, s.now().Unix())
	return err
}

// RecordProcessed appends the cleared queue entries in one transaction.
func (s *Store) RecordProcessed(ctx context.Context, entries []Processed) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	cleared := s.now().Unix()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processed(sha, branch, enqueued_at, cleared_at) VALUES(?, ?, ?, ?)`,
			e.SHA, e.Branch, e.EnqueuedAt.Unix(), cleared); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recent returns up to limit events, newest first. A limit of 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT kind, branch, ref, detail, at, seq FROM (
  SELECT 'resolved' AS kind, branch, version AS ref, rule AS detail, created_at AS at, id AS seq FROM resolutions
  UNION ALL
  SELECT 'processed' AS kind, branch, sha AS ref, '' AS detail, cleared_at AS at, id AS seq FROM processed
) ORDER BY at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var (
			e    Event
			kind string
			at   int64
			seq  int64
		)
		if err := rows.Scan(&kind, &e.Branch, &e.Ref, &e.Detail, &at, &seq); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.At = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
