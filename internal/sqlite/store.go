// Package sqlite implements the persistent cache of the asset reference
// index: asset records, dependency edges and a small key/value meta table in
// a single SQLite file.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

// pragmas applied to every connection.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Store is the SQLite-backed cache. All methods are safe for concurrent use;
// writes are serialised on a single connection.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the cache file at path. The parent directory is
// created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}

	// One connection: SQLite allows a single writer and the store interleaves
	// reads and writes from several goroutines.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle. Close is idempotent; later
// operations return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}

// Truncate removes every asset record, dependency edge and meta value. The
// file itself is kept.
func (s *Store) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"assets", "dependencies", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("truncating %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing truncate: %w", err)
	}
	return nil
}

// RecordScan stores the result of scanning one file in a single
// transaction: an edge from rec to every dependency identifier, and rec
// itself with its ScannedAt. Self references are skipped.
func (s *Store) RecordScan(rec types.AssetRecord, dependencies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := rec.ScannedAt
	if now.IsZero() {
		now = time.Now()
	}
	for _, dep := range dependencies {
		if dep == rec.GUID {
			continue
		}
		edge := types.DependencyEdge{
			TargetGUID:     rec.GUID,
			DependencyGUID: dep,
			UpdatedAt:      now,
			Fingerprint:    rec.Fingerprint,
		}
		if err := upsertEdge(tx, edge); err != nil {
			return err
		}
	}
	if err := replaceAsset(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan of %s: %w", rec.Path, err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// unixSeconds and fromUnix encode timestamps where 0 means unset.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// mtimeSeconds and fromMtime encode fingerprint mtimes. Every value is a real
// timestamp, the epoch included.
func mtimeSeconds(t time.Time) int64 {
	return t.Unix()
}

func fromMtime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
