package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

// Meta keys.
const (
	MetaLastSweep = "last_sweep_at"
)

// LastSweep returns the start time of the last completed sweep, or the zero
// time when none has been recorded since the cache was created or truncated.
func (s *Store) LastSweep() (time.Time, error) {
	v, err := s.metaValue(MetaLastSweep)
	if errors.Is(err, types.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", MetaLastSweep, err)
	}
	return fromUnix(sec), nil
}

// SetLastSweep records the start time of a completed sweep.
func (s *Store) SetLastSweep(t time.Time) error {
	return s.setMetaValue(MetaLastSweep, strconv.FormatInt(unixSeconds(t), 10))
}

func (s *Store) metaValue(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", types.ErrStoreClosed
	}

	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) setMetaValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	if _, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}
