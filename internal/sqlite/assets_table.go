package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

const assetColumns = "guid, path, created_at, scanned_at, file_size, modified_at"

// AssetByPath returns the record stored for a project-relative path.
// Returns ErrNotFound when no record exists.
func (s *Store) AssetByPath(path string) (types.AssetRecord, error) {
	return s.queryAsset("SELECT "+assetColumns+" FROM assets WHERE path = ?", path)
}

// AssetByGUID returns the record stored for an identifier.
// Returns ErrNotFound when no record exists.
func (s *Store) AssetByGUID(guid string) (types.AssetRecord, error) {
	return s.queryAsset("SELECT "+assetColumns+" FROM assets WHERE guid = ?", guid)
}

func (s *Store) queryAsset(query string, arg string) (types.AssetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.AssetRecord{}, types.ErrStoreClosed
	}

	rec, err := hydrateAsset(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return types.AssetRecord{}, types.ErrNotFound
	}
	if err != nil {
		return types.AssetRecord{}, fmt.Errorf("getting asset %s: %w", arg, err)
	}
	return rec, nil
}

// PutAsset inserts rec, evicting any record that conflicts on either the
// identifier or the path. CreatedAt is preserved when the same identifier
// and path were already stored.
func (s *Store) PutAsset(rec types.AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	return replaceAsset(s.db, rec)
}

// DeleteAsset removes the record for guid. Deleting a missing record is not
// an error.
func (s *Store) DeleteAsset(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM assets WHERE guid = ?", guid); err != nil {
		return fmt.Errorf("deleting asset %s: %w", guid, err)
	}
	return nil
}

// Assets returns every record ordered by path.
func (s *Store) Assets() ([]types.AssetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStoreClosed
	}

	rows, err := s.db.Query("SELECT " + assetColumns + " FROM assets ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	results := []types.AssetRecord{}
	for rows.Next() {
		rec, err := hydrateAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating asset: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assets: %w", err)
	}
	return results, nil
}

func replaceAsset(db execer, rec types.AssetRecord) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO assets (`+assetColumns+`)
		 VALUES (?, ?, COALESCE((SELECT created_at FROM assets WHERE guid = ? AND path = ?), ?), ?, ?, ?)`,
		rec.GUID, rec.Path,
		rec.GUID, rec.Path, unixSeconds(rec.CreatedAt),
		unixSeconds(rec.ScannedAt), rec.Size, mtimeSeconds(rec.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("persisting asset %s: %w", rec.Path, err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func hydrateAsset(row scanner) (types.AssetRecord, error) {
	var rec types.AssetRecord
	var createdAt, scannedAt, modifiedAt int64
	if err := row.Scan(&rec.GUID, &rec.Path, &createdAt, &scannedAt, &rec.Size, &modifiedAt); err != nil {
		return types.AssetRecord{}, err
	}
	rec.CreatedAt = fromUnix(createdAt)
	rec.ScannedAt = fromUnix(scannedAt)
	rec.ModifiedAt = fromMtime(modifiedAt)
	return rec, nil
}
