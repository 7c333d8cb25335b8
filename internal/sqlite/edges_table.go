package sqlite

import (
	"fmt"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

const edgeColumns = "id, target_guid, dependency_guid, updated_at, file_size, modified_at"

// PutEdge inserts an edge or, when the (target, dependency) pair exists,
// overwrites its timestamps and fingerprint in place. The row id is kept.
func (s *Store) PutEdge(edge types.DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	return upsertEdge(s.db, edge)
}

// EdgesTo returns the edges whose dependency is guid, i.e. the candidate
// referrers of that asset.
func (s *Store) EdgesTo(guid string) ([]types.DependencyEdge, error) {
	return s.queryEdges("SELECT "+edgeColumns+" FROM dependencies WHERE dependency_guid = ? ORDER BY id", guid)
}

// EdgesFrom returns the edges whose target is guid, i.e. what that asset
// references.
func (s *Store) EdgesFrom(guid string) ([]types.DependencyEdge, error) {
	return s.queryEdges("SELECT "+edgeColumns+" FROM dependencies WHERE target_guid = ? ORDER BY id", guid)
}

// Edges returns every edge ordered by id.
func (s *Store) Edges() ([]types.DependencyEdge, error) {
	return s.queryEdges("SELECT " + edgeColumns + " FROM dependencies ORDER BY id")
}

// DeleteEdge removes the edge with the given row id. Deleting a missing edge
// is not an error.
func (s *Store) DeleteEdge(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM dependencies WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting edge %d: %w", id, err)
	}
	return nil
}

// queryEdges reads all matching rows before returning so callers may write
// to the store while iterating the result.
func (s *Store) queryEdges(query string, args ...any) ([]types.DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStoreClosed
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching edges: %w", err)
	}
	defer rows.Close()

	results := []types.DependencyEdge{}
	for rows.Next() {
		var e types.DependencyEdge
		var updatedAt, modifiedAt int64
		if err := rows.Scan(&e.ID, &e.TargetGUID, &e.DependencyGUID, &updatedAt, &e.Size, &modifiedAt); err != nil {
			return nil, fmt.Errorf("hydrating edge: %w", err)
		}
		e.UpdatedAt = fromUnix(updatedAt)
		e.ModifiedAt = fromMtime(modifiedAt)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return results, nil
}

func upsertEdge(db execer, e types.DependencyEdge) error {
	_, err := db.Exec(
		`INSERT INTO dependencies (target_guid, dependency_guid, updated_at, file_size, modified_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(target_guid, dependency_guid) DO UPDATE SET
		   updated_at = excluded.updated_at,
		   file_size = excluded.file_size,
		   modified_at = excluded.modified_at`,
		e.TargetGUID, e.DependencyGUID, unixSeconds(e.UpdatedAt), e.Size, mtimeSeconds(e.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("persisting edge %s -> %s: %w", e.TargetGUID, e.DependencyGUID, err)
	}
	return nil
}
