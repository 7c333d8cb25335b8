package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Export record kinds.
const (
	KindAsset      = "asset"
	KindDependency = "dependency"
)

// ExportRecord is one line of a JSONL export.
type ExportRecord struct {
	Kind           string     `json:"kind"`
	GUID           string     `json:"guid,omitempty"`
	Path           string     `json:"path,omitempty"`
	ID             int64      `json:"id,omitempty"`
	TargetGUID     string     `json:"target_guid,omitempty"`
	DependencyGUID string     `json:"dependency_guid,omitempty"`
	FileSize       int64      `json:"file_size"`
	ModifiedAt     time.Time  `json:"modified_at"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	ScannedAt      *time.Time `json:"scanned_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// ExportRecords returns the asset records followed by the dependency edges.
func (s *Store) ExportRecords() ([]ExportRecord, error) {
	assets, err := s.Assets()
	if err != nil {
		return nil, err
	}
	edges, err := s.Edges()
	if err != nil {
		return nil, err
	}

	out := make([]ExportRecord, 0, len(assets)+len(edges))
	for _, a := range assets {
		r := ExportRecord{
			Kind:       KindAsset,
			GUID:       a.GUID,
			Path:       a.Path,
			FileSize:   a.Size,
			ModifiedAt: a.ModifiedAt,
			CreatedAt:  timePtr(a.CreatedAt),
			ScannedAt:  timePtr(a.ScannedAt),
		}
		out = append(out, r)
	}
	for _, e := range edges {
		out = append(out, ExportRecord{
			Kind:           KindDependency,
			ID:             e.ID,
			TargetGUID:     e.TargetGUID,
			DependencyGUID: e.DependencyGUID,
			FileSize:       e.Size,
			ModifiedAt:     e.ModifiedAt,
			UpdatedAt:      timePtr(e.UpdatedAt),
		})
	}
	return out, nil
}

// WriteJSONL writes the export to w, one JSON object per line.
func (s *Store) WriteJSONL(w io.Writer) error {
	records, err := s.ExportRecords()
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
	}
	return bw.Flush()
}

// ExportJSONL atomically writes the export to path.
func (s *Store) ExportJSONL(path string) error {
	records, err := s.ExportRecords()
	if err != nil {
		return err
	}
	lines := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		lines = append(lines, b)
	}
	return writeJSONL(path, lines)
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
