// Package index implements the identifier store and the dependency edge
// store on top of the SQLite cache. It answers path to identifier and
// identifier to path lookups, validates cached facts against the file's
// current fingerprint, and garbage collects stale dependency edges on read.
package index

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/internal/sqlite"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// MetadataSource reads identifiers and paths from the host's metadata
// files. *library.Reader implements it.
type MetadataSource interface {
	GUIDFromMeta(path string) (string, error)
	PathFromLibrary(guid string) (string, error)
	Builtins() (map[string]string, error)
}

// Index is safe for concurrent use.
type Index struct {
	store        *sqlite.Store
	meta         MetadataSource
	root         string
	settingsRoot string
	log          logrus.FieldLogger

	builtinOnce sync.Once
	builtins    map[string]string
}

// New returns an Index over store. Paths are resolved against
// cfg.ProjectRoot; cfg.SettingsRoot names the directory whose files fall back
// to the builtin identifier table.
func New(store *sqlite.Store, meta MetadataSource, cfg types.Config, log logrus.FieldLogger) *Index {
	if log == nil {
		log = logrus.StandardLogger()
	}
	settings := cfg.SettingsRoot
	if settings == "" {
		settings = types.DefaultSettingsRoot
	}
	return &Index{
		store:        store,
		meta:         meta,
		root:         cfg.ProjectRoot,
		settingsRoot: settings,
		log:          log,
	}
}

// Store returns the underlying cache.
func (ix *Index) Store() *sqlite.Store {
	return ix.store
}

// Abs joins a project-relative path with the project root.
func (ix *Index) Abs(rel string) string {
	return filepath.Join(ix.root, filepath.FromSlash(rel))
}

// Stat returns the fingerprint of a project-relative file. The second result
// is false when the path is missing, not a regular file, or too large to
// track.
func (ix *Index) Stat(rel string) (types.Fingerprint, bool) {
	fi, err := os.Stat(ix.Abs(rel))
	if err != nil || !fi.Mode().IsRegular() {
		return types.Fingerprint{}, false
	}
	return types.FingerprintOf(fi)
}

// ResolveIdentifier returns the identifier of the asset at path. A cached
// record is returned as is unless validate is set, in which case a record
// whose fingerprint no longer matches the file is deleted and the identifier
// is read again from the companion metadata. Returns ErrNotFound when no
// identifier can be determined.
func (ix *Index) ResolveIdentifier(p string, validate bool) (string, error) {
	if err := checkPath(p); err != nil {
		return "", err
	}

	rec, err := ix.store.AssetByPath(p)
	switch {
	case err == nil:
		if !validate {
			return rec.GUID, nil
		}
		if fp, ok := ix.Stat(p); ok && fp.Equal(rec.Fingerprint) {
			return rec.GUID, nil
		}
		ix.log.WithFields(logrus.Fields{"path": p, "guid": rec.GUID}).Debug("dropping stale asset record")
		if err := ix.store.DeleteAsset(rec.GUID); err != nil {
			return "", err
		}
	case !errors.Is(err, types.ErrNotFound):
		return "", err
	}

	guid, err := ix.readGUID(p)
	if err != nil {
		return "", err
	}
	if err := ix.putRecord(p, guid); err != nil {
		return "", err
	}
	return guid, nil
}

// ResolvePath returns the project-relative path of the asset with the given
// identifier. With validate, a stale record is deleted; when the cached file
// still exists its path is kept, otherwise the path is read from the reverse
// metadata index. Returns ErrNotFound when no path can be determined.
func (ix *Index) ResolvePath(guid string, validate bool) (string, error) {
	if !types.IsGUID(guid) {
		return "", types.ErrInvalidGUID
	}

	var p string
	rec, err := ix.store.AssetByGUID(guid)
	switch {
	case err == nil:
		if !validate {
			return rec.Path, nil
		}
		fi, statErr := os.Stat(ix.Abs(rec.Path))
		exists := statErr == nil && fi.Mode().IsRegular()
		if exists {
			if fp, ok := types.FingerprintOf(fi); ok && fp.Equal(rec.Fingerprint) {
				return rec.Path, nil
			}
			p = rec.Path
		}
		ix.log.WithFields(logrus.Fields{"path": rec.Path, "guid": guid}).Debug("dropping stale asset record")
		if err := ix.store.DeleteAsset(guid); err != nil {
			return "", err
		}
	case !errors.Is(err, types.ErrNotFound):
		return "", err
	}

	if p == "" {
		p, err = ix.meta.PathFromLibrary(guid)
		if err != nil {
			return "", err
		}
	}
	if err := ix.putRecord(p, guid); err != nil {
		return "", err
	}
	return p, nil
}

// GetReferences returns the sorted paths of every asset recorded as
// referencing the asset at path. Edges whose referrer cannot be resolved, is
// gone, or has changed since the edge was written are deleted and left out.
func (ix *Index) GetReferences(p string) ([]string, error) {
	guid, err := ix.ResolveIdentifier(p, true)
	if err != nil {
		return nil, err
	}
	edges, err := ix.store.EdgesTo(guid)
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, e := range edges {
		ref, err := ix.ResolvePath(e.TargetGUID, true)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			if fp, ok := ix.Stat(ref); ok && fp.Equal(e.Fingerprint) {
				result = append(result, ref)
				continue
			}
		}
		ix.log.WithFields(logrus.Fields{"guid": e.TargetGUID, "dependency": guid}).Debug("dropping stale edge")
		if err := ix.store.DeleteEdge(e.ID); err != nil {
			return nil, err
		}
	}
	sort.Strings(result)
	return result, nil
}

// Dependencies returns the identifiers the asset at path was last seen
// referencing. Edges are not validated.
func (ix *Index) Dependencies(p string) ([]string, error) {
	guid, err := ix.ResolveIdentifier(p, false)
	if err != nil {
		return nil, err
	}
	edges, err := ix.store.EdgesFrom(guid)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.DependencyGUID)
	}
	return out, nil
}

// InsertEdge records that the asset at target references the asset at
// dependency, stamped with the target's current fingerprint. It is a no-op
// when either identifier is unknown or the target is missing or untrackable.
func (ix *Index) InsertEdge(target, dependency string) error {
	fp, ok := ix.Stat(target)
	if !ok {
		return nil
	}
	targetGUID, err := ix.ResolveIdentifier(target, false)
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidPath) {
		return nil
	}
	if err != nil {
		return err
	}
	depGUID, err := ix.ResolveIdentifier(dependency, false)
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidPath) {
		return nil
	}
	if err != nil {
		return err
	}
	if targetGUID == depGUID {
		return nil
	}
	return ix.store.PutEdge(types.DependencyEdge{
		TargetGUID:     targetGUID,
		DependencyGUID: depGUID,
		UpdatedAt:      time.Now(),
		Fingerprint:    fp,
	})
}

// Truncate clears every record, edge and meta value.
func (ix *Index) Truncate() error {
	return ix.store.Truncate()
}

// IsSettingsPath reports whether p lies under the settings root.
func (ix *Index) IsSettingsPath(p string) bool {
	return strings.HasPrefix(p, ix.settingsRoot+"/")
}

func (ix *Index) readGUID(p string) (string, error) {
	guid, err := ix.meta.GUIDFromMeta(p)
	if errors.Is(err, types.ErrNotFound) && ix.IsSettingsPath(p) {
		return ix.builtinGUID(p)
	}
	return guid, err
}

// builtinGUID looks p up in the builtin table. The table is built on first
// use and every entry is written to the cache at that time.
func (ix *Index) builtinGUID(p string) (string, error) {
	ix.builtinOnce.Do(func() {
		m, err := ix.meta.Builtins()
		if err != nil {
			ix.log.WithError(err).Warn("reading builtin identifiers")
			m = map[string]string{}
		}
		ix.builtins = m
		for bp, guid := range m {
			if err := ix.putRecord(bp, guid); err != nil {
				ix.log.WithError(err).WithField("path", bp).Warn("caching builtin identifier")
			}
		}
	})
	guid, ok := ix.builtins[p]
	if !ok {
		return "", types.ErrNotFound
	}
	return guid, nil
}

// putRecord caches the pair with the file's current fingerprint. Missing or
// untrackable files are skipped silently.
func (ix *Index) putRecord(p, guid string) error {
	fp, ok := ix.Stat(p)
	if !ok {
		return nil
	}
	err := ix.store.PutAsset(types.AssetRecord{
		GUID:        guid,
		Path:        p,
		CreatedAt:   time.Now(),
		Fingerprint: fp,
	})
	if err != nil {
		return fmt.Errorf("caching %s: %w", p, err)
	}
	return nil
}

// checkPath rejects paths that are not project-relative and slash-separated.
func checkPath(p string) error {
	if p == "" || path.IsAbs(p) || filepath.IsAbs(p) || strings.Contains(p, `\`) {
		return types.ErrInvalidPath
	}
	if c := path.Clean(p); c != p || c == ".." || strings.HasPrefix(c, "../") {
		return types.ErrInvalidPath
	}
	return nil
}
