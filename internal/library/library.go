// Package library reads the host editor's companion metadata: the ".meta"
// file next to every asset, and the reverse index kept under
// Library/metadata/<first two hex chars>/<guid>.info.
package library

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

const (
	metaExt     = ".meta"
	infoExt     = ".info"
	guidKey     = "\nguid: "
	pathKey     = "\npath: "
	builtinDir  = "00"
	builtinTail = "00000000000000"
)

// Reader resolves identifiers and paths from metadata files under a project
// root. All paths it accepts and returns are project-relative and
// slash-separated. Reader holds no cache; callers memoise.
type Reader struct {
	root       string
	libraryDir string
	log        logrus.FieldLogger
}

// NewReader returns a Reader for the project at root. libraryDir is relative
// to root.
func NewReader(root, libraryDir string, log logrus.FieldLogger) *Reader {
	if libraryDir == "" {
		libraryDir = types.DefaultLibraryDir
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reader{root: root, libraryDir: libraryDir, log: log}
}

// Abs joins a project-relative path with the project root.
func (r *Reader) Abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// GUIDFromMeta reads the identifier from <path>.meta. Returns ErrNotFound
// when the companion file is missing or carries no valid identifier.
func (r *Reader) GUIDFromMeta(rel string) (string, error) {
	content, err := os.ReadFile(r.Abs(rel) + metaExt)
	if errors.Is(err, fs.ErrNotExist) {
		r.log.WithField("path", rel).Debug("companion metadata file does not exist")
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading metadata for %s: %w", rel, err)
	}
	guid, ok := ParseMetaGUID(content)
	if !ok {
		r.log.WithField("path", rel).Debug("no identifier in companion metadata file")
		return "", types.ErrNotFound
	}
	return guid, nil
}

// PathFromLibrary reads the asset path recorded for guid in the reverse
// metadata index. Returns ErrNotFound when the entry is missing or empty.
func (r *Reader) PathFromLibrary(guid string) (string, error) {
	if !types.IsGUID(guid) {
		return "", types.ErrInvalidGUID
	}
	content, err := os.ReadFile(r.infoPath(guid))
	if errors.Is(err, fs.ErrNotExist) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading library entry for %s: %w", guid, err)
	}
	p, ok := ParseInfoPath(content)
	if !ok {
		return "", types.ErrNotFound
	}
	return p, nil
}

// Builtins scans Library/metadata/00 for entries whose identifier ends in
// fourteen zeros and returns a path to identifier map. Such entries describe
// builtin resources that have no companion .meta file. A missing directory
// yields an empty map.
func (r *Reader) Builtins() (map[string]string, error) {
	dir := filepath.Join(r.root, r.libraryDir, "metadata", builtinDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing builtin metadata: %w", err)
	}

	out := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, builtinTail+infoExt) {
			continue
		}
		guid := strings.TrimSuffix(name, infoExt)
		if len(guid) != types.GUIDLength {
			continue
		}
		p, err := r.PathFromLibrary(guid)
		if err != nil {
			r.log.WithError(err).WithField("guid", guid).Debug("skipping builtin entry")
			continue
		}
		out[p] = guid
	}
	return out, nil
}

func (r *Reader) infoPath(guid string) string {
	return filepath.Join(r.root, r.libraryDir, "metadata", guid[:2], guid+infoExt)
}

// ParseMetaGUID extracts the value of the "guid: " line. The value must be
// exactly 32 characters after trimming and the line must be newline
// terminated.
func ParseMetaGUID(content []byte) (string, bool) {
	v, ok := lineValue(content, guidKey)
	if !ok || len(v) != types.GUIDLength {
		return "", false
	}
	return v, true
}

// ParseInfoPath extracts the value of the "path: " line.
func ParseInfoPath(content []byte) (string, bool) {
	v, ok := lineValue(content, pathKey)
	if !ok || v == "" {
		return "", false
	}
	return path.Clean(v), true
}

func lineValue(content []byte, key string) (string, bool) {
	i := bytes.Index(content, []byte(key))
	if i < 0 {
		return "", false
	}
	begin := i + len(key)
	j := bytes.IndexByte(content[begin:], '\n')
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(string(content[begin : begin+j])), true
}
