// Package remap rewrites identifier references inside text asset documents:
// replacing one identifier with another (optionally remapping sub-object
// file ids), removing a reference, and deriving file id tables from two
// model metadata files.
package remap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/assetref/internal/minyaml"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// DocumentTag must appear in the head of a document before it is rewritten.
const DocumentTag = "%TAG !u! tag:unity3d.com,2011:"

const (
	headSize     = 64
	rootNodeName = "//RootNode"
	nullRef      = "{fileID: 0}"
)

// skippedExtensions are never rewritten even when their head matches.
var skippedExtensions = map[string]bool{
	".fbx":    true,
	".png":    true,
	".cs":     true,
	".shader": true,
}

// FileIDMap pairs the sub-object file ids of two model metadata files by
// recycle name. Only ids that differ are returned; the result is nil when
// nothing needs remapping or either file has no table.
func FileIDMap(srcMeta, destMeta string) (map[int64]int64, error) {
	src, err := recycleNames(srcMeta)
	if err != nil {
		return nil, err
	}
	dest, err := recycleNames(destMeta)
	if err != nil {
		return nil, err
	}
	if src == nil || dest == nil {
		return nil, nil
	}

	byName := make(map[string]int64, len(dest))
	for id, name := range dest {
		byName[name] = id
	}
	out := make(map[int64]int64)
	for id, name := range src {
		if name == rootNodeName {
			continue
		}
		if to, ok := byName[name]; ok && to != id {
			out[id] = to
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func recycleNames(metaPath string) (map[int64]string, error) {
	doc, err := minyaml.ParseFile(metaPath)
	if err != nil {
		return nil, err
	}
	table := doc.Get("ModelImporter").Get("fileIDToRecycleName").Strings()
	if table == nil {
		return nil, nil
	}
	out := make(map[int64]string, len(table))
	for k, v := range table {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("file id %q in %s: %w", k, metaPath, err)
		}
		out[id] = v
	}
	return out, nil
}

// ReplaceIdentifiers replaces every occurrence of before with after in the
// document at path. References of the form {fileID: N, guid: before, type: T}
// have N translated through fileIDs when it has an entry. It reports whether
// the file changed.
func ReplaceIdentifiers(path, before, after string, fileIDs map[int64]int64) (bool, error) {
	if !types.IsGUID(before) || !types.IsGUID(after) {
		return false, types.ErrInvalidGUID
	}
	return Rewrite(path, func(body string) string {
		if len(fileIDs) > 0 {
			re := regexp.MustCompile(`\{fileID: (-?\d+), guid: ` + before + `, type: (\d+)\}`)
			body = re.ReplaceAllStringFunc(body, func(m string) string {
				sub := re.FindStringSubmatch(m)
				id, err := strconv.ParseInt(sub[1], 10, 64)
				if err != nil {
					return m
				}
				if to, ok := fileIDs[id]; ok {
					id = to
				}
				return fmt.Sprintf("{fileID: %d, guid: %s, type: %s}", id, after, sub[2])
			})
		}
		return strings.ReplaceAll(body, before, after)
	})
}

// RemoveIdentifier replaces each inline reference containing guid with a
// null reference. It reports whether the file changed.
func RemoveIdentifier(path, guid string) (bool, error) {
	if !types.IsGUID(guid) {
		return false, types.ErrInvalidGUID
	}
	return Rewrite(path, func(body string) string {
		for {
			i := strings.Index(body, guid)
			if i < 0 {
				break
			}
			left := strings.LastIndexByte(body[:i], '{')
			right := strings.IndexByte(body[i:], '}')
			if left < 0 || right < 0 {
				break
			}
			body = body[:left] + nullRef + body[i+right+1:]
		}
		return body
	})
}

// Rewrite applies fn to the document at path and writes the result back
// when it differs. Files with a skipped extension or without DocumentTag in
// their head are left alone.
func Rewrite(path string, fn func(string) string) (bool, error) {
	if skippedExtensions[strings.ToLower(filepath.Ext(path))] {
		return false, nil
	}
	ok, err := isDocument(path)
	if err != nil || !ok {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	body := fn(string(data))
	if body == string(data) {
		return false, nil
	}
	if err := writeAtomic(path, []byte(body)); err != nil {
		return false, err
	}
	return true, nil
}

func isDocument(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	return bytes.Contains(head[:n], []byte(DocumentTag)), nil
}

// writeAtomic replaces path with data through a temp file in the same
// directory, keeping the original permissions.
func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".remap-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
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
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
