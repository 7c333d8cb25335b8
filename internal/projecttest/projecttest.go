// Package projecttest builds throwaway game project trees for tests: assets
// with companion .meta files, reverse metadata index entries and file
// timestamps.
package projecttest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Header is the document prelude the scanner accepts.
const Header = "%YAML 1.1\n%TAG !u! tag:unity3d.com,2011:\n"

// Project is a project root under t.TempDir.
type Project struct {
	t    *testing.T
	Root string
}

// New creates an empty project with an Assets directory.
func New(t *testing.T) *Project {
	t.Helper()
	p := &Project{t: t, Root: t.TempDir()}
	p.MkdirAll("Assets")
	return p
}

// Abs returns the absolute location of a project-relative path.
func (p *Project) Abs(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// MkdirAll creates a project-relative directory.
func (p *Project) MkdirAll(rel string) {
	p.t.Helper()
	if err := os.MkdirAll(p.Abs(rel), 0o755); err != nil {
		p.t.Fatalf("mkdir %s: %v", rel, err)
	}
}

// WriteFile writes content to a project-relative path, creating parents.
func (p *Project) WriteFile(rel, content string) {
	p.t.Helper()
	abs := p.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		p.t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		p.t.Fatalf("write %s: %v", rel, err)
	}
}

// WriteMeta writes the companion metadata file carrying guid.
func (p *Project) WriteMeta(rel, guid string) {
	p.t.Helper()
	p.WriteFile(rel+".meta", MetaContent(guid))
}

// WriteAsset writes a document asset whose body mentions refs, plus its
// companion metadata file.
func (p *Project) WriteAsset(rel, guid string, refs ...string) {
	p.t.Helper()
	p.WriteFile(rel, Document(refs...))
	p.WriteMeta(rel, guid)
}

// WriteInfo writes the reverse metadata index entry for guid.
func (p *Project) WriteInfo(guid, assetPath string) {
	p.t.Helper()
	rel := fmt.Sprintf("Library/metadata/%s/%s.info", guid[:2], guid)
	p.WriteFile(rel, fmt.Sprintf("--- !u!1 &1\nInfo:\npath: %s\n  type: 2\n", assetPath))
}

// Remove deletes a project-relative path.
func (p *Project) Remove(rel string) {
	p.t.Helper()
	if err := os.RemoveAll(p.Abs(rel)); err != nil {
		p.t.Fatalf("remove %s: %v", rel, err)
	}
}

// Chtimes sets both timestamps of a project-relative path.
func (p *Project) Chtimes(rel string, t time.Time) {
	p.t.Helper()
	if err := os.Chtimes(p.Abs(rel), t, t); err != nil {
		p.t.Fatalf("chtimes %s: %v", rel, err)
	}
}

// Age moves the modification time of rel d into the past.
func (p *Project) Age(rel string, d time.Duration) {
	p.t.Helper()
	p.Chtimes(rel, time.Now().Add(-d))
}

// MetaContent returns a minimal companion metadata file for guid.
func MetaContent(guid string) string {
	return "fileFormatVersion: 2\nguid: " + guid + "\nNativeFormatImporter:\n  mainObjectFileID: 0\n"
}

// Document returns a scannable document that references each guid.
func Document(refs ...string) string {
	s := Header + "--- !u!114 &11400000\nMonoBehaviour:\n  m_Name: fixture\n"
	for i, g := range refs {
		s += fmt.Sprintf("  ref%d: {fileID: 11400000, guid: %s, type: 2}\n", i, g)
	}
	return s
}
