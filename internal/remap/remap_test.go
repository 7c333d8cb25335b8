package remap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

const (
	guidA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	guidB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	guidC = "cccccccccccccccccccccccccccccccc"

	header = "%YAML 1.1\n%TAG !u! tag:unity3d.com,2011:\n"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func modelMeta(entries string) string {
	return "fileFormatVersion: 2\nguid: " + guidA + "\nModelImporter:\n  serializedVersion: 19\n  fileIDToRecycleName:\n" + entries + "  materials:\n    importMaterials: 1\n"
}

func TestFileIDMap(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.fbx.meta", modelMeta(
		"    100000: //RootNode\n    100002: Body\n    100004: Head\n    4300000: Mesh\n"))
	dest := writeFile(t, dir, "dest.fbx.meta", modelMeta(
		"    100000: Body\n    100002: //RootNode\n    100004: Head\n    4300002: Mesh\n"))

	got, err := FileIDMap(src, dest)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{100002: 100000, 4300000: 4300002}, got)
}

func TestFileIDMapWithoutTable(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.meta", "fileFormatVersion: 2\nguid: "+guidA+"\n")
	dest := writeFile(t, dir, "dest.meta", modelMeta("    100000: Body\n"))

	got, err := FileIDMap(src, dest)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = FileIDMap(filepath.Join(dir, "missing.meta"), dest)
	assert.Error(t, err)
}

func TestReplaceIdentifiers(t *testing.T) {
	dir := t.TempDir()
	doc := header +
		"  m_Mesh: {fileID: 4300000, guid: " + guidA + ", type: 3}\n" +
		"  m_Other: {fileID: 100004, guid: " + guidA + ", type: 3}\n" +
		"  m_Keep: {fileID: 4300000, guid: " + guidC + ", type: 3}\n" +
		"  m_Raw: " + guidA + "\n"
	p := writeFile(t, dir, "Level.unity", doc)

	changed, err := ReplaceIdentifiers(p, guidA, guidB, map[int64]int64{4300000: 4300002})
	require.NoError(t, err)
	assert.True(t, changed)

	want := header +
		"  m_Mesh: {fileID: 4300002, guid: " + guidB + ", type: 3}\n" +
		"  m_Other: {fileID: 100004, guid: " + guidB + ", type: 3}\n" +
		"  m_Keep: {fileID: 4300000, guid: " + guidC + ", type: 3}\n" +
		"  m_Raw: " + guidB + "\n"
	assert.Equal(t, want, readFile(t, p))

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "mode kept")

	changed, err = ReplaceIdentifiers(p, guidA, guidB, nil)
	require.NoError(t, err)
	assert.False(t, changed, "nothing left to replace")
}

func TestReplaceIdentifiersRejectsBadGUID(t *testing.T) {
	p := writeFile(t, t.TempDir(), "A.asset", header)
	_, err := ReplaceIdentifiers(p, "nope", guidB, nil)
	assert.ErrorIs(t, err, types.ErrInvalidGUID)
}

func TestRemoveIdentifier(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Prefab.prefab", header+
		"  a: {fileID: 2100000, guid: "+guidA+", type: 2}\n"+
		"  b: {fileID: 2100000, guid: "+guidB+", type: 2}\n"+
		"  c: [{fileID: 11400000, guid: "+guidA+", type: 2}]\n")

	changed, err := RemoveIdentifier(p, guidA)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, header+
		"  a: {fileID: 0}\n"+
		"  b: {fileID: 2100000, guid: "+guidB+", type: 2}\n"+
		"  c: [{fileID: 0}]\n", readFile(t, p))
}

func TestRewriteSkips(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"script", "Player.cs", header + guidA},
		{"model", "Hero.FBX", header + guidA},
		{"untagged document", "Plain.asset", "%YAML 1.1\nguid: " + guidA},
		{"tag beyond head", "Late.asset", "%YAML 1.1\n" + string(make([]byte, 80)) + "%TAG !u! tag:unity3d.com,2011:\n" + guidA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.file, tt.content)
			changed, err := ReplaceIdentifiers(p, guidA, guidB, nil)
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, tt.content, readFile(t, p))
		})
	}
}

func TestRewriteMissingFile(t *testing.T) {
	_, err := RemoveIdentifier(filepath.Join(t.TempDir(), "gone.asset"), guidA)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
