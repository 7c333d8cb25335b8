package types

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGUID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "0123456789abcdef0123456789abcdef", true},
		{"uppercase rejected", "0123456789ABCDEF0123456789abcdef", false},
		{"too short", "0123456789abcdef", false},
		{"too long", "0123456789abcdef0123456789abcdef0", false},
		{"non hex", "0123456789abcdef0123456789abcdeg", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGUID(tt.in))
		})
	}
}

func TestFingerprintOf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.asset")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	fi, err := os.Stat(path)
	require.NoError(t, err)

	fp, ok := FingerprintOf(fi)
	require.True(t, ok)
	assert.Equal(t, int64(5), fp.Size)
	assert.Equal(t, mtime.Truncate(time.Second), fp.ModifiedAt)
	assert.True(t, fp.Equal(Fingerprint{Size: 5, ModifiedAt: mtime}))
	assert.False(t, fp.Equal(Fingerprint{Size: 6, ModifiedAt: mtime}))
}

func TestAssetRecordScanned(t *testing.T) {
	mod := time.Unix(1000, 0).UTC()
	r := AssetRecord{Fingerprint: Fingerprint{ModifiedAt: mod}}
	assert.False(t, r.Scanned(), "zero ScannedAt")

	r.ScannedAt = mod
	assert.False(t, r.Scanned(), "scan at the same second as the edit")

	r.ScannedAt = mod.Add(time.Second)
	assert.True(t, r.Scanned())
}
