package types

import (
	"math"
	"os"
	"time"
)

// GUIDLength is the number of lowercase hex characters in an identifier.
const GUIDLength = 32

// MaxTrackedSize is the largest file size recorded in the cache. Larger
// files are not trackable.
const MaxTrackedSize = math.MaxInt32

// Fingerprint is the (size, mtime) pair used to decide whether a cached fact
// about a file is still valid. ModifiedAt is truncated to whole seconds, UTC.
type Fingerprint struct {
	Size       int64
	ModifiedAt time.Time
}

// FingerprintOf builds the fingerprint of fi. The second result is false when
// the file is too large to track.
func FingerprintOf(fi os.FileInfo) (Fingerprint, bool) {
	if fi.Size() > MaxTrackedSize {
		return Fingerprint{}, false
	}
	return Fingerprint{
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime().UTC().Truncate(time.Second),
	}, true
}

// Equal reports whether both fingerprints describe the same file state.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Size == o.Size && f.ModifiedAt.Unix() == o.ModifiedAt.Unix()
}

// AssetRecord maps one identifier to one project-relative path together with
// the fingerprint observed when the record was written.
type AssetRecord struct {
	// GUID is the 32-character identifier from the companion metadata file.
	GUID string

	// Path is project-relative and slash-separated.
	Path string

	// CreatedAt is when the record was first written.
	CreatedAt time.Time

	// ScannedAt is when the scanner last extracted edges from the file. Zero
	// means never scanned.
	ScannedAt time.Time

	// Fingerprint of the file when the record was written.
	Fingerprint
}

// Scanned reports whether the file was scanned after its last modification.
func (r AssetRecord) Scanned() bool {
	return !r.ScannedAt.IsZero() && r.ScannedAt.After(r.ModifiedAt)
}

// DependencyEdge states that the target asset's content mentions the
// dependency's identifier. The fingerprint is the target's at write time.
type DependencyEdge struct {
	// ID is the row identifier, stable across updates of the same pair.
	ID int64

	// TargetGUID is the referencing asset.
	TargetGUID string

	// DependencyGUID is the referenced asset.
	DependencyGUID string

	// UpdatedAt is when the edge was last written.
	UpdatedAt time.Time

	// Fingerprint of the target file when the edge was written.
	Fingerprint
}

// IsGUID reports whether s is exactly 32 lowercase hex characters.
func IsGUID(s string) bool {
	if len(s) != GUIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
