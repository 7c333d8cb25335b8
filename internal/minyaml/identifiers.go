// Package minyaml reads the small subset of the host's text serialization
// format that the index needs: 32-character identifier extraction from raw
// bytes, the document signature check, and an indentation-based structural
// parse of companion metadata files.
package minyaml

import "bytes"

// IdentifierLength is the number of lowercase hex characters in an
// identifier.
const IdentifierLength = 32

var bom = []byte{0xef, 0xbb, 0xbf}

// ExtractIdentifiers returns every identifier in buf: maximal runs of
// lowercase hex characters that are exactly 32 long. Longer or shorter runs
// are ignored. Each identifier appears once, in order of first appearance.
func ExtractIdentifiers(buf []byte) []string {
	return AppendIdentifiers(nil, buf)
}

// AppendIdentifiers appends the identifiers of buf to dst, skipping any
// already present in the appended part, and returns the extended slice.
// Passing dst[:0] reuses its storage across calls.
func AppendIdentifiers(dst []string, buf []byte) []string {
	start := len(dst)
	var seen map[string]struct{}

	for i := 0; i < len(buf); {
		if !isHex(buf[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(buf) && isHex(buf[j]) {
			j++
		}
		if j-i == IdentifierLength {
			if seen == nil {
				seen = make(map[string]struct{}, len(dst)-start+8)
				for _, g := range dst[start:] {
					seen[g] = struct{}{}
				}
			}
			id := string(buf[i:j])
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				dst = append(dst, id)
			}
		}
		i = j
	}
	return dst
}

// HasSignature reports whether head starts with sig once any leading
// byte-order-mark bytes are skipped.
func HasSignature(head []byte, sig string) bool {
	return bytes.HasPrefix(TrimBOM(head), []byte(sig))
}

// TrimBOM strips leading UTF-8 byte-order-mark bytes. Stray individual
// mark bytes are stripped too.
func TrimBOM(b []byte) []byte {
	i := 0
	for i < len(b) && bytes.IndexByte(bom, b[i]) >= 0 {
		i++
	}
	return b[i:]
}

func isHex(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f')
}
