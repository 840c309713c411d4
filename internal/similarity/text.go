// Package similarity holds the stateless comparison strategies applied to the
// two fetched bodies of a pair: exact text equality and pixel-level raster diff.
package similarity

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// TextResult is the outcome of a text comparison.
type TextResult struct {
	ExactMatch bool
	Similarity float64
}

// CompareText decodes both buffers as UTF-8 and tests exact equality.
// Similarity is binary: 100 on a match, 0 otherwise.
func CompareText(b1, b2 []byte) TextResult {
	if bytes.Equal(b1, b2) || decodeUTF8(b1) == decodeUTF8(b2) {
		return TextResult{ExactMatch: true, Similarity: 100}
	}
	return TextResult{}
}

// decodeUTF8 replaces each invalid byte with U+FFFD, the way a lenient
// decoder renders a body.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
