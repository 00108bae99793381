package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize rewrites CRLF line endings to LF. Hashing runs over the
// normalized bytes so the same source decompiled on different platforms
// dedups to one version.
func Normalize(content []byte) []byte {
	if !strings.Contains(string(content), "\r\n") {
		return content
	}
	return []byte(strings.ReplaceAll(string(content), "\r\n", "\n"))
}

// HashContent returns the hex sha-256 of already-normalized content.
func HashContent(normalized []byte) string {
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}

// LineCount counts lines in normalized content: the number of newlines,
// plus one when the content is non-empty and does not end in a newline.
// Empty content has zero lines.
func LineCount(normalized []byte) int {
	if len(normalized) == 0 {
		return 0
	}
	n := strings.Count(string(normalized), "\n")
	if normalized[len(normalized)-1] != '\n' {
		n++
	}
	return n
}
