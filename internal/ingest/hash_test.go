package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"class A {}\n", "class A {}\n"},
		{"class A {}\r\n", "class A {}\n"},
		{"a\r\nb\r\nc", "a\nb\nc"},
		{"", ""},
		{"lone\rcarriage", "lone\rcarriage"}, // bare CR is left alone
	}
	for _, tc := range cases {
		if got := string(Normalize([]byte(tc.in))); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestHashContent_PlatformIndependent is the reason normalization exists:
// the same source with CRLF and LF endings must hash identically.
func TestHashContent_PlatformIndependent(t *testing.T) {
	unix := Normalize([]byte("class A {\n}\n"))
	windows := Normalize([]byte("class A {\r\n}\r\n"))
	if HashContent(unix) != HashContent(windows) {
		t.Error("CRLF and LF content must dedup to one hash")
	}

	sum := sha256.Sum256(unix)
	if HashContent(unix) != hex.EncodeToString(sum[:]) {
		t.Error("hash is not hex sha-256 of normalized bytes")
	}
}

func TestLineCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one line no newline", 1},
		{"one line\n", 1},
		{"a\nb\n", 2},
		{"a\nb", 2},
		{"\n", 1},
	}
	for _, tc := range cases {
		if got := LineCount([]byte(tc.in)); got != tc.want {
			t.Errorf("LineCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
