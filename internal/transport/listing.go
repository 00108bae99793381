package transport

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ListCommand is the remote listing invocation whose output ParseListing
// understands. Sizes in bytes, timestamps in full ISO form.
const ListCommand = "ls -l --block-size=1 --time-style=full-iso --"

// listingRe matches one `ls -l --time-style=full-iso` line:
// mode, links, owner, group, size, iso timestamp (optionally with
// fractional seconds and zone), name.
var listingRe = regexp.MustCompile(
	`^(-[a-zA-Z-]{9,})\s+(\d+)\s+(\S+)\s+(\S+)\s+(\d+)\s+` +
		`(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?)\s*([+-]\d{4})?\s+(.+)$`)

// ParseListing decodes raw listing output and extracts one Entry per
// regular-file line. Directory and link lines are ignored; malformed
// lines are skipped and counted.
func ParseListing(raw []byte) ([]Entry, int, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, 0, err
	}

	var entries []Entry
	skipped := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(strings.TrimSpace(line), "\r")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		// Only regular files carry artifacts; everything else is ignored
		// silently rather than counted as malformed.
		if line[0] != '-' {
			continue
		}

		m := listingRe.FindStringSubmatch(line)
		if m == nil {
			skipped++
			continue
		}

		size, err := strconv.ParseInt(m[5], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		mtime, err := parseListingTime(m[6], m[7], m[8])
		if err != nil {
			skipped++
			continue
		}

		entries = append(entries, Entry{Name: m[9], Size: size, ModTime: mtime})
	}
	return entries, skipped, nil
}

func parseListingTime(date, clock, zone string) (time.Time, error) {
	// Drop fractional seconds; second resolution is all the store keeps.
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock = clock[:i]
	}
	layoutClock := "15:04:05"
	if len(clock) == 5 {
		layoutClock = "15:04"
	}
	if zone != "" {
		return time.Parse("2006-01-02 "+layoutClock+" -0700", date+" "+clock+" "+zone)
	}
	return time.ParseInLocation("2006-01-02 "+layoutClock, date+" "+clock, time.UTC)
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// decodeText tries {utf-8-sig, utf-8, gbk, gb18030, latin-1} in order;
// the first clean decode wins. GB18030 stands in for the gb2312 step:
// it decodes every gb2312 byte sequence and x/text ships no plain
// gb2312 codec.
func decodeText(raw []byte) (string, error) {
	if bytes.HasPrefix(raw, utf8BOM) {
		stripped := raw[len(utf8BOM):]
		if utf8.Valid(stripped) {
			return string(stripped), nil
		}
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	if s, err := simplifiedchinese.GBK.NewDecoder().String(string(raw)); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s, nil
	}
	if s, err := simplifiedchinese.GB18030.NewDecoder().String(string(raw)); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s, nil
	}
	if s, err := charmap.ISO8859_1.NewDecoder().String(string(raw)); err == nil {
		return s, nil
	}
	return "", fmt.Errorf("listing undecodable with any supported encoding")
}
