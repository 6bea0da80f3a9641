// Package codec defines the on-disk line formats for the persisted stores.
// The shapes are a compatibility contract: seen-item files hold one
// "id,timestamp" record per line and similarity files one
// "headline|||timestamp" record per line. Reserved delimiter bytes inside
// free-text fields are percent-escaped so every value round-trips.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Header marks files written by this codec. Readers skip it (and any other
// comment line); files without it are legacy and parse the same way.
const Header = "#newswatch:v1"

type escapePair struct {
	raw     string
	escaped string
}

// Order matters: '%' must be escaped first and unescaped last.
var (
	seenEscapes     = []escapePair{{"%", "%25"}, {",", "%2C"}, {"\n", "%0A"}}
	headlineEscapes = []escapePair{{"%", "%25"}, {"|", "%7C"}, {"\n", "%0A"}}
)

func escape(s string, pairs []escapePair) string {
	for _, p := range pairs {
		s = strings.ReplaceAll(s, p.raw, p.escaped)
	}
	return s
}

func unescape(s string, pairs []escapePair) string {
	for i := len(pairs) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, pairs[i].escaped, pairs[i].raw)
	}
	return s
}

// EncodeSeen renders one seen-item record.
func EncodeSeen(id string, epochSeconds int64) string {
	return escape(id, seenEscapes) + "," + strconv.FormatInt(epochSeconds, 10)
}

// DecodeSeen parses one seen-item record. The split is on the last comma so
// legacy lines with unescaped commas in the id still parse.
func DecodeSeen(line string) (string, int64, error) {
	idx := strings.LastIndex(line, ",")
	if idx < 0 {
		return "", 0, fmt.Errorf("decode seen record: no delimiter in %q", line)
	}
	ts, err := strconv.ParseInt(line[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("decode seen record: bad timestamp in %q: %w", line, err)
	}
	return unescape(line[:idx], seenEscapes), ts, nil
}

// EncodeHeadline renders one similarity record.
func EncodeHeadline(text string, epochSeconds int64) string {
	return escape(text, headlineEscapes) + "|||" + strconv.FormatInt(epochSeconds, 10)
}

// DecodeHeadline parses one similarity record.
func DecodeHeadline(line string) (string, int64, error) {
	idx := strings.LastIndex(line, "|||")
	if idx < 0 {
		return "", 0, fmt.Errorf("decode headline record: no delimiter in %q", line)
	}
	ts, err := strconv.ParseInt(line[idx+3:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("decode headline record: bad timestamp in %q: %w", line, err)
	}
	return unescape(line[:idx], headlineEscapes), ts, nil
}

// IsComment reports whether a stored line carries no record.
func IsComment(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}
