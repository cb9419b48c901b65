// Package ticker canonicalizes underlying symbols to a stable root used as a
// grouping and join key.
package ticker

import (
	"regexp"
	"strings"
)

var (
	// futures contract code: 1-3 letter root, month code letter, 1-2 digit year
	contractPattern = regexp.MustCompile(`^([A-Z]{1,3})[A-Z]\d{1,2}$`)
	rootPattern     = regexp.MustCompile(`^([A-Z]{1,3})`)
)

// Normalize collapses broker symbols to a stable root: the futures contract
// "/ESH5" becomes "ES", the options root ".SPXW" becomes "SPX", and a plain
// equity symbol like "AAPL" passes through uppercased. Only symbols carrying
// a futures ("/") or options-root (".") marker are truncated; idempotency
// follows because the truncated root carries neither marker.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	marked := strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.TrimPrefix(s, ".")
	if !marked {
		return s
	}
	if m := contractPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := rootPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
