// Package registration canonicalizes vehicle registration identifiers.
package registration

import (
	"strings"
	"unicode"
)

// Normalize strips all whitespace from raw and uppercases the remainder. The
// result is the canonical form used as the storage key; it is deterministic,
// idempotent, and never fails. Empty input yields an empty string, which
// callers must treat as an invalid lookup key.
func Normalize(raw string) string {
	var builder strings.Builder
	builder.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		builder.WriteRune(unicode.ToUpper(r))
	}
	return builder.String()
}
