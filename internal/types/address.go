package types

import "strings"

// NormalizeAddress canonicalizes free-form address input for cache keys and
// fingerprints: surrounding whitespace trimmed, inner runs collapsed to a
// single space, letters lower-cased.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
