package analysis

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"solarscan/internal/types"
)

// Fingerprint derives the deduplication key for a request. Addresses that
// differ only in case or whitespace share a fingerprint; building types never
// do.
func Fingerprint(address string, bt types.BuildingType) string {
	sum := blake2b.Sum256([]byte(types.NormalizeAddress(address) + "\x00" + string(bt)))
	return hex.EncodeToString(sum[:])
}
