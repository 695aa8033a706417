package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// PhoneDigest returns a stable, non-reversible key fragment for a phone number
// so raw numbers never appear in cache keys.
func PhoneDigest(phone string) string {
	sum := blake2b.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:16])
}
