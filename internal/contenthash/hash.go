// Package contenthash fingerprints embeddable text so stale embeddings can be detected.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of every digest returned by Hash.
const Size = sha256.Size * 2

// Hash returns the lowercase hex SHA-256 digest of text.
// The empty string is a valid input.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsStale reports whether an embedding computed for stored must be regenerated for current.
// An empty stored digest means the item was never embedded.
func IsStale(stored, current string) bool {
	if stored == "" {
		return true
	}
	return Hash(current) != stored
}
