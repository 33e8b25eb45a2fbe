// Package signature derives the key that identifies one incremental query stream.
package signature

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/cetus/internal/models"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

// Of returns the signature of (index, query). The query is hashed exactly as
// typed: two queries that differ only in whitespace or case get different
// signatures.
func Of(index models.Index, query string) string {
	h := sha256.Sum256([]byte(string(index) + ":" + query))
	return hex.EncodeToString(h[:])[:Length]
}

// Filename returns the marker file name for (index, query).
func Filename(index models.Index, query string) string {
	return string(index) + "_" + Of(index, query) + ".json"
}
