package testutil

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Blake3Hex returns the BLAKE3-256 digest of data as a lowercase hex string.
// Matches the hash format reported in file descriptors.
func Blake3Hex(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
