package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns a 16-character prefix of Sum, enough for
// content-addressed filenames and dedup keys.
func Short(data []byte) string {
	return Sum(data)[:16]
}
