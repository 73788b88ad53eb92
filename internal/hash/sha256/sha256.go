// Package sha256 derives stable, fixed-length keys from arbitrary strings.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the lowercase hex SHA-256 digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key returns prefix followed by the digest of s, e.g. "meta:9f86d0...".
func Key(prefix, s string) string {
	return prefix + Hex([]byte(s))
}
