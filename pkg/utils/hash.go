package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateBytesSHA256 computes the SHA-256 hash of an in-memory payload.
func CalculateBytesSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
