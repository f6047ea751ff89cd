package utils // package utils provides helpers for opaque tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of tokens handed out by NewOpaqueToken.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns a hex-encoded random token of OpaqueTokenBytes.
// Only its HashToken digest is ever persisted.
func NewOpaqueToken() (string, error) {
	return randomHex(OpaqueTokenBytes)
}

// HashToken returns the SHA-256 hex digest of a raw token.  Storing only
// the digest means a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns n bytes of cryptographically secure random data,
// hex-encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
