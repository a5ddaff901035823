// Package hexid generates random hex identifiers and secrets.
package hexid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns an 8-character lowercase hex string (4 random bytes),
// short enough to type but unique enough for session ids.
func New() string {
	return random(4)
}

// Token returns a 32-character lowercase hex string (16 random bytes)
// suitable for bearer tokens.
func Token() string {
	return random(16)
}

func random(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("hexid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
