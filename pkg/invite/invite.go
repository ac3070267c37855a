// Package invite generates the short secret codes that gate membership in
// private packs.
package invite

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

const (
	// CodeLength is the number of characters in a generated code.
	CodeLength = 6

	// alphabet omits 0/O, 1/I/L and lowercase so codes survive being read
	// aloud over an intercom or typed from a tank bag.
	alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// Generate returns a new random invite code. Uniqueness is the caller's
// concern; the code space (31^6, ~887M) keeps collisions rare enough that a
// retry against a unique index is sufficient.
func Generate() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invite: read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Match compares a submitted code against the stored one in constant time.
func Match(stored, submitted string) bool {
	if len(stored) == 0 || len(stored) != len(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
