package security

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

const sessionIDBytes = 32

// NewSessionID returns an unguessable session identifier: 256 random bits, base58 encoded.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}
