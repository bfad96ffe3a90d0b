package store

import (
	"crypto/rand"
)

const referenceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const referenceLength = 16

// NewReference generates a fresh 16-character lowercase alphanumeric
// reference, matching the ^[a-z0-9]{16}$ shape required of Feed references.
func NewReference() (string, error) {
	buf := make([]byte, referenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, referenceLength)
	for i, b := range buf {
		out[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return string(out), nil
}
