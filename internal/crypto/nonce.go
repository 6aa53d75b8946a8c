package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Nonce reads n bytes from r (crypto/rand when nil) and returns them base64 encoded.
func Nonce(r io.Reader, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	return B64(b), nil
}
