// Package slug generates the public, unguessable invitation identifiers used
// in shareable URLs.
package slug

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Bytes of entropy per slug. 16 bytes (128 bits) makes guessing infeasible
// and collisions negligible; the store's unique constraint is the backstop
// and callers regenerate on conflict.
const entropyBytes = 16

// New returns a URL-safe random slug.
func New() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
