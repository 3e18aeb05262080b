// Package identity derives anonymous per-connection keys.
//
// The key is a one-way digest of the trusted network address (proxy address
// plus remote port) and a secret salt. It is stable for the lifetime of a
// single connection and changes on reconnect, because a new local port yields
// a new address. It is only used to track channel membership and is never
// shown to other clients.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives anonymous connection keys with a fixed secret salt.
type Hasher struct {
	salt string
}

// NewHasher creates a hasher with the given secret salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// AnonymousKey returns the hex digest for the trusted address.
func (h *Hasher) AnonymousKey(trustedAddr string) string {
	sum := sha256.Sum256([]byte(trustedAddr + "||" + h.salt))
	return hex.EncodeToString(sum[:])
}
