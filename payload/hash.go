package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a payload digest.
type Hash []byte

// String returns the lowercase hex form used as index key in all stores.
func (h Hash) String() string {
	return hex.EncodeToString(h)
}

// Hasher computes canonical payload hashes.
type Hasher interface {
	Hash(p Payload) (Hash, error)
}

// hashDomain separates payload hashes from any other digest computed over the same bytes. The
// version suffix allows migrating the algorithm without silently mixing old and new keys.
const hashDomain = "dispatch/payload/v1\x00"

type sha256Hasher struct{}

// DefaultHasher hashes the canonical JSON form of a payload with SHA-256.
var DefaultHasher Hasher = sha256Hasher{}

func (sha256Hasher) Hash(p Payload) (Hash, error) {
	if p == nil {
		p = Payload{}
	}

	b, err := MarshalCanonical(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write(b)

	return h.Sum(nil), nil
}

// HashString is a convenience wrapper returning the hex form of the hash of p.
func HashString(h Hasher, p Payload) (string, error) {
	sum, err := h.Hash(p)
	if err != nil {
		return "", err
	}

	return sum.String(), nil
}
