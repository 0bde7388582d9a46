package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for future algorithm changes.
const (
	DomainContact = "lifelog/contact/v1"
	DomainBook    = "lifelog/book/v1"
	DomainEvent   = "lifelog/event/v1"
)

// Hash computes SHA-256 over domain + 0x00 + data.
// The null byte keeps the domain/data boundary unambiguous.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentID hashes the canonical JSON encoding of v under domain.
func ContentID(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content id (%s): %w", domain, err)
	}
	return Hash(domain, canonical), nil
}
