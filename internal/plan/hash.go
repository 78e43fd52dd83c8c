package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPlan prefixes plan hashes. The version suffix allows the encoding
// to change without colliding with older hashes.
const DomainPlan = "sigir/plan/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a plan's canonical encoding.
// Equal graphs compiled in separate pools hash equally.
func Hash(p *Plan) (string, error) {
	data, err := Encode(p)
	if err != nil {
		return "", fmt.Errorf("plan hash: %w", err)
	}
	return hashWithDomain(DomainPlan, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(p *Plan) string {
	h, err := Hash(p)
	if err != nil {
		panic(err)
	}
	return h
}
