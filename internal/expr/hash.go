package expr

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainExpr  = "strata/expr/v1"
	DomainModel = "strata/model/v1"
	DomainTrace = "strata/trace/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content-addressed identity of a tree from its
// canonical rendering. Structurally identical trees hash identically
// across processes and platforms.
func Hash(n Node) string {
	return HashWithDomain(DomainExpr, []byte(Render(n)))
}
