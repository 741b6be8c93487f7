package codec

import (
	"golang.org/x/crypto/sha3"
)

// Domain tags are a closed vocabulary. Every consensus preimage is
// H(tag || 0x00 || payload); two components can never collide on a
// preimage because no tag is a prefix of another up to the separator.
const (
	DomainHeader        = "header-v1"
	DomainTx            = "tx-v1"
	DomainNonce         = "nonce-v1"
	DomainDACommit      = "da-commit-v1"
	DomainAddr          = "addr-v1"
	DomainAlgPolicyRoot = "alg-policy-root-v1"

	domainNullifierPrefix = "proof-nullifier/"
)

// Sum256 is plain SHA3-256 without a domain tag; callers needing a
// consensus preimage use HashDomain instead.
func Sum256(b []byte) [32]byte {
	return sha3.Sum256(b)
}

// HashDomain returns sha3_256(tag || 0x00 || payload).
func HashDomain(tag string, payload []byte) [32]byte {
	h := sha3.New256()
	h.Write([]byte(tag))
	h.Write([]byte{0x00})
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashDomain512 is the SHA3-512 variant used only by the
// alg-policy-root-v1 domain; the committed root is the first 32 bytes.
func HashDomain512(tag string, payload []byte) [64]byte {
	h := sha3.New512()
	h.Write([]byte(tag))
	h.Write([]byte{0x00})
	h.Write(payload)
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NullifierDomain returns the domain tag for a proof kind's nullifier,
// e.g. "proof-nullifier/ai".
func NullifierDomain(kind string) string {
	return domainNullifierPrefix + kind
}

// Nullifier derives the replay-prevention digest for a proof body.
func Nullifier(kind string, body []byte) [32]byte {
	return HashDomain(NullifierDomain(kind), body)
}
