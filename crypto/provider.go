// Package crypto defines the narrow primitive interface the consensus
// core consumes. Post-quantum schemes are treated as black-box
// verifiers; implementations may swap in hardware or FIPS backends
// without touching consensus code.
package crypto

// AlgID identifies a signature algorithm on the wire (u16).
type AlgID uint16

const (
	// AlgMLDSA87 is ML-DSA-87 (FIPS 204, Dilithium family).
	AlgMLDSA87 AlgID = 1
	// AlgSLHDSA256s is SLH-DSA-SHAKE-256s (FIPS 205, SPHINCS+ family).
	AlgSLHDSA256s AlgID = 2
)

// Provider is the crypto surface used by consensus code.
type Provider interface {
	SHA3_256(input []byte) [32]byte
	SHA3_512(input []byte) [64]byte

	// VerifySignature verifies sig over the 32-byte digest under the
	// given algorithm. Unknown algorithms report false.
	VerifySignature(alg AlgID, pubkey []byte, sig []byte, digest [32]byte) bool
}

// KnownAlg reports whether the core recognizes alg at all. Whether an
// algorithm is *allowed* is the algorithm policy's decision, not ours.
func KnownAlg(alg AlgID) bool {
	switch alg {
	case AlgMLDSA87, AlgSLHDSA256s:
		return true
	default:
		return false
	}
}
