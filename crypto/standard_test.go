package crypto

import (
	"testing"

	"github.com/cloudflare/circl/sign/schemes"
)

func TestSHA3Digests(t *testing.T) {
	p := StandardProvider{}
	a := p.SHA3_256([]byte("animica"))
	b := p.SHA3_256([]byte("animica"))
	if a != b {
		t.Fatalf("SHA3-256 not deterministic")
	}
	if p.SHA3_256([]byte("x")) == p.SHA3_256([]byte("y")) {
		t.Fatalf("collision on trivial inputs")
	}
	if p.SHA3_512([]byte("x")) == p.SHA3_512([]byte("y")) {
		t.Fatalf("collision on trivial inputs (512)")
	}
}

func TestVerifySignature_MLDSA87(t *testing.T) {
	scheme := schemes.ByName("ML-DSA-87")
	seed := make([]byte, scheme.SeedSize())
	pk, sk := scheme.DeriveKey(seed)
	pub, err := pk.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal pk: %v", err)
	}

	var digest [32]byte
	copy(digest[:], []byte("0123456789abcdef0123456789abcdef"))
	sig := scheme.Sign(sk, digest[:], nil)

	p := StandardProvider{}
	if !p.VerifySignature(AlgMLDSA87, pub, sig, digest) {
		t.Fatalf("valid signature rejected")
	}

	bad := append([]byte(nil), sig...)
	bad[0] ^= 0x01
	if p.VerifySignature(AlgMLDSA87, pub, bad, digest) {
		t.Fatalf("tampered signature accepted")
	}

	var otherDigest [32]byte
	otherDigest[0] = 0xff
	if p.VerifySignature(AlgMLDSA87, pub, sig, otherDigest) {
		t.Fatalf("signature accepted for wrong digest")
	}
}

func TestVerifySignature_SizeGates(t *testing.T) {
	p := StandardProvider{}
	var digest [32]byte
	if p.VerifySignature(AlgMLDSA87, make([]byte, 10), make([]byte, MLDSA87SigBytes), digest) {
		t.Fatalf("short pubkey accepted")
	}
	if p.VerifySignature(AlgSLHDSA256s, make([]byte, SLHDSA256sPubkeyBytes), make([]byte, SLHDSA256sSigBytes+1), digest) {
		t.Fatalf("oversize signature accepted")
	}
	if p.VerifySignature(AlgID(0xbeef), make([]byte, 32), make([]byte, 32), digest) {
		t.Fatalf("unknown algorithm accepted")
	}
}

func TestKnownAlg(t *testing.T) {
	if !KnownAlg(AlgMLDSA87) || !KnownAlg(AlgSLHDSA256s) {
		t.Fatalf("known algs not recognized")
	}
	if KnownAlg(AlgID(999)) {
		t.Fatalf("unknown alg recognized")
	}
}
