package policy

import (
	"testing"

	"animica.dev/core/codec"
	"animica.dev/core/crypto"
)

func TestBundleRoot_Stable(t *testing.T) {
	b := Dev()
	r1, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	r2, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("root not stable")
	}

	// Any table change moves the root.
	mutated := Dev()
	mutated.GammaMicroNats++
	r3, err := mutated.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if r3 == r1 {
		t.Fatalf("mutation did not move root")
	}
}

func TestBundle_LoadRoundTrip(t *testing.T) {
	b := Dev()
	enc, err := codec.Encode(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loaded, err := LoadBundle(enc)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r1, _ := b.Root()
	r2, _ := loaded.Root()
	if r1 != r2 {
		t.Fatalf("loaded bundle root mismatch")
	}
}

func TestBundle_Validate(t *testing.T) {
	b := Dev()
	if err := b.Validate(); err != nil {
		t.Fatalf("dev bundle invalid: %v", err)
	}

	bad := Dev()
	bad.EscortQPPM = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("q=0 accepted")
	}

	bad = Dev()
	bad.Retarget.Mode = RetargetMode(9)
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown retarget mode accepted")
	}

	bad = Dev()
	bad.Retarget.ThetaMaxMicro = bad.Retarget.ThetaMinMicro - 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("inverted theta clamps accepted")
	}
}

func TestBundle_AlphaLookup(t *testing.T) {
	b := Dev()
	if _, ok := b.AlphaFor("superconducting"); !ok {
		t.Fatalf("missing family")
	}
	if _, ok := b.AlphaFor("abacus"); ok {
		t.Fatalf("unknown family resolved")
	}
}

func TestAlgBundle_Root_UsesSHA3512Domain(t *testing.T) {
	b := DevAlg()
	enc, err := codec.Encode(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	full := codec.HashDomain512(codec.DomainAlgPolicyRoot, enc)
	var want [32]byte
	copy(want[:], full[:32])
	got, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if got != want {
		t.Fatalf("alg root must be truncated SHA3-512 domain hash")
	}
}

func TestAlgBundle_RuleFor(t *testing.T) {
	b := DevAlg()
	r, ok := b.RuleFor(crypto.AlgMLDSA87)
	if !ok || r.MaxSigBytes != crypto.MLDSA87SigBytes {
		t.Fatalf("missing ML-DSA rule")
	}
	if _, ok := b.RuleFor(crypto.AlgID(77)); ok {
		t.Fatalf("unknown alg allowed")
	}
}

func TestLoadAlgBundle_RejectsEmpty(t *testing.T) {
	enc, err := codec.Encode(&AlgBundle{Version: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := LoadAlgBundle(enc); err == nil {
		t.Fatalf("empty policy accepted")
	}
}

func TestDevVDFModulus_Shape(t *testing.T) {
	m := Dev().VDFModulus
	if len(m) != 256 {
		t.Fatalf("modulus must be 2048 bits")
	}
	if m[0]&0x80 == 0 {
		t.Fatalf("modulus top bit unset")
	}
	if m[len(m)-1]&1 == 0 {
		t.Fatalf("modulus must be odd")
	}
}
