package address

import (
	"strings"
	"testing"

	"animica.dev/core/crypto"
)

func TestDeriveRoundTrip(t *testing.T) {
	pubkey := []byte("not a real key, deterministic test input")
	a := Derive(crypto.AlgMLDSA87, pubkey)
	if a.Alg() != crypto.AlgMLDSA87 {
		t.Fatalf("alg mismatch: %d", a.Alg())
	}

	s := a.String()
	if !strings.HasPrefix(s, HRP+"1") {
		t.Fatalf("bad prefix: %s", s)
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch")
	}
}

func TestDerive_AlgIsBound(t *testing.T) {
	pubkey := []byte("same key")
	a := Derive(crypto.AlgMLDSA87, pubkey)
	b := Derive(crypto.AlgSLHDSA256s, pubkey)
	if a == b {
		t.Fatalf("addresses must bind the algorithm id")
	}
	if a.KeyDigest() != b.KeyDigest() {
		t.Fatalf("digest should not depend on alg")
	}
}

func TestParse_RejectsMutations(t *testing.T) {
	a := Derive(crypto.AlgMLDSA87, []byte("key"))
	s := a.String()

	// Flip one data character: checksum must fail.
	mutated := []rune(s)
	last := len(mutated) - 1
	if mutated[last] == 'q' {
		mutated[last] = 'p'
	} else {
		mutated[last] = 'q'
	}
	if _, err := Parse(string(mutated)); err == nil {
		t.Fatalf("mutated address accepted")
	}

	if _, err := Parse("tb1" + s[len(HRP)+1:]); err == nil {
		t.Fatalf("foreign prefix accepted")
	}
	if _, err := Parse("definitely-not-bech32"); err == nil {
		t.Fatalf("garbage accepted")
	}
}
