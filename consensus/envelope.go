package consensus

import (
	"animica.dev/core/codec"
	"animica.dev/core/policy"
)

// ProofKind is the wire discriminator for proof envelopes.
type ProofKind uint8

const (
	ProofHashShare ProofKind = 1
	ProofAI        ProofKind = 2
	ProofQuantum   ProofKind = 3
	ProofStorage   ProofKind = 4
	ProofVDF       ProofKind = 5
)

// Name returns the kind's policy name, which also feeds the nullifier
// domain tag.
func (k ProofKind) Name() (string, bool) {
	switch k {
	case ProofHashShare:
		return policy.KindHashShare, true
	case ProofAI:
		return policy.KindAI, true
	case ProofQuantum:
		return policy.KindQuantum, true
	case ProofStorage:
		return policy.KindStorage, true
	case ProofVDF:
		return policy.KindVDF, true
	default:
		return "", false
	}
}

// Envelope carries one proof on the wire. Body is the canonical CBOR
// of the kind-specific record; decoding the typed body is the
// verifier's job.
type Envelope struct {
	TypeID    uint8  `cbor:"typeId"`
	Body      []byte `cbor:"body"`
	Nullifier Hash   `cbor:"nullifier"`
}

// Kind returns the typed proof kind.
func (e *Envelope) Kind() (ProofKind, bool) {
	k := ProofKind(e.TypeID)
	if _, ok := k.Name(); !ok {
		return 0, false
	}
	return k, true
}

// CheckNullifier re-derives the nullifier from the body and compares.
// A mismatch is envelope-fatal.
func (e *Envelope) CheckNullifier() error {
	k, ok := e.Kind()
	if !ok {
		return cerr(ErrSchema, "unknown proof kind %d", e.TypeID)
	}
	name, _ := k.Name()
	want := Hash(codec.Nullifier(name, e.Body))
	if e.Nullifier != want {
		return cerr(ErrVerifier, "nullifier does not re-derive")
	}
	return nil
}
