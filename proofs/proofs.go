// Package proofs implements the per-kind proof verifiers. Each
// verifier is a pure function of the envelope body, the pinned policy,
// and deterministic chain inputs; it never consults the wall clock or
// local randomness. Verifiers emit ProofMetrics or a typed error; an
// envelope failure zeroes that envelope's ψ without failing the block.
package proofs

import (
	"fmt"

	"animica.dev/core/consensus"
	"animica.dev/core/crypto"
	"animica.dev/core/policy"
)

// ErrKind classifies verifier failures.
type ErrKind string

const (
	ErrSchema      ErrKind = "SchemaError"
	ErrAttestation ErrKind = "AttestationError"
	ErrBinding     ErrKind = "BindingError"
	ErrTrapFail    ErrKind = "TrapFail"
	ErrProof       ErrKind = "ProofError"
	ErrBudget      ErrKind = "ProofError::Budget"
)

// VerifyError is the typed verifier failure for one envelope.
type VerifyError struct {
	Kind ErrKind
	Msg  string
}

func (e *VerifyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func verr(kind ErrKind, format string, args ...any) error {
	return &VerifyError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Budget is a per-envelope work counter. Verifiers spend abstract
// operation units as they go; exhausting the budget aborts the
// envelope with ProofError::Budget. No operation silently succeeds on
// exhaustion.
type Budget struct {
	remaining int64
}

// NewBudget returns a budget of n operation units.
func NewBudget(n uint64) *Budget {
	if n > 1<<62 {
		n = 1 << 62
	}
	return &Budget{remaining: int64(n)}
}

// Spend consumes n units, reporting whether the budget survives.
func (b *Budget) Spend(n int64) bool {
	if b == nil {
		return true
	}
	b.remaining -= n
	return b.remaining >= 0
}

// BeaconFn exposes the randomness-beacon history prefix. It must be
// defined for every height below the verifying header's.
type BeaconFn func(height uint64) [32]byte

// Context carries the enclosing header's binding material and the
// pinned policy into every verifier.
type Context struct {
	ChainID    uint32
	Height     uint64
	Timestamp  uint64
	ParentHash consensus.Hash
	MixSeed    consensus.Hash

	Beacon    BeaconFn
	Policy    *policy.Bundle
	AlgPolicy *policy.AlgBundle
	Provider  crypto.Provider

	Budget *Budget
}

// beaconAt returns the beacon value for a prior height, or an error
// when no history is available.
func (ctx *Context) beaconAt(height uint64) ([32]byte, error) {
	if ctx.Beacon == nil {
		return [32]byte{}, verr(ErrBinding, "no beacon history available")
	}
	return ctx.Beacon(height), nil
}

// Verify dispatches one envelope to its kind verifier. It re-derives
// the nullifier first; a mismatch is envelope-fatal. The returned aux
// map is the audit subset copied into the proof receipt.
func Verify(ctx *Context, env *consensus.Envelope) (consensus.ProofMetrics, map[string]uint64, error) {
	kind, ok := env.Kind()
	if !ok {
		return nil, nil, verr(ErrSchema, "unknown proof kind %d", env.TypeID)
	}
	if err := env.CheckNullifier(); err != nil {
		return nil, nil, verr(ErrBinding, "nullifier does not re-derive")
	}
	if !ctx.Budget.Spend(int64(len(env.Body))) {
		return nil, nil, verr(ErrBudget, "body decode budget exhausted")
	}

	switch kind {
	case consensus.ProofHashShare:
		return verifyHashShare(ctx, env.Body)
	case consensus.ProofAI:
		return verifyAI(ctx, env.Body)
	case consensus.ProofQuantum:
		return verifyQuantum(ctx, env.Body)
	case consensus.ProofStorage:
		return verifyStorage(ctx, env.Body)
	case consensus.ProofVDF:
		return verifyVDF(ctx, env.Body)
	default:
		return nil, nil, verr(ErrSchema, "unhandled proof kind %d", kind)
	}
}
