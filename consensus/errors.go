// Package consensus implements the Animica data plane and acceptance
// rules: canonical headers and transactions, proof envelopes and
// receipts, the PoIES scorer, and the difficulty controller. Chain
// bookkeeping (index, fork choice, nullifier set) lives in node.
package consensus

import (
	"errors"
	"fmt"

	"animica.dev/core/codec"
)

// Code is a stable string-keyed consensus error. The keys are part of
// the external interface and never change meaning.
type Code string

const (
	ErrSchema             Code = "SchemaError"
	ErrSignature          Code = "SignatureError"
	ErrChainIDMismatch    Code = "ChainIdMismatch"
	ErrParentUnknown      Code = "ParentUnknown"
	ErrTimestampSkew      Code = "TimestampSkew"
	ErrThetaMismatch      Code = "ThetaMismatch"
	ErrAcceptanceFailed   Code = "AcceptanceFailed"
	ErrPolicyRootMismatch Code = "PolicyRootMismatch"
	ErrNullifierReuse     Code = "NullifierReuse"
	ErrCapViolation       Code = "CapViolation"
	ErrReorgRefused       Code = "ReorgRefused"
	ErrVerifier           Code = "VerifierError"
)

// Category buckets codes for peer scoring and harness exit codes.
type Category int

const (
	// CategoryStructural covers malformed or unlinkable input.
	CategoryStructural Category = 1
	// CategoryPolicy covers mismatches against pinned policy.
	CategoryPolicy Category = 2
	// CategoryWork covers acceptance-predicate failures.
	CategoryWork Category = 3
)

// CategoryOf maps a code to its failure category.
func CategoryOf(c Code) Category {
	switch c {
	case ErrSchema, ErrSignature, ErrChainIDMismatch, ErrParentUnknown:
		return CategoryStructural
	case ErrTimestampSkew, ErrThetaMismatch, ErrPolicyRootMismatch, ErrCapViolation:
		return CategoryPolicy
	default:
		return CategoryWork
	}
}

// Error is the typed consensus error carried across the core.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func cerr(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from err, translating codec schema
// failures. Errors that carry no stable code report false.
func CodeOf(err error) (Code, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	var se *codec.SchemaError
	if errors.As(err, &se) {
		return ErrSchema, true
	}
	return "", false
}
