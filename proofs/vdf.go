package proofs

import (
	"encoding/binary"
	"math/big"

	"animica.dev/core/codec"
	"animica.dev/core/consensus"
	"animica.dev/core/munat"
)

const (
	vdfInputDomain     = "vdf-input-v1"
	vdfChallengeDomain = "vdf-challenge-v1"
)

// VDFBody is a Wesolowski proof of sequential delay over the pinned
// RSA group: y = x^(2^T) mod N with witness π.
type VDFBody struct {
	// Input binds the evaluation to the prior randomness beacon.
	Input consensus.Hash `cbor:"input"`
	Y     []byte         `cbor:"y"`
	Pi    []byte         `cbor:"pi"`
	T     uint64         `cbor:"t"`
}

// VDFInput derives the group element seed from the beacon.
func VDFInput(beacon [32]byte) consensus.Hash {
	pre := make([]byte, 0, len(vdfInputDomain)+32)
	pre = append(pre, vdfInputDomain...)
	pre = append(pre, beacon[:]...)
	return consensus.Hash(codec.Sum256(pre))
}

// vdfChallengePrime derives the Fiat–Shamir prime l from (x, y, T).
// Candidates are hashed with an increasing counter until one passes
// the deterministic Baillie–PSW test; the first hit is the challenge.
func vdfChallengePrime(x, y *big.Int, t uint64) *big.Int {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], t)
	for ctr := uint32(0); ; ctr++ {
		pre := make([]byte, 0, len(vdfChallengeDomain)+len(x.Bytes())+len(y.Bytes())+12)
		pre = append(pre, vdfChallengeDomain...)
		pre = append(pre, x.Bytes()...)
		pre = append(pre, y.Bytes()...)
		pre = append(pre, tb[:]...)
		var cb [4]byte
		binary.BigEndian.PutUint32(cb[:], ctr)
		pre = append(pre, cb[:]...)
		sum := codec.Sum256(pre)
		cand := new(big.Int).SetBytes(sum[:])
		cand.SetBit(cand, 255, 1) // full width
		cand.SetBit(cand, 0, 1)   // odd
		if cand.ProbablyPrime(0) {
			return cand
		}
	}
}

// VDFVerify checks the Wesolowski equation π^l · x^r == y (mod N) with
// r = 2^T mod l.
func VDFVerify(modulus []byte, input consensus.Hash, y, pi []byte, t uint64) error {
	n := new(big.Int).SetBytes(modulus)
	if n.BitLen() < 1024 {
		return verr(ErrSchema, "vdf: modulus too small")
	}
	x := new(big.Int).SetBytes(input[:])
	x.Mod(x, n)
	if x.Sign() == 0 {
		x.SetInt64(2)
	}
	yv := new(big.Int).SetBytes(y)
	pv := new(big.Int).SetBytes(pi)
	if yv.Sign() <= 0 || yv.Cmp(n) >= 0 || pv.Sign() <= 0 || pv.Cmp(n) >= 0 {
		return verr(ErrSchema, "vdf: group elements out of range")
	}

	l := vdfChallengePrime(x, yv, t)
	r := new(big.Int).Exp(big.NewInt(2), new(big.Int).SetUint64(t), l)

	lhs := new(big.Int).Exp(pv, l, n)
	lhs.Mul(lhs, new(big.Int).Exp(x, r, n))
	lhs.Mod(lhs, n)
	if lhs.Cmp(yv) != 0 {
		return verr(ErrProof, "vdf: verification equation fails")
	}
	return nil
}

// VDFProve evaluates y = x^(2^T) and the witness π = x^floor(2^T / l).
// It exists for fixture generation and mining, not for validation, and
// costs T sequential squarings.
func VDFProve(modulus []byte, input consensus.Hash, t uint64) (y []byte, pi []byte) {
	n := new(big.Int).SetBytes(modulus)
	x := new(big.Int).SetBytes(input[:])
	x.Mod(x, n)
	if x.Sign() == 0 {
		x.SetInt64(2)
	}

	yv := new(big.Int).Set(x)
	for i := uint64(0); i < t; i++ {
		yv.Mul(yv, yv)
		yv.Mod(yv, n)
	}

	l := vdfChallengePrime(x, yv, t)
	q := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), uint(t)), l)
	pv := new(big.Int).Exp(x, q, n)
	return yv.Bytes(), pv.Bytes()
}

func verifyVDF(ctx *Context, body []byte) (consensus.ProofMetrics, map[string]uint64, error) {
	var b VDFBody
	if err := codec.Decode(body, &b); err != nil {
		return nil, nil, verr(ErrSchema, "vdf body: %v", err)
	}
	if b.T == 0 {
		return nil, nil, verr(ErrSchema, "vdf: zero iterations")
	}
	if ctx.Height == 0 {
		return nil, nil, verr(ErrBinding, "vdf proofs need a prior beacon")
	}
	beacon, err := ctx.beaconAt(ctx.Height - 1)
	if err != nil {
		return nil, nil, err
	}
	if b.Input != VDFInput(beacon) {
		return nil, nil, verr(ErrBinding, "vdf input not bound to the beacon")
	}

	if !ctx.Budget.Spend(50_000) {
		return nil, nil, verr(ErrBudget, "vdf budget exhausted")
	}
	if err := VDFVerify(ctx.Policy.VDFModulus, b.Input, b.Y, b.Pi, b.T); err != nil {
		return nil, nil, err
	}

	if ctx.Policy.VDFItersPerSec == 0 {
		return nil, nil, verr(ErrProof, "vdf: no iteration calibration")
	}
	secondsEquiv, err := munat.MulDiv(b.T, munat.Scale, ctx.Policy.VDFItersPerSec)
	if err != nil {
		return nil, nil, verr(ErrProof, "vdf calibration overflow")
	}

	m := consensus.VDFMetrics{
		UnitsMicro:        secondsEquiv,
		SecondsEquivMicro: secondsEquiv,
		Iterations:        b.T,
	}
	aux := map[string]uint64{
		"units":      secondsEquiv,
		"iterations": b.T,
	}
	return m, aux, nil
}
