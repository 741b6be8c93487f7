package proofs

import (
	"crypto/ecdsa"
	"encoding/binary"

	"animica.dev/core/codec"
	"animica.dev/core/consensus"
	"animica.dev/core/munat"
)

const (
	quantumBindDomain     = "quantum-v1/bind"
	quantumTrapSeedDomain = "quantum-trap-seed"
)

// QuantumResources declares the circuit cost envelope.
type QuantumResources struct {
	Qubits uint32 `cbor:"qubits"`
	Depth  uint32 `cbor:"depth"`
	Shots  uint64 `cbor:"shots"`
}

// QuantumTrap is one trap circuit result. Deterministic traps must
// match the expected outcome digest exactly; probabilistic traps are
// judged by total-variation distance between the histograms.
type QuantumTrap struct {
	Deterministic bool           `cbor:"deterministic"`
	Expected      consensus.Hash `cbor:"expected"`
	Got           consensus.Hash `cbor:"got"`
	// ExpectedHist and GotHist are fixed-bin shot histograms, used
	// only for probabilistic traps.
	ExpectedHist []uint32 `cbor:"expectedHist,omitempty"`
	GotHist      []uint32 `cbor:"gotHist,omitempty"`
}

// QuantumBody is the quantum proof envelope body.
type QuantumBody struct {
	TaskID        consensus.Hash   `cbor:"taskId"`
	CircuitID     consensus.Hash   `cbor:"circuitId"`
	CircuitCommit consensus.Hash   `cbor:"circuitCommit"`
	OutputCommit  consensus.Hash   `cbor:"outputCommit"`
	Resources     QuantumResources `cbor:"resources"`
	ProviderNonce codec.Bytes8     `cbor:"providerNonce"`
	Family        string           `cbor:"family"`

	// ProviderChain is the QPU operator's certificate chain (leaf
	// first, DER); ProviderSig signs BIND with the leaf key.
	ProviderChain [][]byte `cbor:"providerChain"`
	ProviderSig   []byte   `cbor:"providerSig"`

	Traps []QuantumTrap `cbor:"traps"`
	QoS   *QoSRecord    `cbor:"qos"`
}

// QuantumBind computes BIND, the digest the provider signs.
func QuantumBind(b *QuantumBody) [32]byte {
	pre := make([]byte, 0, len(quantumBindDomain)+32*4+16+8)
	pre = append(pre, quantumBindDomain...)
	pre = append(pre, b.TaskID[:]...)
	pre = append(pre, b.CircuitID[:]...)
	pre = append(pre, b.CircuitCommit[:]...)
	pre = append(pre, b.OutputCommit[:]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], b.Resources.Qubits)
	pre = append(pre, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], b.Resources.Depth)
	pre = append(pre, u32[:]...)
	var u64b [8]byte
	binary.BigEndian.PutUint64(u64b[:], b.Resources.Shots)
	pre = append(pre, u64b[:]...)
	pre = append(pre, b.ProviderNonce[:]...)
	return codec.Sum256(pre)
}

// QuantumTrapSeed derives the trap draw seed for a task.
func QuantumTrapSeed(beacon [32]byte, taskID consensus.Hash) [32]byte {
	pre := make([]byte, 0, len(quantumTrapSeedDomain)+64)
	pre = append(pre, quantumTrapSeedDomain...)
	pre = append(pre, beacon[:]...)
	pre = append(pre, taskID[:]...)
	return codec.Sum256(pre)
}

// QuantumTrapExpected derives the expected outcome digest of the i-th
// trap drawn from the public corpus.
func QuantumTrapExpected(seed [32]byte, i uint32) consensus.Hash {
	pre := make([]byte, 36)
	copy(pre[:32], seed[:])
	binary.BigEndian.PutUint32(pre[32:], i)
	return consensus.Hash(codec.Sum256(pre))
}

// tvDistancePPM computes the total-variation distance between two shot
// histograms in parts-per-million, with pure integer arithmetic.
func tvDistancePPM(a, b []uint32) (uint64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, verr(ErrSchema, "histogram shapes differ")
	}
	var na, nb uint64
	for _, v := range a {
		na += uint64(v)
	}
	for _, v := range b {
		nb += uint64(v)
	}
	if na == 0 || nb == 0 {
		return 0, verr(ErrSchema, "empty histogram")
	}
	// TV = Σ|a_i/na − b_i/nb| / 2; scaled by 1e6 without floats.
	var acc uint64
	for i := range a {
		x := uint64(a[i]) * nb
		y := uint64(b[i]) * na
		if x >= y {
			acc += x - y
		} else {
			acc += y - x
		}
	}
	den := 2 * na * nb
	return munat.MulDiv(acc, 1_000_000, den)
}

func verifyQuantum(ctx *Context, body []byte) (consensus.ProofMetrics, map[string]uint64, error) {
	var b QuantumBody
	if err := codec.Decode(body, &b); err != nil {
		return nil, nil, verr(ErrSchema, "quantum body: %v", err)
	}
	if b.Resources.Qubits == 0 || b.Resources.Depth == 0 || b.Resources.Shots == 0 {
		return nil, nil, verr(ErrSchema, "quantum: empty resource claim")
	}

	// The α_family table is external calibration; with no entry for
	// this family the core refuses to score rather than guess.
	alphaPPM, ok := ctx.Policy.AlphaFor(b.Family)
	if !ok {
		return nil, nil, verr(ErrProof, "no alpha calibration for family %q", b.Family)
	}

	// Provider attestation: cert chain to pinned QPU roots, signature
	// over BIND with the leaf key.
	if !ctx.Budget.Spend(2000 * int64(len(b.ProviderChain)+1)) {
		return nil, nil, verr(ErrBudget, "provider chain budget exhausted")
	}
	leaf, err := verifyCertChain(b.ProviderChain, ctx.Policy.QPURoots, ctx.Timestamp)
	if err != nil {
		return nil, nil, err
	}
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, verr(ErrAttestation, "provider key is not ECDSA")
	}
	bind := QuantumBind(&b)
	if !ecdsa.VerifyASN1(pub, bind[:], b.ProviderSig) {
		return nil, nil, verr(ErrAttestation, "provider signature over BIND invalid")
	}

	// Traps drawn from the public corpus by the beacon seed.
	tp := ctx.Policy.Traps
	if uint32(len(b.Traps)) < tp.MinCount {
		return nil, nil, verr(ErrTrapFail, "trap count %d below policy minimum %d", len(b.Traps), tp.MinCount)
	}
	if ctx.Height == 0 {
		return nil, nil, verr(ErrBinding, "quantum proofs need a prior beacon")
	}
	beacon, err := ctx.beaconAt(ctx.Height - 1)
	if err != nil {
		return nil, nil, err
	}
	if !ctx.Budget.Spend(int64(len(b.Traps)) * 16) {
		return nil, nil, verr(ErrBudget, "trap budget exhausted")
	}
	seed := QuantumTrapSeed(beacon, b.TaskID)
	var passes uint64
	for i, trap := range b.Traps {
		want := QuantumTrapExpected(seed, uint32(i))
		if trap.Expected != want {
			return nil, nil, verr(ErrTrapFail, "trap %d not drawn from the corpus seed", i)
		}
		if trap.Deterministic {
			if trap.Got == trap.Expected {
				passes++
			}
			continue
		}
		tv, err := tvDistancePPM(trap.ExpectedHist, trap.GotHist)
		if err != nil {
			return nil, nil, err
		}
		if tv <= tp.TVMaxPPM {
			passes++
		}
	}
	ratioPPM := passes * 1_000_000 / uint64(len(b.Traps))
	if ratioPPM < tp.MinPassRatioPPM {
		return nil, nil, verr(ErrTrapFail, "trap pass ratio %d below policy %d", ratioPPM, tp.MinPassRatioPPM)
	}

	// quantum_units = α_family · qubits · depth · ln(1 + shots).
	lnShots, err := munat.LnU64(b.Resources.Shots + 1)
	if err != nil {
		return nil, nil, verr(ErrProof, "quantum units: %v", err)
	}
	qd := uint64(b.Resources.Qubits) * uint64(b.Resources.Depth)
	units, err := munat.MulDiv(qd, lnShots, 1)
	if err != nil {
		return nil, nil, verr(ErrProof, "quantum units overflow")
	}
	units, err = munat.MulDiv(units, alphaPPM, munat.Scale)
	if err != nil {
		return nil, nil, verr(ErrProof, "quantum units overflow")
	}

	m := consensus.QuantumMetrics{
		UnitsMicro: units,
		Family:     b.Family,
		Qubits:     b.Resources.Qubits,
		Depth:      b.Resources.Depth,
		Shots:      b.Resources.Shots,
	}
	aux := map[string]uint64{
		"units":      units,
		"qubits":     uint64(b.Resources.Qubits),
		"depth":      uint64(b.Resources.Depth),
		"shots":      b.Resources.Shots,
		"trapsRatio": ratioPPM,
	}
	return m, aux, nil
}
