package consensus

import (
	"sort"

	"animica.dev/core/munat"
	"animica.dev/core/policy"
)

// ScoredEnvelope pairs one envelope with its verifier outcome. A nil
// Metrics means the verifier failed; the envelope then contributes
// zero ψ but still produces a receipt.
type ScoredEnvelope struct {
	Index     int
	Kind      ProofKind
	Nullifier Hash
	Metrics   ProofMetrics
	// Aux is the audit subset copied into the receipt.
	Aux map[string]uint64
}

// ScoreResult is the scorer output for one block.
type ScoreResult struct {
	// SMicro is the full block score in µ-nats.
	SMicro uint64
	// LotteryMicro is the −ln(u) hash-lottery term.
	LotteryMicro uint64
	// PsiTotalMicro is Σψ after all clamps; never exceeds Γ.
	PsiTotalMicro uint64
	// Receipts are in envelope order and feed proofsRoot.
	Receipts []ProofReceipt
}

// Score maps verified proof metrics to effective ψ under the pinned
// policy and assembles S = −ln(u) + Σψ. The caller passes the header's
// committed PoIES root; a bundle whose root disagrees is never applied.
//
// Clamps run in fixed order: per-proof cap, escort within each kind,
// then uniform scaling down to Γ. All arithmetic truncates toward zero.
func Score(b *policy.Bundle, committedRoot Hash, draw [32]byte, envs []ScoredEnvelope) (*ScoreResult, error) {
	root, err := b.Root()
	if err != nil {
		return nil, err
	}
	if Hash(root) != committedRoot {
		return nil, cerr(ErrPolicyRootMismatch, "loaded PoIES policy does not match header commitment")
	}

	lottery := munat.NegLnU256(draw)

	// Per-proof ψ candidates, clipped by the per-kind cap.
	psi := make([]uint64, len(envs))
	for i, e := range envs {
		if e.Metrics == nil {
			continue
		}
		name, ok := e.Kind.Name()
		if !ok {
			return nil, cerr(ErrSchema, "unknown proof kind %d", e.Kind)
		}
		if e.Kind == ProofHashShare {
			// The lottery term is not a ψ kind.
			continue
		}
		kp, ok := b.KindFor(name)
		if !ok {
			return nil, cerr(ErrCapViolation, "no scoring policy for kind %q", name)
		}
		in := e.Metrics.PsiInputs()
		cand, err := munat.MulDiv(kp.UnitScalerMicroNats, in.UnitsMicro, munat.Scale)
		if err != nil {
			return nil, cerr(ErrCapViolation, "psi overflow for kind %q", name)
		}
		if cand > kp.CapMicroNats {
			cand = kp.CapMicroNats
		}
		psi[i] = cand
	}

	// Escort rule: within each kind, the k-th proof (sorted by ψ
	// descending, ties by envelope order) is scaled by q^(k−1).
	byKind := make(map[ProofKind][]int)
	for i, e := range envs {
		if psi[i] == 0 || e.Kind == ProofHashShare {
			continue
		}
		byKind[e.Kind] = append(byKind[e.Kind], i)
	}
	for _, idxs := range byKind {
		sort.SliceStable(idxs, func(a, c int) bool {
			if psi[idxs[a]] != psi[idxs[c]] {
				return psi[idxs[a]] > psi[idxs[c]]
			}
			return idxs[a] < idxs[c]
		})
		factor := uint64(munat.Scale)
		for _, i := range idxs {
			scaled, err := munat.MulDiv(psi[i], factor, munat.Scale)
			if err != nil {
				return nil, cerr(ErrCapViolation, "escort overflow")
			}
			psi[i] = scaled
			factor, err = munat.MulDiv(factor, b.EscortQPPM, munat.Scale)
			if err != nil {
				return nil, cerr(ErrCapViolation, "escort overflow")
			}
		}
	}

	var total uint64
	for _, p := range psi {
		total, err = munat.AddU64(total, p)
		if err != nil {
			return nil, cerr(ErrCapViolation, "psi sum overflow")
		}
	}

	// Total cap: scale uniformly down to Γ. Truncation keeps the sum
	// at or below Γ; the saturation invariant is Σψ ≤ Γ.
	if total > b.GammaMicroNats {
		var newTotal uint64
		for i := range psi {
			scaled, err := munat.MulDiv(psi[i], b.GammaMicroNats, total)
			if err != nil {
				return nil, cerr(ErrCapViolation, "gamma scale overflow")
			}
			psi[i] = scaled
			newTotal += scaled
		}
		total = newTotal
	}

	s, err := munat.AddU64(lottery, total)
	if err != nil {
		return nil, cerr(ErrCapViolation, "score overflow")
	}

	receipts := make([]ProofReceipt, len(envs))
	for i, e := range envs {
		var units uint64
		if e.Metrics != nil {
			units = e.Metrics.PsiInputs().UnitsMicro
		}
		receipts[i] = ProofReceipt{
			TypeID:     uint8(e.Kind),
			Nullifier:  e.Nullifier,
			UnitsMicro: units,
			PsiMicro:   psi[i],
			Aux:        e.Aux,
		}
	}

	return &ScoreResult{
		SMicro:        s,
		LotteryMicro:  lottery,
		PsiTotalMicro: total,
		Receipts:      receipts,
	}, nil
}

// Accept applies the acceptance predicate S ≥ Θ.
func Accept(sMicro, thetaMicro uint64) bool {
	return sMicro >= thetaMicro
}

// EffectiveWork computes w = clamp(S, Θ, Θ+Δ_cap), the per-block
// contribution to cumulative fork-choice weight.
func EffectiveWork(sMicro, thetaMicro, deltaCapMicro uint64) uint64 {
	hi := thetaMicro + deltaCapMicro
	if hi < thetaMicro {
		hi = ^uint64(0)
	}
	return munat.ClampU64(sMicro, thetaMicro, hi)
}
