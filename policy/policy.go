// Package policy holds the externally supplied consensus tables: the
// PoIES scoring policy and the signature-algorithm policy. Bundles are
// immutable once loaded and referenced everywhere by their 32-byte
// content root; a header committing to a different root than the bundle
// in hand is rejected, never reinterpreted.
package policy

import (
	"fmt"

	"animica.dev/core/codec"
	"animica.dev/core/crypto"
)

// RetargetMode selects how the difficulty controller consumes observed
// intervals.
type RetargetMode uint8

const (
	// RetargetPerBlock runs the EMA update on every accepted block.
	RetargetPerBlock RetargetMode = 1
	// RetargetPerEpoch accumulates a window and applies one update per
	// epoch boundary.
	RetargetPerEpoch RetargetMode = 2
)

// Kind labels the proof kinds scored by PoIES. The names feed the
// nullifier domain tags.
const (
	KindHashShare = "hashshare"
	KindAI        = "ai"
	KindQuantum   = "quantum"
	KindStorage   = "storage"
	KindVDF       = "vdf"
)

// KindPolicy is the per-kind scoring table.
type KindPolicy struct {
	// CapMicroNats is C_type, the per-proof ψ ceiling.
	CapMicroNats uint64 `cbor:"cap"`
	// UnitScalerMicroNats converts one costed unit into µ-nats of ψ.
	UnitScalerMicroNats uint64 `cbor:"unitScaler"`
}

// TrapPolicy gates AI and quantum trap receipts.
type TrapPolicy struct {
	// MinCount is m_min, the minimum number of traps.
	MinCount uint32 `cbor:"minCount"`
	// MinPassRatioPPM is r_min in parts-per-million.
	MinPassRatioPPM uint64 `cbor:"minPassRatio"`
	// TVMaxPPM is τ, the total-variation tolerance for probabilistic
	// quantum traps, in parts-per-million.
	TVMaxPPM uint64 `cbor:"tvMax"`
}

// AlphaFamily scales quantum units for one hardware family. Values come
// from reference benches; a bundle without entries refuses to score
// quantum proofs.
type AlphaFamily struct {
	Family   string `cbor:"family"`
	AlphaPPM uint64 `cbor:"alpha"`
}

// Retarget carries the difficulty controller constants, all fixed at
// genesis.
type Retarget struct {
	Mode            RetargetMode `cbor:"mode"`
	EpochLen        uint32       `cbor:"epochLen"`
	TauTargetSec    uint64       `cbor:"tauTarget"`
	BetaPPM         uint64       `cbor:"beta"`
	ZCapMicroNats   int64        `cbor:"zCap"`
	KappaPPM        uint64       `cbor:"kappa"`
	MCapMicroNats   int64        `cbor:"mCap"`
	DeadbandMicro   int64        `cbor:"deadband"`
	DtMinSec        uint64       `cbor:"dtMin"`
	DtMaxSec        uint64       `cbor:"dtMax"`
	ThetaMinMicro   uint64       `cbor:"thetaMin"`
	ThetaMaxMicro   uint64       `cbor:"thetaMax"`
	MinStepSec      uint64       `cbor:"minStep"`
	MaxClockSkewSec uint64       `cbor:"maxClockSkew"`
	// MedianParents enables median-of-N-parents substitution for the
	// local-clock guard; zero disables it.
	MedianParents uint32 `cbor:"medianParents"`
}

// ForkChoice carries reorg policy constants.
type ForkChoice struct {
	// DeltaCapMicroNats bounds per-block effective work above Θ.
	DeltaCapMicroNats uint64 `cbor:"deltaCap"`
	// EpsilonWorkMicro is the work-compare insensitivity band.
	EpsilonWorkMicro uint64 `cbor:"epsilonWork"`
	// MaxReorgDepth is D_max.
	MaxReorgDepth uint64 `cbor:"maxReorgDepth"`
	// MaxReorgAgeSec is T_max_reorg.
	MaxReorgAgeSec uint64 `cbor:"maxReorgAge"`
	// HardThresholdMicro is τ_hard for old fork points.
	HardThresholdMicro uint64 `cbor:"hardThreshold"`
	// Tau0Micro and SlopeMicroPerDepth define the linear penalty
	// τ_0 + k·D in µ-nats.
	Tau0Micro          uint64 `cbor:"tau0"`
	SlopeMicroPerDepth uint64 `cbor:"slope"`
}

// Bundle is the PoIES policy committed under policyRoots["poies"].
type Bundle struct {
	Version uint16 `cbor:"version"`
	// GammaMicroNats is Γ, the total useful-work cap per block.
	GammaMicroNats uint64 `cbor:"gamma"`
	// EscortQPPM is the escort parameter q in parts-per-million,
	// q ∈ (0, 1].
	EscortQPPM uint64 `cbor:"escortQ"`

	Kinds map[string]KindPolicy `cbor:"kinds"`
	Traps TrapPolicy            `cbor:"traps"`
	Alpha []AlphaFamily         `cbor:"alpha"`

	// NullifierTTL is the replay-prevention window in blocks.
	NullifierTTL uint64 `cbor:"nullifierTTL"`

	Retarget   Retarget   `cbor:"retarget"`
	ForkChoice ForkChoice `cbor:"forkChoice"`

	// MaxBlockBytes and MaxProofEnvelopes bound the decode surface.
	MaxBlockBytes     uint64 `cbor:"maxBlockBytes"`
	MaxProofEnvelopes uint32 `cbor:"maxProofEnvelopes"`
	MaxEnvelopeBytes  uint64 `cbor:"maxEnvelopeBytes"`

	// VDFModulus is the pinned Wesolowski group modulus (big-endian),
	// and VDFItersPerSec the calibration from iterations to
	// seconds-equivalent.
	VDFModulus     []byte `cbor:"vdfModulus"`
	VDFItersPerSec uint64 `cbor:"vdfItersPerSec"`

	// AIVendorRoots and QPURoots pin the DER-encoded attestation root
	// certificates for TEE vendors and quantum providers.
	AIVendorRoots [][]byte `cbor:"aiVendorRoots"`
	QPURoots      [][]byte `cbor:"qpuRoots"`

	// VerifyBudgetOps is the per-envelope verifier work budget in
	// abstract operation units.
	VerifyBudgetOps uint64 `cbor:"verifyBudget"`
}

// Root returns the bundle's content address: the domain-tagged hash of
// its canonical encoding.
func (b *Bundle) Root() ([32]byte, error) {
	enc, err := codec.Encode(b)
	if err != nil {
		return [32]byte{}, err
	}
	return codec.HashDomain("poies-policy-root-v1", enc), nil
}

// AlphaFor looks up the quantum unit scaler for a hardware family.
func (b *Bundle) AlphaFor(family string) (uint64, bool) {
	for _, a := range b.Alpha {
		if a.Family == family {
			return a.AlphaPPM, true
		}
	}
	return 0, false
}

// KindFor returns the per-kind table.
func (b *Bundle) KindFor(kind string) (KindPolicy, bool) {
	kp, ok := b.Kinds[kind]
	return kp, ok
}

// Validate rejects bundles the scorer could not apply deterministically.
func (b *Bundle) Validate() error {
	if b.EscortQPPM == 0 || b.EscortQPPM > 1_000_000 {
		return fmt.Errorf("policy: escort q must be in (0, 1]")
	}
	if b.GammaMicroNats == 0 {
		return fmt.Errorf("policy: gamma required")
	}
	if b.NullifierTTL == 0 {
		return fmt.Errorf("policy: nullifier TTL required")
	}
	r := b.Retarget
	if r.Mode != RetargetPerBlock && r.Mode != RetargetPerEpoch {
		return fmt.Errorf("policy: unknown retarget mode %d", r.Mode)
	}
	if r.Mode == RetargetPerEpoch && r.EpochLen == 0 {
		return fmt.Errorf("policy: epoch length required for per-epoch retarget")
	}
	if r.TauTargetSec == 0 || r.DtMinSec == 0 || r.DtMaxSec < r.DtMinSec {
		return fmt.Errorf("policy: bad interval clips")
	}
	if r.BetaPPM == 0 || r.BetaPPM > 1_000_000 {
		return fmt.Errorf("policy: beta must be in (0, 1]")
	}
	if r.ThetaMinMicro == 0 || r.ThetaMaxMicro < r.ThetaMinMicro {
		return fmt.Errorf("policy: bad theta clamps")
	}
	return nil
}

// AlgRule bounds one allowed signature algorithm.
type AlgRule struct {
	Alg            uint16 `cbor:"alg"`
	MaxPubkeyBytes uint32 `cbor:"maxPubkey"`
	MaxSigBytes    uint32 `cbor:"maxSig"`
}

// AlgBundle is the PQ algorithm policy committed under
// policyRoots["algPolicy"].
type AlgBundle struct {
	Version uint16    `cbor:"version"`
	Allowed []AlgRule `cbor:"allowed"`
}

// Root returns the content address of the algorithm policy. This
// domain uses SHA3-512; the committed root is the first 32 bytes.
func (b *AlgBundle) Root() ([32]byte, error) {
	enc, err := codec.Encode(b)
	if err != nil {
		return [32]byte{}, err
	}
	full := codec.HashDomain512(codec.DomainAlgPolicyRoot, enc)
	var out [32]byte
	copy(out[:], full[:32])
	return out, nil
}

// RuleFor returns the rule for alg, if allowed.
func (b *AlgBundle) RuleFor(alg crypto.AlgID) (AlgRule, bool) {
	for _, r := range b.Allowed {
		if crypto.AlgID(r.Alg) == alg {
			return r, true
		}
	}
	return AlgRule{}, false
}

// LoadBundle strictly decodes a canonical-CBOR PoIES bundle.
func LoadBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := codec.Decode(data, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadAlgBundle strictly decodes a canonical-CBOR algorithm bundle.
func LoadAlgBundle(data []byte) (*AlgBundle, error) {
	var b AlgBundle
	if err := codec.Decode(data, &b); err != nil {
		return nil, err
	}
	if len(b.Allowed) == 0 {
		return nil, fmt.Errorf("policy: empty algorithm policy")
	}
	return &b, nil
}
