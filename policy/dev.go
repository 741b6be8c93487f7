package policy

import (
	"animica.dev/core/codec"
	"animica.dev/core/crypto"
	"animica.dev/core/munat"
)

// Dev returns the development-network PoIES bundle. The values are
// devnet parameters, not mainnet economics; mainnet tables ship as
// signed bundle files and are identified purely by root.
func Dev() *Bundle {
	return &Bundle{
		Version:        1,
		GammaMicroNats: 4 * munat.Scale,
		EscortQPPM:     500_000, // q = 0.5

		Kinds: map[string]KindPolicy{
			KindAI:      {CapMicroNats: 2_500_000, UnitScalerMicroNats: 1_500},
			KindQuantum: {CapMicroNats: 2_000_000, UnitScalerMicroNats: 1_000},
			KindStorage: {CapMicroNats: 1_000_000, UnitScalerMicroNats: 500},
			KindVDF:     {CapMicroNats: 1_500_000, UnitScalerMicroNats: 2_000},
		},
		Traps: TrapPolicy{
			MinCount:        4,
			MinPassRatioPPM: 900_000, // r_min = 0.9
			TVMaxPPM:        50_000,  // τ = 0.05
		},
		Alpha: []AlphaFamily{
			{Family: "superconducting", AlphaPPM: 1_000_000},
			{Family: "trapped-ion", AlphaPPM: 1_400_000},
			{Family: "photonic", AlphaPPM: 700_000},
		},

		NullifierTTL: 4096,

		Retarget: Retarget{
			Mode:            RetargetPerBlock,
			EpochLen:        32,
			TauTargetSec:    12,
			BetaPPM:         200_000, // β = 0.2
			ZCapMicroNats:   2 * munat.Scale,
			KappaPPM:        350_000, // κ = 0.35
			MCapMicroNats:   1 * munat.Scale,
			DeadbandMicro:   10_000, // ε = 0.01 nats
			DtMinSec:        1,
			DtMaxSec:        720,
			ThetaMinMicro:   500_000,
			ThetaMaxMicro:   50 * munat.Scale,
			MinStepSec:      1,
			MaxClockSkewSec: 5,
			MedianParents:   0,
		},
		ForkChoice: ForkChoice{
			DeltaCapMicroNats:  4 * munat.Scale,
			EpsilonWorkMicro:   1,
			MaxReorgDepth:      256,
			MaxReorgAgeSec:     3600,
			HardThresholdMicro: 100 * munat.Scale,
			Tau0Micro:          0,
			SlopeMicroPerDepth: 250_000, // k = 0.25
		},

		MaxBlockBytes:     4 << 20,
		MaxProofEnvelopes: 64,
		MaxEnvelopeBytes:  1 << 20,

		VDFModulus:     devVDFModulus(),
		VDFItersPerSec: 1_000_000,

		VerifyBudgetOps: 10_000_000,
	}
}

// DevAlg returns the development algorithm policy: both known PQ
// suites at their canonical sizes.
func DevAlg() *AlgBundle {
	return &AlgBundle{
		Version: 1,
		Allowed: []AlgRule{
			{Alg: uint16(crypto.AlgMLDSA87), MaxPubkeyBytes: crypto.MLDSA87PubkeyBytes, MaxSigBytes: crypto.MLDSA87SigBytes},
			{Alg: uint16(crypto.AlgSLHDSA256s), MaxPubkeyBytes: crypto.SLHDSA256sPubkeyBytes, MaxSigBytes: crypto.SLHDSA256sSigBytes},
		},
	}
}

// devVDFModulus expands a fixed 2048-bit odd modulus from a seed chain.
// It is a devnet stand-in; production bundles pin an RSA modulus from
// the trusted setup.
func devVDFModulus() []byte {
	out := make([]byte, 256)
	var block [32]byte
	seed := []byte("animica-dev-vdf-modulus")
	for i := 0; i < len(out); i += 32 {
		block = codec.Sum256(append(seed, byte(i/32)))
		copy(out[i:], block[:])
	}
	out[0] |= 0x80       // full 2048-bit width
	out[len(out)-1] |= 1 // odd
	return out
}
