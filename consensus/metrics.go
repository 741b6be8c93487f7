package consensus

// PsiInputs is the uniform projection the scorer consumes. UnitsMicro
// is the costed unit count at micro scale (one unit = 1e6); the policy
// unit scaler converts it to µ-nats of ψ candidate.
type PsiInputs struct {
	UnitsMicro uint64
}

// ProofMetrics is the verifier output for one envelope, pre-policy.
// Records are tagged per kind and expose only nonnegative numeric
// fields; the scorer consumes them solely through PsiInputs.
type ProofMetrics interface {
	Kind() string
	PsiInputs() PsiInputs
}

// HashShareMetrics is unusual: its contribution is the hash-lottery
// term −ln(u), added at scoring time rather than capped like ψ kinds.
type HashShareMetrics struct {
	// Draw is the 32-byte u-draw digest.
	Draw [32]byte
	// DRatioPPM is the achieved difficulty ratio in parts-per-million.
	DRatioPPM uint64
	// TargetPass reports whether the draw met the share target.
	TargetPass bool
}

func (HashShareMetrics) Kind() string { return "hashshare" }

// PsiInputs is zero: the lottery term bypasses the ψ pipeline.
func (HashShareMetrics) PsiInputs() PsiInputs { return PsiInputs{} }

// AIMetrics summarizes a verified AI workload.
type AIMetrics struct {
	UnitsMicro    uint64
	TrapsRatioPPM uint64
	Redundancy    uint32
	QoSPPM        uint64
}

func (AIMetrics) Kind() string           { return "ai" }
func (m AIMetrics) PsiInputs() PsiInputs { return PsiInputs{UnitsMicro: m.UnitsMicro} }

// QuantumMetrics summarizes a verified quantum workload.
type QuantumMetrics struct {
	UnitsMicro uint64
	Family     string
	Qubits     uint32
	Depth      uint32
	Shots      uint64
}

func (QuantumMetrics) Kind() string           { return "quantum" }
func (m QuantumMetrics) PsiInputs() PsiInputs { return PsiInputs{UnitsMicro: m.UnitsMicro} }

// StorageMetrics summarizes a storage heartbeat window.
type StorageMetrics struct {
	UnitsMicro      uint64
	RedundancyPPM   uint64
	AvailabilityPPM uint64
	CapacityMicro   uint64
}

func (StorageMetrics) Kind() string           { return "storage" }
func (m StorageMetrics) PsiInputs() PsiInputs { return PsiInputs{UnitsMicro: m.UnitsMicro} }

// VDFMetrics summarizes a verified sequential delay.
type VDFMetrics struct {
	UnitsMicro        uint64
	SecondsEquivMicro uint64
	Iterations        uint64
}

func (VDFMetrics) Kind() string           { return "vdf" }
func (m VDFMetrics) PsiInputs() PsiInputs { return PsiInputs{UnitsMicro: m.UnitsMicro} }
