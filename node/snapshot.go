package node

import "animica.dev/core/consensus"

// Snapshot is a consistent read of the chain state for RPC and
// mempool consumers. All fields are taken under one lock acquisition;
// a snapshot never mixes two admission states.
type Snapshot struct {
	HasTip         bool
	TipHash        consensus.Hash
	Height         uint64
	CumulativeWork uint64
	// NextTheta is the Θ the controller expects of the next block.
	NextTheta      uint64
	LiveNullifiers int
}

// Snapshot captures the current head state.
func (s *ChainState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.best == nil {
		return Snapshot{NextTheta: s.pol.Retarget.ThetaMinMicro}
	}
	return Snapshot{
		HasTip:         true,
		TipHash:        s.best.Hash,
		Height:         s.best.Header.Number,
		CumulativeWork: s.best.CumulativeWork,
		NextTheta:      s.best.Controller.ThetaMicro,
		LiveNullifiers: len(s.nullifiers),
	}
}
