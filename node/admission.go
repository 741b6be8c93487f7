package node

import (
	"animica.dev/core/consensus"
	"animica.dev/core/crypto"
	"animica.dev/core/munat"
	"animica.dev/core/proofs"
)

// AdmitOptions carry the non-consensus inputs of one admission: the
// receipt-time clock reading and the verifier parallelism.
type AdmitOptions struct {
	LocalTime    uint64
	LocalTimeSet bool
	Workers      int
}

// AdmitResult reports what admission did with a valid block.
type AdmitResult struct {
	Hash   consensus.Hash
	Score  *consensus.ScoreResult
	Work   uint64
	IsHead bool
	// RefusedReorg is set when the block was admitted on a side branch
	// that out-weighed the best tip but failed the reorg policy gates.
	RefusedReorg error
}

// Admit runs the full acceptance path for one block: structural
// decode, linkage, timestamp guards, policy-root checks, transaction
// verification, parallel proof verification, PoIES scoring, the
// acceptance predicate, and finally index insertion and fork choice.
// State changes only happen after every check has passed; a rejected
// block leaves no trace.
func (s *ChainState) Admit(p crypto.Provider, blockBytes []byte, opts AdmitOptions) (*AdmitResult, error) {
	block, err := consensus.DecodeBlock(blockBytes, s.pol)
	if err != nil {
		return nil, err
	}
	return s.AdmitBlock(p, block, opts)
}

// AdmitBlock is Admit for an already decoded block.
func (s *ChainState) AdmitBlock(p crypto.Provider, block *consensus.Block, opts AdmitOptions) (*AdmitResult, error) {
	res, err := s.admitBlock(p, block, opts)
	if s.met != nil {
		if err != nil {
			code, ok := consensus.CodeOf(err)
			if !ok {
				code = consensus.ErrVerifier
			}
			s.met.BlocksRejected.WithLabelValues(string(code)).Inc()
		} else {
			s.met.BlocksAccepted.Inc()
			s.met.ScoreMicroNats.Observe(float64(res.Score.SMicro))
		}
	}
	return res, err
}

func (s *ChainState) admitBlock(p crypto.Provider, block *consensus.Block, opts AdmitOptions) (*AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &block.Header
	hash, err := h.Hash()
	if err != nil {
		return nil, err
	}
	if _, dup := s.byHash[hash]; dup {
		return nil, &consensus.Error{Code: consensus.ErrSchema, Msg: "block already admitted"}
	}
	if h.ChainID != s.chainID {
		return nil, &consensus.Error{Code: consensus.ErrChainIDMismatch, Msg: "wrong chain"}
	}

	// Linkage.
	var parent *IndexEntry
	if !h.IsGenesis() {
		var ok bool
		parent, ok = s.byHash[h.ParentHash]
		if !ok {
			return nil, &consensus.Error{Code: consensus.ErrParentUnknown, Msg: "parent not in index"}
		}
		if err := h.CheckLinkage(parent.Header); err != nil {
			return nil, err
		}
	} else if s.genesis != nil {
		return nil, &consensus.Error{Code: consensus.ErrSchema, Msg: "genesis already admitted"}
	} else if err := h.CheckLinkage(nil); err != nil {
		return nil, err
	}

	// Timestamp guards.
	if parent != nil {
		recent := s.recentTimestamps(parent, 11)
		if err := consensus.CheckTimestamp(
			h.Timestamp, parent.Header.Timestamp, recent,
			opts.LocalTime, opts.LocalTimeSet, s.pol.Retarget,
		); err != nil {
			return nil, err
		}
	}

	// Policy roots: both tables must match the loaded bundles
	// bit-exactly before anything is scored.
	poiesRoot, err := s.pol.Root()
	if err != nil {
		return nil, err
	}
	if consensus.Hash(poiesRoot) != h.PolicyRoots.PoIES {
		return nil, &consensus.Error{Code: consensus.ErrPolicyRootMismatch, Msg: "PoIES policy root mismatch"}
	}
	algRoot, err := s.algs.Root()
	if err != nil {
		return nil, err
	}
	if consensus.Hash(algRoot) != h.PolicyRoots.AlgPolicy {
		return nil, &consensus.Error{Code: consensus.ErrPolicyRootMismatch, Msg: "algorithm policy root mismatch"}
	}

	// Declared Θ against the locally recomputed expectation.
	expectedTheta := s.pol.Retarget.ThetaMinMicro
	if parent != nil {
		expectedTheta = parent.Controller.ThetaMicro
	} else if h.Theta >= s.pol.Retarget.ThetaMinMicro && h.Theta <= s.pol.Retarget.ThetaMaxMicro {
		// Genesis declares the seed Θ within clamps.
		expectedTheta = h.Theta
	}
	if err := consensus.CheckTheta(h.Theta, expectedTheta); err != nil {
		return nil, err
	}

	// Body commitments and transactions.
	if err := block.CheckRoots(); err != nil {
		return nil, err
	}
	for i := range block.Txs {
		if err := block.Txs[i].Verify(p, s.algs, s.chainID); err != nil {
			return nil, err
		}
	}

	// Nullifier uniqueness: collisions with the branch's live set or
	// within the block itself reject the whole block. Uniqueness is a
	// per-chain property, so side branches are checked against their
	// own ancestry, not the head's.
	live := s.nullifierViewFor(parent)
	seen := make(map[consensus.Hash]struct{}, len(block.Proofs))
	for i := range block.Proofs {
		n := block.Proofs[i].Nullifier
		if exp, ok := live[n]; ok && exp >= h.Number {
			return nil, &consensus.Error{Code: consensus.ErrNullifierReuse, Msg: "nullifier live in chain state"}
		}
		if _, dup := seen[n]; dup {
			return nil, &consensus.Error{Code: consensus.ErrNullifierReuse, Msg: "nullifier duplicated in block"}
		}
		seen[n] = struct{}{}
	}

	// Proof verification, parallel per envelope. A failed envelope
	// contributes zero ψ; the block survives unless S falls below Θ.
	vctx := &proofs.Context{
		ChainID:    h.ChainID,
		Height:     h.Number,
		Timestamp:  h.Timestamp,
		ParentHash: h.ParentHash,
		MixSeed:    h.MixSeed,
		Beacon: func(height uint64) [32]byte {
			return s.beaconAt(parent, height)
		},
		Policy:    s.pol,
		AlgPolicy: s.algs,
		Provider:  p,
	}
	results := proofs.VerifyAll(vctx, block.Proofs, opts.Workers)

	scored := make([]consensus.ScoredEnvelope, len(block.Proofs))
	for i := range block.Proofs {
		kind, _ := block.Proofs[i].Kind()
		scored[i] = consensus.ScoredEnvelope{
			Index:     i,
			Kind:      kind,
			Nullifier: block.Proofs[i].Nullifier,
			Aux:       results[i].Aux,
		}
		if results[i].Err == nil {
			scored[i].Metrics = results[i].Metrics
		} else {
			log.Debugf("envelope %d (%x) failed: %v", i, block.Proofs[i].Nullifier[:8], results[i].Err)
		}
	}

	// Scoring and the acceptance predicate.
	draw := consensus.LotteryDraw(h)
	score, err := consensus.Score(s.pol, h.PolicyRoots.PoIES, draw, scored)
	if err != nil {
		return nil, err
	}
	proofsRoot, err := consensus.ProofsRoot(score.Receipts)
	if err != nil {
		return nil, err
	}
	if proofsRoot != h.ProofsRoot {
		return nil, &consensus.Error{Code: consensus.ErrSchema, Msg: "proofsRoot does not commit to the receipts"}
	}
	if !consensus.Accept(score.SMicro, h.Theta) {
		return nil, &consensus.Error{Code: consensus.ErrAcceptanceFailed, Msg: "score below threshold"}
	}

	// Admission: all checks passed, mutate state.
	work := consensus.EffectiveWork(score.SMicro, h.Theta, s.pol.ForkChoice.DeltaCapMicroNats)
	entry := &IndexEntry{
		Header:        h,
		Hash:          hash,
		EffectiveWork: work,
		Status:        StatusValid,
	}
	var dt uint64
	if parent != nil {
		entry.CumulativeWork, err = munat.AddU64(parent.CumulativeWork, work)
		if err != nil {
			return nil, &consensus.Error{Code: consensus.ErrCapViolation, Msg: "cumulative work overflow"}
		}
		dt =h.Timestamp - parent.Header.Timestamp
		entry.Controller, err = consensus.StepController(parent.Controller, h.Number, dt, s.pol.Retarget)
		if err != nil {
			return nil, err
		}
	} else {
		entry.CumulativeWork = work
		entry.Controller = consensus.GenesisController(h.Theta)
	}
	for i := range block.Proofs {
		entry.Nullifiers = append(entry.Nullifiers, block.Proofs[i].Nullifier)
	}

	s.byHash[hash] = entry
	if parent == nil {
		s.genesis = entry
	}

	res := &AdmitResult{Hash: hash, Score: score, Work: work}

	// Fork choice.
	switch {
	case s.best == nil:
		s.applyExtension(entry)
		res.IsHead = true

	case parent != nil && parent == s.best:
		// Simple extension of the best tip.
		s.applyExtension(entry)
		res.IsHead = true

	default:
		if s.compareTips(entry, s.best) > 0 {
			fork := s.forkPoint(s.best, entry)
			if err := s.reorgAllowed(s.best, entry, fork); err != nil {
				entry.Status = StatusValid
				res.RefusedReorg = err
				log.Infof("block %x admitted on side branch: %v", hash[:8], err)
			} else {
				s.switchHead(entry)
				res.IsHead = true
			}
		}
	}

	log.Debugf("admitted %x height=%d S=%d theta=%d head=%v",
		hash[:8], h.Number, score.SMicro, h.Theta, res.IsHead)
	return res, nil
}

// applyExtension advances the head onto a child of the current best
// tip (or onto genesis) and registers its nullifiers.
func (s *ChainState) applyExtension(e *IndexEntry) {
	ttl := s.pol.NullifierTTL
	for _, n := range e.Nullifiers {
		s.nullifiers[n] = e.Header.Number + ttl
	}
	e.Status = StatusOnHead
	s.best = e
	s.pruneExpiredNullifiers(e.Header.Number)
	s.notify(HeadUpdate{Added: []*consensus.Header{e.Header}})
}
