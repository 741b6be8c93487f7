package node

import (
	"sync"

	"animica.dev/core/consensus"
	"animica.dev/core/metrics"
	"animica.dev/core/policy"
)

// BlockStatus tracks an admitted header's relation to the best chain.
type BlockStatus byte

const (
	StatusUnknown  BlockStatus = 0
	StatusValid    BlockStatus = 1
	StatusOnHead   BlockStatus = 2
	StatusOrphaned BlockStatus = 3
)

// IndexEntry is the per-header bookkeeping record.
type IndexEntry struct {
	Header *consensus.Header
	Hash   consensus.Hash

	// CumulativeWork is Σ effective work along the path from genesis,
	// in µ-nats.
	CumulativeWork uint64
	// EffectiveWork is this block's own w = clamp(S, Θ, Θ+Δcap).
	EffectiveWork uint64
	// Controller is the difficulty state after this block; its Θ is
	// the expectation for the next child.
	Controller consensus.ControllerState
	// Nullifiers are the proof nullifiers this block inserted, kept
	// for transactional reorg reversal.
	Nullifiers []consensus.Hash

	Status BlockStatus
}

// ChainState is the single shared mutable structure of the core. All
// mutation goes through the serialized admission path; readers get a
// consistent snapshot under the same lock.
type ChainState struct {
	mu sync.RWMutex

	chainID uint32
	pol     *policy.Bundle
	algs    *policy.AlgBundle

	byHash   map[consensus.Hash]*IndexEntry
	best     *IndexEntry
	genesis  *IndexEntry
	// nullifiers maps each nullifier on the head chain → expiry height;
	// expired entries stay until pruned.
	nullifiers map[consensus.Hash]uint64

	subs []chan HeadUpdate
	met  *metrics.Admission
}

// SetMetrics attaches admission collectors. Passing nil detaches.
func (s *ChainState) SetMetrics(m *metrics.Admission) {
	s.mu.Lock()
	s.met = m
	s.mu.Unlock()
}

// NewChainState creates an empty chain for the given policy bundles.
func NewChainState(chainID uint32, pol *policy.Bundle, algs *policy.AlgBundle) *ChainState {
	return &ChainState{
		chainID:    chainID,
		pol:        pol,
		algs:       algs,
		byHash:     make(map[consensus.Hash]*IndexEntry),
		nullifiers: make(map[consensus.Hash]uint64),
	}
}

// Lookup returns the index entry for a header hash.
func (s *ChainState) Lookup(hash consensus.Hash) (*IndexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byHash[hash]
	return e, ok
}

// Best returns the current best tip entry, or nil before genesis.
func (s *ChainState) Best() *IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.best
}

// Height returns the best tip height, or 0 before genesis.
func (s *ChainState) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.best == nil {
		return 0
	}
	return s.best.Header.Number
}

// NullifierLive reports whether a nullifier is live at the current
// head.
func (s *ChainState) NullifierLive(n consensus.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.nullifiers[n]
	return ok && s.best != nil && exp >= s.best.Header.Number
}

// beaconAt walks the branch ending at parent and returns the mix seed
// of the ancestor at the given height. It is the randomness-beacon
// history the proof verifiers bind to.
func (s *ChainState) beaconAt(parent *IndexEntry, height uint64) [32]byte {
	cur := parent
	for cur != nil && cur.Header.Number > height {
		cur = s.byHash[cur.Header.ParentHash]
	}
	if cur == nil || cur.Header.Number != height {
		return [32]byte{}
	}
	return cur.Header.MixSeed
}

// recentTimestamps collects up to n ancestor timestamps ending at
// parent, oldest first.
func (s *ChainState) recentTimestamps(parent *IndexEntry, n int) []uint64 {
	out := make([]uint64, 0, n)
	cur := parent
	for cur != nil && len(out) < n {
		out = append(out, cur.Header.Timestamp)
		cur = s.byHash[cur.Header.ParentHash]
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// pathToAncestor returns entries from ancestor's child up to tip,
// parent-to-child order.
func (s *ChainState) pathToAncestor(tip, ancestor *IndexEntry) []*IndexEntry {
	var out []*IndexEntry
	cur := tip
	for cur != nil && cur != ancestor {
		out = append(out, cur)
		cur = s.byHash[cur.Header.ParentHash]
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// forkPoint finds the lowest common ancestor of two entries.
func (s *ChainState) forkPoint(a, b *IndexEntry) *IndexEntry {
	for a != nil && b != nil && a != b {
		if a.Header.Number > b.Header.Number {
			a = s.byHash[a.Header.ParentHash]
			continue
		}
		if b.Header.Number > a.Header.Number {
			b = s.byHash[b.Header.ParentHash]
			continue
		}
		a = s.byHash[a.Header.ParentHash]
		b = s.byHash[b.Header.ParentHash]
	}
	if a == b {
		return a
	}
	return nil
}

// nullifierViewFor returns the live nullifier set as seen from a
// prospective child of parent. For head extensions that is the live
// set itself; for side branches the view is rebased across the fork
// point.
func (s *ChainState) nullifierViewFor(parent *IndexEntry) map[consensus.Hash]uint64 {
	if parent == nil || parent == s.best || s.best == nil {
		return s.nullifiers
	}
	fork := s.forkPoint(s.best, parent)
	view := make(map[consensus.Hash]uint64, len(s.nullifiers))
	for n, exp := range s.nullifiers {
		view[n] = exp
	}
	ttl := s.pol.NullifierTTL
	for _, e := range s.pathToAncestor(s.best, fork) {
		for _, n := range e.Nullifiers {
			delete(view, n)
		}
	}
	for _, e := range s.pathToAncestor(parent, fork) {
		for _, n := range e.Nullifiers {
			view[n] = e.Header.Number + ttl
		}
	}
	return view
}

// pruneExpiredNullifiers reclaims entries whose expiry is far enough
// below the head that no permissible reorg can resurrect them.
func (s *ChainState) pruneExpiredNullifiers(headHeight uint64) {
	grace := s.pol.ForkChoice.MaxReorgDepth
	for n, expiry := range s.nullifiers {
		if expiry+grace < headHeight {
			delete(s.nullifiers, n)
		}
	}
}
