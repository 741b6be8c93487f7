package node

import (
	"fmt"

	"animica.dev/core/consensus"
	"animica.dev/core/policy"
)

// Restore rebuilds a ChainState from persisted entries. The best tip
// is named by hash; linkage is sanity-checked but the heavy acceptance
// checks are not rerun — the store only ever holds blocks that already
// passed admission.
func Restore(
	chainID uint32,
	pol *policy.Bundle,
	algs *policy.AlgBundle,
	entries map[consensus.Hash]*IndexEntry,
	bestHash consensus.Hash,
	nullifiers map[consensus.Hash]uint64,
) (*ChainState, error) {
	s := NewChainState(chainID, pol, algs)
	for hash, e := range entries {
		if e.Header == nil {
			return nil, fmt.Errorf("restore: entry %x has no header", hash[:8])
		}
		if !e.Header.IsGenesis() {
			if _, ok := entries[e.Header.ParentHash]; !ok {
				return nil, fmt.Errorf("restore: entry %x has unknown parent", hash[:8])
			}
		} else {
			s.genesis = e
		}
		s.byHash[hash] = e
	}
	best, ok := s.byHash[bestHash]
	if !ok {
		return nil, fmt.Errorf("restore: best tip %x not among entries", bestHash[:8])
	}
	s.best = best
	if nullifiers != nil {
		s.nullifiers = nullifiers
	}
	return s, nil
}
