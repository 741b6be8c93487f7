package node

import (
	"bytes"

	"animica.dev/core/consensus"
)

// compareTips imposes the strict total order between two tips:
// cumulative work outside the insensitivity band, then height, then
// the lexicographically smaller hash. It returns >0 when a is the
// better tip, <0 when b is, and never 0 for distinct hashes.
func (s *ChainState) compareTips(a, b *IndexEntry) int {
	eps := s.pol.ForkChoice.EpsilonWorkMicro
	var diff uint64
	var aHeavier bool
	if a.CumulativeWork >= b.CumulativeWork {
		diff = a.CumulativeWork - b.CumulativeWork
		aHeavier = true
	} else {
		diff = b.CumulativeWork - a.CumulativeWork
	}
	if diff > eps {
		if aHeavier {
			return 1
		}
		return -1
	}
	if a.Header.Number != b.Header.Number {
		if a.Header.Number > b.Header.Number {
			return 1
		}
		return -1
	}
	switch bytes.Compare(a.Hash[:], b.Hash[:]) {
	case -1:
		return 1 // smaller hash wins
	case 1:
		return -1
	default:
		return 0
	}
}

// reorgAllowed applies the reorg policy gates for switching from the
// current best tip to candidate. Depth and age are measured to the
// fork point; the work margin must clear the linear penalty, and old
// fork points additionally demand the hard threshold.
func (s *ChainState) reorgAllowed(best, candidate, fork *IndexEntry) error {
	fc := s.pol.ForkChoice

	if fork == nil {
		return &consensus.Error{Code: consensus.ErrReorgRefused, Msg: "no common ancestor"}
	}
	depth := best.Header.Number - fork.Header.Number
	if depth > fc.MaxReorgDepth {
		return &consensus.Error{Code: consensus.ErrReorgRefused, Msg: "fork depth exceeds maximum"}
	}

	var deltaW uint64
	if candidate.CumulativeWork > best.CumulativeWork {
		deltaW = candidate.CumulativeWork - best.CumulativeWork
	}

	// Age is measured in chain time between the fork point and the
	// candidate tip; wall clocks never enter fork choice.
	if candidate.Header.Timestamp > fork.Header.Timestamp {
		age := candidate.Header.Timestamp - fork.Header.Timestamp
		if age > fc.MaxReorgAgeSec && deltaW < fc.HardThresholdMicro {
			return &consensus.Error{Code: consensus.ErrReorgRefused, Msg: "stale fork point needs the hard work threshold"}
		}
	}

	threshold := fc.Tau0Micro + fc.SlopeMicroPerDepth*depth
	if deltaW < threshold {
		return &consensus.Error{Code: consensus.ErrReorgRefused, Msg: "work margin below linear reorg penalty"}
	}
	return nil
}

// switchHead performs the compound head switch: the nullifier set
// reverts the orphaned branch and applies the new one, and the head
// update stream carries both block lists parent-to-child. The swap is
// prepared on a copy and either fully applies or not at all.
func (s *ChainState) switchHead(newTip *IndexEntry) {
	old := s.best
	fork := s.forkPoint(old, newTip)

	removed := s.pathToAncestor(old, fork)
	added := s.pathToAncestor(newTip, fork)

	next := make(map[consensus.Hash]uint64, len(s.nullifiers))
	for n, exp := range s.nullifiers {
		next[n] = exp
	}
	for _, e := range removed {
		for _, n := range e.Nullifiers {
			delete(next, n)
		}
	}
	ttl := s.pol.NullifierTTL
	for _, e := range added {
		for _, n := range e.Nullifiers {
			next[n] = e.Header.Number + ttl
		}
	}
	s.nullifiers = next

	for _, e := range removed {
		e.Status = StatusOrphaned
	}
	for _, e := range added {
		e.Status = StatusOnHead
	}
	s.best = newTip
	s.pruneExpiredNullifiers(newTip.Header.Number)

	if len(removed) > 0 {
		log.Infof("reorg to %x: removed %d, added %d", newTip.Hash[:8], len(removed), len(added))
		if s.met != nil {
			s.met.HeadSwitches.Inc()
			s.met.ReorgDepth.Observe(float64(len(removed)))
		}
	}
	s.notify(HeadUpdate{Removed: headersOf(removed), Added: headersOf(added)})
}
