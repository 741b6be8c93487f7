package node

import "animica.dev/core/consensus"

// HeadUpdate is the downstream event emitted on every head change.
// Both lists are ordered parent-to-child; Removed is empty for simple
// extensions.
type HeadUpdate struct {
	Removed []*consensus.Header
	Added   []*consensus.Header
}

// SubscribeHead registers a buffered head-update channel. Consumers
// that fall behind lose the oldest updates rather than blocking
// admission.
func (s *ChainState) SubscribeHead(buffer int) <-chan HeadUpdate {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan HeadUpdate, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// notify fans the update out without blocking. Called with the state
// lock held.
func (s *ChainState) notify(u HeadUpdate) {
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// Drop oldest, then retry once so the stream stays live.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

func headersOf(entries []*IndexEntry) []*consensus.Header {
	out := make([]*consensus.Header, len(entries))
	for i, e := range entries {
		out[i] = e.Header
	}
	return out
}
