package proofs

import (
	"animica.dev/core/codec"
	"animica.dev/core/consensus"
	"animica.dev/core/munat"
)

const storageTicketDomain = "storage-ticket-v1"

// StorageWindow is one heartbeat window anchored to the chain.
type StorageWindow struct {
	StartHeight uint64 `cbor:"start"`
	EndHeight   uint64 `cbor:"end"`
	// Anchor must equal the beacon value at StartHeight, proving the
	// window was opened after that block existed.
	Anchor consensus.Hash `cbor:"anchor"`
	// Ticket, when present, is the retrieval challenge response.
	Ticket []byte `cbor:"ticket,omitempty"`
}

// StorageBody is the storage heartbeat envelope body.
type StorageBody struct {
	ProviderID consensus.Hash  `cbor:"providerId"`
	Windows    []StorageWindow `cbor:"windows"`
	// CapacityMicro is the committed capacity in micro-units.
	CapacityMicro uint64 `cbor:"capacity"`
	RedundancyPPM uint64 `cbor:"redundancy"`
}

// StorageTicket derives the expected retrieval ticket for a window.
func StorageTicket(anchor consensus.Hash, providerID consensus.Hash) []byte {
	pre := make([]byte, 0, len(storageTicketDomain)+64)
	pre = append(pre, storageTicketDomain...)
	pre = append(pre, anchor[:]...)
	pre = append(pre, providerID[:]...)
	sum := codec.Sum256(pre)
	return sum[:]
}

func verifyStorage(ctx *Context, body []byte) (consensus.ProofMetrics, map[string]uint64, error) {
	var b StorageBody
	if err := codec.Decode(body, &b); err != nil {
		return nil, nil, verr(ErrSchema, "storage body: %v", err)
	}
	if len(b.Windows) == 0 {
		return nil, nil, verr(ErrSchema, "storage: no windows")
	}
	if b.CapacityMicro == 0 {
		return nil, nil, verr(ErrSchema, "storage: zero capacity")
	}

	if !ctx.Budget.Spend(int64(len(b.Windows)) * 8) {
		return nil, nil, verr(ErrBudget, "window budget exhausted")
	}

	// Availability is the fraction of windows whose anchoring (and
	// ticket, when present) holds. Anchors that cannot be checked at
	// all are a binding failure, not low availability.
	var available uint64
	for i, w := range b.Windows {
		if w.EndHeight <= w.StartHeight || w.EndHeight >= ctx.Height {
			return nil, nil, verr(ErrBinding, "window %d not within chain history", i)
		}
		beacon, err := ctx.beaconAt(w.StartHeight)
		if err != nil {
			return nil, nil, err
		}
		if w.Anchor != consensus.Hash(beacon) {
			continue
		}
		if w.Ticket != nil {
			want := StorageTicket(w.Anchor, b.ProviderID)
			if len(w.Ticket) != len(want) {
				continue
			}
			match := true
			for j := range want {
				if w.Ticket[j] != want[j] {
					match = false
					break
				}
			}
			if !match {
				continue
			}
		}
		available++
	}
	if available == 0 {
		return nil, nil, verr(ErrProof, "no window verified")
	}
	availabilityPPM := available * 1_000_000 / uint64(len(b.Windows))

	// units = capacity · availability · redundancy.
	units, err := munat.MulDiv(b.CapacityMicro, availabilityPPM, munat.Scale)
	if err != nil {
		return nil, nil, verr(ErrProof, "storage units overflow")
	}
	redundancy := b.RedundancyPPM
	if redundancy > munat.Scale {
		redundancy = munat.Scale
	}
	units, err = munat.MulDiv(units, redundancy, munat.Scale)
	if err != nil {
		return nil, nil, verr(ErrProof, "storage units overflow")
	}

	m := consensus.StorageMetrics{
		UnitsMicro:      units,
		RedundancyPPM:   redundancy,
		AvailabilityPPM: availabilityPPM,
		CapacityMicro:   b.CapacityMicro,
	}
	aux := map[string]uint64{
		"units":        units,
		"availability": availabilityPPM,
		"redundancy":   redundancy,
		"capacity":     b.CapacityMicro,
	}
	return m, aux, nil
}
