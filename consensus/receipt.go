package consensus

import (
	"animica.dev/core/codec"
)

// ProofReceipt is the consensus-visible summary of one scored
// envelope, committed under proofsRoot. Full envelopes may be pruned;
// receipts are permanent and carry enough to re-derive ψ without
// rerunning the heavy verifier.
type ProofReceipt struct {
	TypeID    uint8 `cbor:"typeId"`
	Nullifier Hash  `cbor:"nullifier"`

	// UnitsMicro is the ψ input after verification, before clamps.
	UnitsMicro uint64 `cbor:"units"`
	// PsiMicro is the effective contribution after per-kind cap,
	// escort, and total scaling.
	PsiMicro uint64 `cbor:"psi"`

	// Aux holds the kind-specific metric subset needed to audit ψ
	// (e.g. traps ratio, qubits, iterations). Keys are short metric
	// names; values are micro-scaled or raw counts as the kind defines.
	Aux map[string]uint64 `cbor:"aux,omitempty"`
}

// Encode returns the receipt's canonical CBOR bytes.
func (r *ProofReceipt) Encode() ([]byte, error) {
	return codec.Encode(r)
}

// ProofsRoot computes the Merkle root over canonical receipts in
// envelope order.
func ProofsRoot(receipts []ProofReceipt) (Hash, error) {
	leaves := make([][]byte, len(receipts))
	for i := range receipts {
		enc, err := receipts[i].Encode()
		if err != nil {
			return Hash{}, err
		}
		leaves[i] = enc
	}
	return Hash(codec.MerkleRoot(leaves)), nil
}
