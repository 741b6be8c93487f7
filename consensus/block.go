package consensus

import (
	"encoding/binary"

	"animica.dev/core/codec"
	"animica.dev/core/policy"
)

// Block is the full wire object: the sealed header followed by the
// canonical transaction and proof-envelope arrays.
type Block struct {
	Header Header     `cbor:"header"`
	Txs    []Tx       `cbor:"txs"`
	Proofs []Envelope `cbor:"proofs"`
}

// Encode returns the canonical CBOR bytes of the block.
func (b *Block) Encode() ([]byte, error) {
	return codec.Encode(b)
}

// DecodeBlock strictly decodes block bytes and enforces the policy's
// size bounds. Bound violations are hard rejections at decode time.
func DecodeBlock(data []byte, pol *policy.Bundle) (*Block, error) {
	if pol != nil && uint64(len(data)) > pol.MaxBlockBytes {
		return nil, cerr(ErrCapViolation, "block size %d exceeds bound %d", len(data), pol.MaxBlockBytes)
	}
	var b Block
	if err := codec.Decode(data, &b); err != nil {
		return nil, err
	}
	if b.Header.Version != HeaderVersion {
		return nil, cerr(ErrSchema, "header version %d unsupported", b.Header.Version)
	}
	if pol != nil {
		if uint64(len(b.Proofs)) > uint64(pol.MaxProofEnvelopes) {
			return nil, cerr(ErrCapViolation, "proof pack size %d exceeds bound %d", len(b.Proofs), pol.MaxProofEnvelopes)
		}
		for i := range b.Proofs {
			if uint64(len(b.Proofs[i].Body)) > pol.MaxEnvelopeBytes {
				return nil, cerr(ErrCapViolation, "envelope %d body exceeds bound", i)
			}
		}
	}
	return &b, nil
}

// TxRoot computes the Merkle root over the canonical transaction
// encodings in block order.
func (b *Block) TxRoot() (Hash, error) {
	leaves := make([][]byte, len(b.Txs))
	for i := range b.Txs {
		enc, err := b.Txs[i].Encode()
		if err != nil {
			return Hash{}, err
		}
		leaves[i] = enc
	}
	return Hash(codec.MerkleRoot(leaves)), nil
}

// CheckRoots verifies the header's txRoot against the block body. The
// proofsRoot is checked after scoring, against the emitted receipts.
func (b *Block) CheckRoots() error {
	txRoot, err := b.TxRoot()
	if err != nil {
		return err
	}
	if txRoot != b.Header.TxRoot {
		return cerr(ErrSchema, "txRoot does not commit to the transaction set")
	}
	return nil
}

// LotteryDraw derives the block's hash-lottery draw from the sealed
// header: H("nonce-v1" || 0x00 || chainId || number || parentHash ||
// mixSeed || nonce). The draw exists for every block, with or without
// proof envelopes.
func LotteryDraw(h *Header) [32]byte {
	pre := make([]byte, 0, 4+8+32+32+8)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], h.ChainID)
	pre = append(pre, u32[:]...)
	var u64b [8]byte
	binary.BigEndian.PutUint64(u64b[:], h.Number)
	pre = append(pre, u64b[:]...)
	pre = append(pre, h.ParentHash[:]...)
	pre = append(pre, h.MixSeed[:]...)
	pre = append(pre, h.Nonce[:]...)
	return codec.HashDomain(codec.DomainNonce, pre)
}
