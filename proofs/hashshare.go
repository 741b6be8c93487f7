package proofs

import (
	"encoding/binary"

	"animica.dev/core/codec"
	"animica.dev/core/consensus"
	"animica.dev/core/munat"
)

// HashShareBody is a supplementary lottery share bound to the
// enclosing header. Its draw uses the share's own nonce under the same
// nonce domain as the block lottery.
type HashShareBody struct {
	ChainID    uint32         `cbor:"chainId"`
	Height     uint64         `cbor:"height"`
	ParentHash consensus.Hash `cbor:"parentHash"`
	MixSeed    consensus.Hash `cbor:"mixSeed"`
	Nonce      codec.Bytes8   `cbor:"nonce"`
	// TargetMicro is the share difficulty target in µ-nats.
	TargetMicro uint64 `cbor:"target"`
}

// ShareDraw derives the share's u-draw under the nonce domain.
func ShareDraw(b *HashShareBody) [32]byte {
	pre := make([]byte, 0, 4+8+32+32+8)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], b.ChainID)
	pre = append(pre, u32[:]...)
	var u64b [8]byte
	binary.BigEndian.PutUint64(u64b[:], b.Height)
	pre = append(pre, u64b[:]...)
	pre = append(pre, b.ParentHash[:]...)
	pre = append(pre, b.MixSeed[:]...)
	pre = append(pre, b.Nonce[:]...)
	return codec.HashDomain(codec.DomainNonce, pre)
}

func verifyHashShare(ctx *Context, body []byte) (consensus.ProofMetrics, map[string]uint64, error) {
	var b HashShareBody
	if err := codec.Decode(body, &b); err != nil {
		return nil, nil, verr(ErrSchema, "hashshare body: %v", err)
	}
	if b.TargetMicro == 0 {
		return nil, nil, verr(ErrSchema, "hashshare: zero target")
	}

	// Header binding: the share is only valid inside this block.
	if b.ChainID != ctx.ChainID || b.Height != ctx.Height ||
		b.ParentHash != ctx.ParentHash || b.MixSeed != ctx.MixSeed {
		return nil, nil, verr(ErrBinding, "hashshare not bound to this header")
	}

	if !ctx.Budget.Spend(64) {
		return nil, nil, verr(ErrBudget, "hashshare budget exhausted")
	}

	draw := ShareDraw(&b)
	lambda := munat.NegLnU256(draw)
	dRatio, err := munat.MulDiv(lambda, munat.Scale, b.TargetMicro)
	if err != nil {
		return nil, nil, verr(ErrProof, "hashshare ratio overflow")
	}

	m := consensus.HashShareMetrics{
		Draw:       draw,
		DRatioPPM:  dRatio,
		TargetPass: lambda >= b.TargetMicro,
	}
	aux := map[string]uint64{
		"dRatio": dRatio,
		"target": b.TargetMicro,
	}
	return m, aux, nil
}
