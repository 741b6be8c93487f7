package consensus

import (
	"animica.dev/core/codec"
)

// HeaderVersion is the current sealed-header schema version.
const HeaderVersion uint16 = 1

// Hash is a 32-byte consensus digest as it appears on the wire.
type Hash = codec.Bytes32

// Nonce is the 8-byte header nonce.
type Nonce = codec.Bytes8

// PolicyRoots commits the header to the two external policy tables.
type PolicyRoots struct {
	PoIES     Hash `cbor:"poies"`
	AlgPolicy Hash `cbor:"algPolicy"`
}

// Header is the sealed block header. Once encoded its bytes never
// change; the block hash is the domain-tagged hash of the canonical
// encoding.
type Header struct {
	ParentHash   Hash        `cbor:"parentHash"`
	Number       uint64      `cbor:"number"`
	Timestamp    uint64      `cbor:"timestamp"`
	ChainID      uint32      `cbor:"chainId"`
	StateRoot    Hash        `cbor:"stateRoot"`
	TxRoot       Hash        `cbor:"txRoot"`
	ReceiptsRoot Hash        `cbor:"receiptsRoot"`
	ProofsRoot   Hash        `cbor:"proofsRoot"`
	DARoot       Hash        `cbor:"daRoot"`
	MixSeed      Hash        `cbor:"mixSeed"`
	Nonce        Nonce       `cbor:"nonce"`
	Theta        uint64      `cbor:"theta"` // µ-nats
	PolicyRoots  PolicyRoots `cbor:"policyRoots"`
	Version      uint16      `cbor:"version"`
}

// Encode returns the canonical CBOR bytes of h.
func (h *Header) Encode() ([]byte, error) {
	return codec.Encode(h)
}

// DecodeHeader strictly decodes canonical header bytes.
func DecodeHeader(data []byte) (*Header, error) {
	var h Header
	if err := codec.Decode(data, &h); err != nil {
		return nil, err
	}
	if h.Version != HeaderVersion {
		return nil, cerr(ErrSchema, "header version %d unsupported", h.Version)
	}
	return &h, nil
}

// Hash returns H("header-v1" || 0x00 || canonical_cbor(header)).
func (h *Header) Hash() (Hash, error) {
	enc, err := h.Encode()
	if err != nil {
		return Hash{}, err
	}
	return Hash(codec.HashDomain(codec.DomainHeader, enc)), nil
}

// IsGenesis reports whether h is a genesis header: number zero and an
// all-zero parent hash.
func (h *Header) IsGenesis() bool {
	var zero Hash
	return h.Number == 0 && h.ParentHash == zero
}

// CheckLinkage verifies parent binding: genesis has the zero parent,
// every other header names its parent's hash and the next number.
func (h *Header) CheckLinkage(parent *Header) error {
	var zero Hash
	if h.Number == 0 {
		if h.ParentHash != zero {
			return cerr(ErrSchema, "genesis must have zero parent")
		}
		if parent != nil {
			return cerr(ErrSchema, "genesis cannot have a parent")
		}
		return nil
	}
	if parent == nil {
		return cerr(ErrParentUnknown, "parent %x unknown", h.ParentHash[:8])
	}
	ph, err := parent.Hash()
	if err != nil {
		return err
	}
	if h.ParentHash != ph {
		return cerr(ErrParentUnknown, "parent hash mismatch")
	}
	if h.Number != parent.Number+1 {
		return cerr(ErrSchema, "number %d does not follow %d", h.Number, parent.Number)
	}
	if parent.ChainID != h.ChainID {
		return cerr(ErrChainIDMismatch, "chain id %d under parent %d", h.ChainID, parent.ChainID)
	}
	return nil
}
