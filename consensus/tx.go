package consensus

import (
	"github.com/holiman/uint256"

	"animica.dev/core/address"
	"animica.dev/core/codec"
	"animica.dev/core/crypto"
	"animica.dev/core/policy"
)

// TxKind discriminates the three transaction shapes.
type TxKind uint8

const (
	TxTransfer TxKind = 1
	TxDeploy   TxKind = 2
	TxCall     TxKind = 3
)

// U256 is an unsigned 256-bit value encoded as a fixed 32-byte
// big-endian byte string.
type U256 struct {
	uint256.Int
}

// NewU256 wraps a uint64 amount.
func NewU256(v uint64) U256 {
	var u U256
	u.SetUint64(v)
	return u
}

// MarshalCBOR encodes the value as a 32-byte big-endian byte string.
func (v U256) MarshalCBOR() ([]byte, error) {
	out := make([]byte, 34)
	out[0] = 0x58
	out[1] = 32
	b32 := v.Bytes32()
	copy(out[2:], b32[:])
	return out, nil
}

// UnmarshalCBOR accepts exactly the canonical 32-byte byte string.
func (v *U256) UnmarshalCBOR(data []byte) error {
	if len(data) != 34 || data[0] != 0x58 || data[1] != 32 {
		return cerr(ErrSchema, "value must be a 32-byte string")
	}
	v.SetBytes(data[2:])
	return nil
}

// AccessItem pre-declares state touched by a call.
type AccessItem struct {
	Address     address.Address `cbor:"address"`
	StorageKeys []Hash          `cbor:"storageKeys"`
}

// Signature is the transaction authorization tuple.
type Signature struct {
	Alg    uint16 `cbor:"alg"`
	Pubkey []byte `cbor:"pubkey"`
	Sig    []byte `cbor:"sig"`
}

// UnsignedTx is the signing view: everything except the signature. The
// preimage is "tx-v1" || 0x00 || canonical_cbor(unsigned).
type UnsignedTx struct {
	ChainID    uint32           `cbor:"chainId"`
	From       address.Address  `cbor:"from"`
	Nonce      uint64           `cbor:"nonce"`
	Kind       TxKind           `cbor:"kind"`
	To         *address.Address `cbor:"to"` // null for deploy
	Value      U256             `cbor:"value"`
	GasLimit   uint64           `cbor:"gasLimit"`
	GasPrice   uint64           `cbor:"gasPrice"`
	AccessList []AccessItem     `cbor:"accessList,omitempty"`
	Data       []byte           `cbor:"data"`
}

// Tx is the full signed transaction.
type Tx struct {
	UnsignedTx
	Signature Signature `cbor:"signature"`
}

// Encode returns the canonical CBOR bytes of the signed transaction.
func (tx *Tx) Encode() ([]byte, error) {
	return codec.Encode(tx)
}

// DecodeTx strictly decodes canonical transaction bytes.
func DecodeTx(data []byte) (*Tx, error) {
	var tx Tx
	if err := codec.Decode(data, &tx); err != nil {
		return nil, err
	}
	if err := tx.checkShape(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (tx *Tx) checkShape() error {
	switch tx.Kind {
	case TxTransfer, TxCall:
		if tx.To == nil {
			return cerr(ErrSchema, "kind %d requires a recipient", tx.Kind)
		}
	case TxDeploy:
		if tx.To != nil {
			return cerr(ErrSchema, "deploy must have null recipient")
		}
	default:
		return cerr(ErrSchema, "unknown tx kind %d", tx.Kind)
	}
	return nil
}

// SigningDigest returns the 32-byte digest signed by the sender.
func (tx *Tx) SigningDigest() ([32]byte, error) {
	enc, err := codec.Encode(&tx.UnsignedTx)
	if err != nil {
		return [32]byte{}, err
	}
	return codec.HashDomain(codec.DomainTx, enc), nil
}

// ID returns the transaction identifier: the signing digest. Two
// transactions with the same unsigned body are the same transaction
// regardless of signature encoding.
func (tx *Tx) ID() ([32]byte, error) {
	return tx.SigningDigest()
}

// Verify checks the transaction against the chain id, the algorithm
// policy, the address binding, and the signature itself.
func (tx *Tx) Verify(p crypto.Provider, algs *policy.AlgBundle, chainID uint32) error {
	if tx.ChainID != chainID {
		return cerr(ErrChainIDMismatch, "tx chain id %d, want %d", tx.ChainID, chainID)
	}
	if err := tx.checkShape(); err != nil {
		return err
	}

	alg := crypto.AlgID(tx.Signature.Alg)
	rule, ok := algs.RuleFor(alg)
	if !ok {
		return cerr(ErrSignature, "algorithm %d not allowed by policy", tx.Signature.Alg)
	}
	if len(tx.Signature.Pubkey) == 0 || uint64(len(tx.Signature.Pubkey)) > uint64(rule.MaxPubkeyBytes) {
		return cerr(ErrSignature, "pubkey size %d out of policy bounds", len(tx.Signature.Pubkey))
	}
	if len(tx.Signature.Sig) == 0 || uint64(len(tx.Signature.Sig)) > uint64(rule.MaxSigBytes) {
		return cerr(ErrSignature, "signature size %d out of policy bounds", len(tx.Signature.Sig))
	}

	if address.Derive(alg, tx.Signature.Pubkey) != tx.From {
		return cerr(ErrSignature, "sender address does not bind the public key")
	}

	digest, err := tx.SigningDigest()
	if err != nil {
		return err
	}
	if !p.VerifySignature(alg, tx.Signature.Pubkey, tx.Signature.Sig, digest) {
		return cerr(ErrSignature, "signature invalid")
	}
	return nil
}
