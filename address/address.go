// Package address implements Animica account addresses: a u16
// big-endian algorithm id followed by the "addr-v1" domain-tagged
// SHA3-256 digest of the public key,
// rendered as bech32m with HRP "anim". The bech32m checksum constant is
// strictly required; classic bech32 strings are rejected.
package address

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"animica.dev/core/codec"
	"animica.dev/core/crypto"
)

// HRP is the human-readable prefix for all Animica addresses.
const HRP = "anim"

// PayloadSize is alg_id (2) plus the pubkey digest (32).
const PayloadSize = 34

// Address is the raw 34-byte payload.
type Address [PayloadSize]byte

// MarshalCBOR encodes the address as a 34-byte definite byte string.
func (a Address) MarshalCBOR() ([]byte, error) {
	out := make([]byte, PayloadSize+2)
	out[0] = 0x58 // major type 2, one-byte length
	out[1] = PayloadSize
	copy(out[2:], a[:])
	return out, nil
}

// UnmarshalCBOR accepts exactly the canonical 34-byte byte string.
func (a *Address) UnmarshalCBOR(data []byte) error {
	if len(data) != PayloadSize+2 || data[0] != 0x58 || data[1] != PayloadSize {
		return fmt.Errorf("address: expected %d-byte string", PayloadSize)
	}
	copy(a[:], data[2:])
	return nil
}

// Derive computes the address bound to (alg, pubkey).
func Derive(alg crypto.AlgID, pubkey []byte) Address {
	digest := codec.HashDomain(codec.DomainAddr, pubkey)
	var a Address
	binary.BigEndian.PutUint16(a[:2], uint16(alg))
	copy(a[2:], digest[:])
	return a
}

// Alg returns the embedded algorithm id.
func (a Address) Alg() crypto.AlgID {
	return crypto.AlgID(binary.BigEndian.Uint16(a[:2]))
}

// KeyDigest returns the embedded pubkey digest.
func (a Address) KeyDigest() [32]byte {
	var out [32]byte
	copy(out[:], a[2:])
	return out
}

// String encodes the address as bech32m.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		// 34 fixed bytes always convert.
		panic(fmt.Sprintf("address: convert bits: %v", err))
	}
	s, err := bech32.EncodeM(HRP, conv)
	if err != nil {
		panic(fmt.Sprintf("address: encode: %v", err))
	}
	return s
}

// Parse decodes a bech32m address string and validates HRP, checksum
// constant, and payload length.
func Parse(s string) (Address, error) {
	var a Address
	hrp, data, version, err := bech32.DecodeGeneric(s)
	if err != nil {
		return a, fmt.Errorf("address: %w", err)
	}
	if version != bech32.VersionM {
		return a, fmt.Errorf("address: bech32m checksum required")
	}
	if hrp != HRP {
		return a, fmt.Errorf("address: unexpected prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return a, fmt.Errorf("address: %w", err)
	}
	if len(raw) != PayloadSize {
		return a, fmt.Errorf("address: payload must be %d bytes, got %d", PayloadSize, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}
