package codec

// Bytes32 is a fixed 32-byte value that encodes as a CBOR definite
// byte string. Go arrays would otherwise encode as integer arrays,
// which is not the wire form any consensus digest uses.
type Bytes32 [32]byte

// MarshalCBOR encodes the value as a 32-byte definite byte string.
func (b Bytes32) MarshalCBOR() ([]byte, error) {
	out := make([]byte, 34)
	out[0] = 0x58 // major type 2, one-byte length
	out[1] = 32
	copy(out[2:], b[:])
	return out, nil
}

// UnmarshalCBOR accepts exactly the canonical 32-byte byte string.
func (b *Bytes32) UnmarshalCBOR(data []byte) error {
	if len(data) != 34 || data[0] != 0x58 || data[1] != 32 {
		return schemaErr("expected 32-byte string")
	}
	copy(b[:], data[2:])
	return nil
}

// Bytes8 is a fixed 8-byte value (header nonce) encoded as a CBOR
// definite byte string.
type Bytes8 [8]byte

// MarshalCBOR encodes the value as an 8-byte definite byte string.
func (b Bytes8) MarshalCBOR() ([]byte, error) {
	out := make([]byte, 9)
	out[0] = 0x48 // major type 2, length 8
	copy(out[1:], b[:])
	return out, nil
}

// UnmarshalCBOR accepts exactly the canonical 8-byte byte string.
func (b *Bytes8) UnmarshalCBOR(data []byte) error {
	if len(data) != 9 || data[0] != 0x48 {
		return schemaErr("expected 8-byte string")
	}
	copy(b[:], data[1:])
	return nil
}
