// Package codec provides the canonical byte layer every consensus
// preimage is built from: deterministic CBOR encoding, strict decoding,
// domain-tagged SHA3 hashing, and the Merkle tree over pre-hashed
// leaves. Any byte-level nondeterminism here is a consensus bug.
package codec

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SchemaError is the stable error key for every malformed consensus
// object: forbidden CBOR forms, unknown fields, duplicate keys,
// overwide integers, or a non-canonical re-encoding.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return "SchemaError"
	}
	return fmt.Sprintf("SchemaError: %s", e.Msg)
}

func schemaErr(format string, args ...any) error {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortBytewiseLexical,
		IndefLength:   cbor.IndefLengthForbidden,
		ShortestFloat: cbor.ShortestFloatNone,
		Time:          cbor.TimeUnix,
		TagsMd:        cbor.TagsForbidden,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		TagsMd:            cbor.TagsForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes v into canonical CBOR: definite lengths only, map
// keys sorted bytewise over their encoded form, integers in shortest
// form, no floats, no tags.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, schemaErr("encode: %v", err)
	}
	return b, nil
}

// Decode strictly decodes canonical CBOR into v. Unknown fields,
// duplicate keys, indefinite lengths, and tags are rejected. The input
// must additionally round-trip: re-encoding the decoded value must
// reproduce the input bytes exactly, which rules out overwide integers
// and alternative key orders.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return schemaErr("decode: %v", err)
	}
	reenc, err := encMode.Marshal(v)
	if err != nil {
		return schemaErr("decode: re-encode: %v", err)
	}
	if !bytes.Equal(reenc, data) {
		return schemaErr("decode: input is not canonical")
	}
	return nil
}

// DecodeLenient decodes without the canonical round-trip check. It is
// for non-consensus inputs (local config, test fixtures); consensus
// objects always go through Decode.
func DecodeLenient(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return schemaErr("decode: %v", err)
	}
	return nil
}
