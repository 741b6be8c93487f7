package consensus

import (
	"testing"

	"animica.dev/core/codec"
)

func testHeader(number uint64, parent Hash) *Header {
	h := &Header{
		ParentHash: parent,
		Number:     number,
		Timestamp:  1_700_000_000 + number*12,
		ChainID:    77,
		Theta:      2_000_000,
		Version:    HeaderVersion,
	}
	h.MixSeed[0] = byte(number)
	h.Nonce[7] = 0x01
	return h
}

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	h := testHeader(5, Hash{0xaa})
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeHeader(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *h {
		t.Fatalf("round trip mismatch")
	}

	enc2, err := got.Encode()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if string(enc) != string(enc2) {
		t.Fatalf("two encodings of the same header differ")
	}
}

func TestHeader_HashUsesDomain(t *testing.T) {
	h := testHeader(1, Hash{0x01})
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := Hash(codec.HashDomain(codec.DomainHeader, enc))
	got, err := h.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got != want {
		t.Fatalf("hash domain mismatch")
	}

	// A different domain over the same payload must not collide.
	other := codec.HashDomain(codec.DomainTx, enc)
	if got == Hash(other) {
		t.Fatalf("domain separation violated")
	}
}

func TestHeader_DecodeRejectsVersion(t *testing.T) {
	h := testHeader(1, Hash{0x01})
	h.Version = 9
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeHeader(enc); err == nil {
		t.Fatalf("unsupported version accepted")
	}
}

func TestHeader_DecodeRejectsTrailingMutation(t *testing.T) {
	h := testHeader(1, Hash{0x01})
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	mutated := append([]byte(nil), enc...)
	mutated = append(mutated, 0x00)
	if _, err := DecodeHeader(mutated); err == nil {
		t.Fatalf("trailing bytes accepted")
	}
}

func TestHeader_CheckLinkage(t *testing.T) {
	genesis := testHeader(0, Hash{})
	if err := genesis.CheckLinkage(nil); err != nil {
		t.Fatalf("genesis linkage: %v", err)
	}

	gh, err := genesis.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	child := testHeader(1, gh)
	if err := child.CheckLinkage(genesis); err != nil {
		t.Fatalf("child linkage: %v", err)
	}

	// Wrong parent hash.
	stranger := testHeader(1, Hash{0xde, 0xad})
	err = stranger.CheckLinkage(genesis)
	if code, ok := CodeOf(err); !ok || code != ErrParentUnknown {
		t.Fatalf("want ParentUnknown, got %v", err)
	}

	// Non-contiguous number.
	skip := testHeader(7, gh)
	if err := skip.CheckLinkage(genesis); err == nil {
		t.Fatalf("non-contiguous number accepted")
	}

	// Chain id drift.
	drift := testHeader(1, gh)
	drift.ChainID = 78
	err = drift.CheckLinkage(genesis)
	if code, ok := CodeOf(err); !ok || code != ErrChainIDMismatch {
		t.Fatalf("want ChainIdMismatch, got %v", err)
	}

	// Genesis with a non-zero parent.
	badGenesis := testHeader(0, Hash{0x01})
	if err := badGenesis.CheckLinkage(nil); err == nil {
		t.Fatalf("genesis with parent hash accepted")
	}

	// Missing parent.
	orphan := testHeader(3, Hash{0x05})
	err = orphan.CheckLinkage(nil)
	if code, ok := CodeOf(err); !ok || code != ErrParentUnknown {
		t.Fatalf("want ParentUnknown, got %v", err)
	}
}

func TestLotteryDraw_BindsHeaderFields(t *testing.T) {
	h := testHeader(4, Hash{0x02})
	base := LotteryDraw(h)

	n := *h
	n.Nonce[0] ^= 1
	if LotteryDraw(&n) == base {
		t.Fatalf("nonce not bound")
	}

	p := *h
	p.ParentHash[0] ^= 1
	if LotteryDraw(&p) == base {
		t.Fatalf("parent hash not bound")
	}

	c := *h
	c.ChainID++
	if LotteryDraw(&c) == base {
		t.Fatalf("chain id not bound")
	}

	m := *h
	m.MixSeed[5] ^= 1
	if LotteryDraw(&m) == base {
		t.Fatalf("mix seed not bound")
	}
}
