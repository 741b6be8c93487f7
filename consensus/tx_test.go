package consensus

import (
	"testing"

	"github.com/cloudflare/circl/sign/schemes"

	"animica.dev/core/address"
	"animica.dev/core/crypto"
	"animica.dev/core/policy"
)

const testChainID uint32 = 77

// signedTestTx builds a fully signed transfer with a derived ML-DSA key.
func signedTestTx(t *testing.T) *Tx {
	t.Helper()
	scheme := schemes.ByName("ML-DSA-87")
	seed := make([]byte, scheme.SeedSize())
	seed[0] = 0x42
	pk, sk := scheme.DeriveKey(seed)
	pub, err := pk.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal pk: %v", err)
	}

	to := address.Derive(crypto.AlgMLDSA87, []byte("recipient key"))
	tx := &Tx{
		UnsignedTx: UnsignedTx{
			ChainID:  testChainID,
			From:     address.Derive(crypto.AlgMLDSA87, pub),
			Nonce:    9,
			Kind:     TxTransfer,
			To:       &to,
			Value:    NewU256(1_000_000),
			GasLimit: 21_000,
			GasPrice: 5,
			Data:     []byte{},
		},
	}
	digest, err := tx.SigningDigest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	tx.Signature = Signature{
		Alg:    uint16(crypto.AlgMLDSA87),
		Pubkey: pub,
		Sig:    scheme.Sign(sk, digest[:], nil),
	}
	return tx
}

func TestTx_VerifyAccepts(t *testing.T) {
	tx := signedTestTx(t)
	if err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestTx_EncodeDecodeRoundTrip(t *testing.T) {
	tx := signedTestTx(t)
	enc, err := tx.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTx(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := got.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID); err != nil {
		t.Fatalf("verify decoded: %v", err)
	}
	id1, _ := tx.ID()
	id2, _ := got.ID()
	if id1 != id2 {
		t.Fatalf("tx id changed across round trip")
	}
}

func TestTx_VerifyRejectsChainID(t *testing.T) {
	tx := signedTestTx(t)
	err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID+1)
	if code, ok := CodeOf(err); !ok || code != ErrChainIDMismatch {
		t.Fatalf("want ChainIdMismatch, got %v", err)
	}
}

func TestTx_VerifyRejectsTamperedBody(t *testing.T) {
	tx := signedTestTx(t)
	tx.Nonce++
	err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID)
	if code, ok := CodeOf(err); !ok || code != ErrSignature {
		t.Fatalf("want SignatureError, got %v", err)
	}
}

func TestTx_VerifyRejectsForeignAddress(t *testing.T) {
	tx := signedTestTx(t)
	tx.From = address.Derive(crypto.AlgMLDSA87, []byte("someone else"))
	err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID)
	if code, ok := CodeOf(err); !ok || code != ErrSignature {
		t.Fatalf("want SignatureError, got %v", err)
	}
}

func TestTx_VerifyRejectsUnknownAlg(t *testing.T) {
	tx := signedTestTx(t)
	tx.Signature.Alg = 99
	err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), testChainID)
	if code, ok := CodeOf(err); !ok || code != ErrSignature {
		t.Fatalf("want SignatureError, got %v", err)
	}
}

func TestTx_ShapeRules(t *testing.T) {
	tx := signedTestTx(t)

	deploy := *tx
	deploy.Kind = TxDeploy
	if err := deploy.checkShape(); err == nil {
		t.Fatalf("deploy with recipient accepted")
	}
	deploy.To = nil
	if err := deploy.checkShape(); err != nil {
		t.Fatalf("deploy without recipient rejected: %v", err)
	}

	transfer := *tx
	transfer.To = nil
	if err := transfer.checkShape(); err == nil {
		t.Fatalf("transfer without recipient accepted")
	}

	unknown := *tx
	unknown.Kind = TxKind(9)
	if err := unknown.checkShape(); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestU256_CanonicalWidth(t *testing.T) {
	v := NewU256(5)
	enc, err := v.MarshalCBOR()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(enc) != 34 || enc[0] != 0x58 || enc[1] != 32 {
		t.Fatalf("value must encode as fixed 32-byte string")
	}
	var got U256
	if err := got.UnmarshalCBOR(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Uint64() != 5 {
		t.Fatalf("value mangled: %d", got.Uint64())
	}
}
