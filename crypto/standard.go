package crypto

import (
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"golang.org/x/crypto/sha3"
)

// Canonical key and signature sizes for the known algorithms. The
// algorithm policy may pin tighter bounds but never looser ones.
const (
	MLDSA87PubkeyBytes = 2592
	MLDSA87SigBytes    = 4627

	SLHDSA256sPubkeyBytes = 64
	SLHDSA256sSigBytes    = 29792
)

var (
	mldsa87Scheme    = schemes.ByName("ML-DSA-87")
	slhdsa256sScheme = schemes.ByName("SLH-DSA-SHAKE-256s")
)

// StandardProvider backs the Provider interface with circl.
type StandardProvider struct{}

var _ Provider = StandardProvider{}

func (StandardProvider) SHA3_256(input []byte) [32]byte {
	return sha3.Sum256(input)
}

func (StandardProvider) SHA3_512(input []byte) [64]byte {
	return sha3.Sum512(input)
}

func (StandardProvider) VerifySignature(alg AlgID, pubkey []byte, sig []byte, digest [32]byte) bool {
	var scheme sign.Scheme
	switch alg {
	case AlgMLDSA87:
		if len(pubkey) != MLDSA87PubkeyBytes || len(sig) != MLDSA87SigBytes {
			return false
		}
		scheme = mldsa87Scheme
	case AlgSLHDSA256s:
		if len(pubkey) != SLHDSA256sPubkeyBytes || len(sig) == 0 || len(sig) > SLHDSA256sSigBytes {
			return false
		}
		scheme = slhdsa256sScheme
	default:
		return false
	}
	if scheme == nil {
		return false
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pubkey)
	if err != nil {
		return false
	}
	return scheme.Verify(pk, digest[:], sig, nil)
}
