package proofs

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/binary"
	"time"

	"animica.dev/core/address"
	"animica.dev/core/codec"
	"animica.dev/core/consensus"
)

const (
	aiTaskDomain     = "ai-task-v1"
	aiTrapSeedDomain = "ai-trap-seed"
	aiTrapRespDomain = "ai-trap-response"
	aiQuoteDomain    = "ai-quote-v1"
)

// AttestationBundle carries a TEE attestation: the vendor certificate
// chain (leaf first, DER), the enclave measurement, and a quote signed
// by the leaf key over the measurement and task binding.
type AttestationBundle struct {
	VendorChain [][]byte       `cbor:"chain"`
	Measurement consensus.Hash `cbor:"measurement"`
	Quote       []byte         `cbor:"quote"`
}

// TrapReceipt carries responses to the verifier-derived trap
// challenges.
type TrapReceipt struct {
	Count     uint32           `cbor:"count"`
	Responses []consensus.Hash `cbor:"responses"`
}

// QoSRecord is the optional quality-of-service annex.
type QoSRecord struct {
	P50Ms uint32 `cbor:"p50"`
	P95Ms uint32 `cbor:"p95"`
}

// AIBody is the AI proof envelope body.
type AIBody struct {
	TaskID      consensus.Hash  `cbor:"taskId"`
	ChainID     uint32          `cbor:"chainId"`
	Height      uint64          `cbor:"height"`
	Requester   address.Address `cbor:"requester"`
	PayloadHash consensus.Hash  `cbor:"payloadHash"`

	Attestation AttestationBundle `cbor:"attestation"`
	Traps       TrapReceipt       `cbor:"traps"`
	QoS         *QoSRecord        `cbor:"qos"`

	// UnitsMicro is the costed work claim in micro-units, priced by
	// the task market and audited by the traps.
	UnitsMicro uint64 `cbor:"units"`
	Redundancy uint32 `cbor:"redundancy"`
}

// AITaskID derives the task binding digest.
func AITaskID(chainID uint32, height uint64, requester address.Address, payloadHash consensus.Hash) consensus.Hash {
	pre := make([]byte, 0, 4+8+len(requester)+32)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], chainID)
	pre = append(pre, u32[:]...)
	var u64b [8]byte
	binary.BigEndian.PutUint64(u64b[:], height)
	pre = append(pre, u64b[:]...)
	pre = append(pre, requester[:]...)
	pre = append(pre, payloadHash[:]...)
	return consensus.Hash(codec.HashDomain(aiTaskDomain, pre))
}

// AITrapSeed derives the trap challenge seed from the prior beacon.
func AITrapSeed(beacon [32]byte, taskID consensus.Hash) [32]byte {
	pre := make([]byte, 0, len(aiTrapSeedDomain)+64)
	pre = append(pre, aiTrapSeedDomain...)
	pre = append(pre, beacon[:]...)
	pre = append(pre, taskID[:]...)
	return codec.Sum256(pre)
}

// AITrapChallenge derives the i-th challenge from the seed.
func AITrapChallenge(seed [32]byte, i uint32) [32]byte {
	pre := make([]byte, 36)
	copy(pre[:32], seed[:])
	binary.BigEndian.PutUint32(pre[32:], i)
	return codec.Sum256(pre)
}

// AITrapResponse is the expected response to one challenge.
func AITrapResponse(challenge [32]byte) consensus.Hash {
	pre := make([]byte, 0, len(aiTrapRespDomain)+32)
	pre = append(pre, aiTrapRespDomain...)
	pre = append(pre, challenge[:]...)
	return consensus.Hash(codec.Sum256(pre))
}

// aiQuoteDigest is the message the attestation leaf key signs.
func aiQuoteDigest(measurement consensus.Hash, taskID consensus.Hash) [32]byte {
	pre := make([]byte, 0, len(aiQuoteDomain)+64)
	pre = append(pre, aiQuoteDomain...)
	pre = append(pre, measurement[:]...)
	pre = append(pre, taskID[:]...)
	return codec.Sum256(pre)
}

// verifyCertChain validates a leaf-first DER chain against pinned
// roots at the header's timestamp and returns the leaf certificate.
// Attestation validity is judged at chain time, never at wall-clock
// time.
func verifyCertChain(chain [][]byte, roots [][]byte, at uint64) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, verr(ErrAttestation, "empty certificate chain")
	}
	if len(roots) == 0 {
		return nil, verr(ErrAttestation, "no pinned roots")
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, verr(ErrAttestation, "leaf certificate: %v", err)
	}
	rootPool := x509.NewCertPool()
	for _, der := range roots {
		root, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, verr(ErrAttestation, "pinned root: %v", err)
		}
		rootPool.AddCert(root)
	}
	interPool := x509.NewCertPool()
	for _, der := range chain[1:] {
		inter, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, verr(ErrAttestation, "intermediate: %v", err)
		}
		interPool.AddCert(inter)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         rootPool,
		Intermediates: interPool,
		CurrentTime:   time.Unix(int64(at), 0),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, verr(ErrAttestation, "chain does not verify: %v", err)
	}
	return leaf, nil
}

func verifyAI(ctx *Context, body []byte) (consensus.ProofMetrics, map[string]uint64, error) {
	var b AIBody
	if err := codec.Decode(body, &b); err != nil {
		return nil, nil, verr(ErrSchema, "ai body: %v", err)
	}

	// Task binding to the enclosing header.
	if b.ChainID != ctx.ChainID || b.Height != ctx.Height {
		return nil, nil, verr(ErrBinding, "ai task not bound to this header")
	}
	if b.TaskID != AITaskID(b.ChainID, b.Height, b.Requester, b.PayloadHash) {
		return nil, nil, verr(ErrBinding, "ai task id does not re-derive")
	}

	// Attestation: vendor chain against pinned roots, quote over the
	// measurement and task binding.
	if !ctx.Budget.Spend(2000 * int64(len(b.Attestation.VendorChain)+1)) {
		return nil, nil, verr(ErrBudget, "attestation budget exhausted")
	}
	leaf, err := verifyCertChain(b.Attestation.VendorChain, ctx.Policy.AIVendorRoots, ctx.Timestamp)
	if err != nil {
		return nil, nil, err
	}
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, verr(ErrAttestation, "leaf key is not ECDSA")
	}
	digest := aiQuoteDigest(b.Attestation.Measurement, b.TaskID)
	if !ecdsa.VerifyASN1(pub, digest[:], b.Attestation.Quote) {
		return nil, nil, verr(ErrAttestation, "quote does not cover measurement")
	}

	// Traps: re-derive the challenge set from the prior beacon and
	// check the receipt against policy thresholds.
	tp := ctx.Policy.Traps
	if b.Traps.Count < tp.MinCount || uint32(len(b.Traps.Responses)) != b.Traps.Count {
		return nil, nil, verr(ErrTrapFail, "trap count %d below policy minimum %d", b.Traps.Count, tp.MinCount)
	}
	if ctx.Height == 0 {
		return nil, nil, verr(ErrBinding, "ai proofs need a prior beacon")
	}
	beacon, err := ctx.beaconAt(ctx.Height - 1)
	if err != nil {
		return nil, nil, err
	}
	if !ctx.Budget.Spend(int64(b.Traps.Count) * 4) {
		return nil, nil, verr(ErrBudget, "trap budget exhausted")
	}
	seed := AITrapSeed(beacon, b.TaskID)
	var passes uint64
	for i := uint32(0); i < b.Traps.Count; i++ {
		want := AITrapResponse(AITrapChallenge(seed, i))
		if b.Traps.Responses[i] == want {
			passes++
		}
	}
	ratioPPM := passes * 1_000_000 / uint64(b.Traps.Count)
	if ratioPPM < tp.MinPassRatioPPM {
		return nil, nil, verr(ErrTrapFail, "trap pass ratio %d below policy %d", ratioPPM, tp.MinPassRatioPPM)
	}

	var qosPPM uint64
	if b.QoS != nil && b.QoS.P95Ms > 0 {
		// QoS factor favors tight latency tails; purely informational
		// unless the policy scales units by it.
		qosPPM = uint64(b.QoS.P50Ms) * 1_000_000 / uint64(b.QoS.P95Ms)
	}

	m := consensus.AIMetrics{
		UnitsMicro:    b.UnitsMicro,
		TrapsRatioPPM: ratioPPM,
		Redundancy:    b.Redundancy,
		QoSPPM:        qosPPM,
	}
	aux := map[string]uint64{
		"units":      b.UnitsMicro,
		"trapsRatio": ratioPPM,
		"redundancy": uint64(b.Redundancy),
	}
	return m, aux, nil
}
