package main

import (
	"encoding/hex"
	"fmt"

	"animica.dev/core/address"
	"animica.dev/core/codec"
	"animica.dev/core/consensus"
	"animica.dev/core/crypto"
	"animica.dev/core/node"
	"animica.dev/core/policy"
)

// Exit codes for consensus test harnesses.
const (
	exitAccepted   = 0
	exitStructural = 1
	exitPolicy     = 2
	exitWork       = 3
)

// Request is the single JSON operation read from stdin.
type Request struct {
	Op string `json:"op"`

	HeaderHex string   `json:"header_hex,omitempty"`
	TxHex     string   `json:"tx_hex,omitempty"`
	BlocksHex []string `json:"blocks_hex,omitempty"`
	Leaves    []string `json:"leaves,omitempty"`

	Kind    string `json:"kind,omitempty"`
	BodyHex string `json:"body_hex,omitempty"`

	Alg       uint16 `json:"alg,omitempty"`
	PubkeyHex string `json:"pubkey_hex,omitempty"`
	Address   string `json:"address,omitempty"`

	ChainID uint32 `json:"chain_id,omitempty"`

	ThetaMicro uint64 `json:"theta_micro,omitempty"`
	MMicro     int64  `json:"m_micro,omitempty"`
	DtSec      uint64 `json:"dt_sec,omitempty"`
	Number     uint64 `json:"number,omitempty"`

	LocalTime uint64 `json:"local_time,omitempty"`
}

// Response is the single JSON result written to stdout.
type Response struct {
	Ok  bool   `json:"ok"`
	Err string `json:"err,omitempty"`

	HashHex    string `json:"hash,omitempty"`
	RootHex    string `json:"root,omitempty"`
	Address    string `json:"address,omitempty"`
	DigestHex  string `json:"digest,omitempty"`
	Number     uint64 `json:"number,omitempty"`
	ThetaMicro uint64 `json:"theta_micro,omitempty"`
	MMicro     int64  `json:"m_micro,omitempty"`

	Admitted []BlockResult `json:"admitted,omitempty"`
}

// BlockResult reports one block of an admit_chain run.
type BlockResult struct {
	HashHex    string `json:"hash"`
	ScoreMicro uint64 `json:"score_micro"`
	WorkMicro  uint64 `json:"work_micro"`
	IsHead     bool   `json:"is_head"`
	Err        string `json:"err,omitempty"`
}

// exitCodeFor maps a consensus failure to the harness exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitAccepted
	}
	code, ok := consensus.CodeOf(err)
	if !ok {
		return exitStructural
	}
	switch consensus.CategoryOf(code) {
	case consensus.CategoryStructural:
		return exitStructural
	case consensus.CategoryPolicy:
		return exitPolicy
	default:
		return exitWork
	}
}

func fail(err error) (Response, int) {
	msg := err.Error()
	if code, ok := consensus.CodeOf(err); ok {
		msg = string(code)
	}
	return Response{Ok: false, Err: msg}, exitCodeFor(err)
}

func run(cfg node.Config, req *Request) (Response, int) {
	switch req.Op {
	case "header_hash":
		raw, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			return Response{Ok: false, Err: "bad header hex"}, exitStructural
		}
		h, err := consensus.DecodeHeader(raw)
		if err != nil {
			return fail(err)
		}
		hash, err := h.Hash()
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, HashHex: hex.EncodeToString(hash[:]), Number: h.Number}, exitAccepted

	case "decode_header":
		raw, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			return Response{Ok: false, Err: "bad header hex"}, exitStructural
		}
		h, err := consensus.DecodeHeader(raw)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, Number: h.Number, ThetaMicro: h.Theta}, exitAccepted

	case "derive_address":
		pubkey, err := hex.DecodeString(req.PubkeyHex)
		if err != nil || len(pubkey) == 0 {
			return Response{Ok: false, Err: "bad pubkey hex"}, exitStructural
		}
		a := address.Derive(crypto.AlgID(req.Alg), pubkey)
		return Response{Ok: true, Address: a.String()}, exitAccepted

	case "parse_address":
		a, err := address.Parse(req.Address)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}, exitStructural
		}
		return Response{Ok: true, DigestHex: hex.EncodeToString(a[:])}, exitAccepted

	case "tx_sighash":
		raw, err := hex.DecodeString(req.TxHex)
		if err != nil {
			return Response{Ok: false, Err: "bad tx hex"}, exitStructural
		}
		tx, err := consensus.DecodeTx(raw)
		if err != nil {
			return fail(err)
		}
		digest, err := tx.SigningDigest()
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, DigestHex: hex.EncodeToString(digest[:])}, exitAccepted

	case "verify_tx":
		raw, err := hex.DecodeString(req.TxHex)
		if err != nil {
			return Response{Ok: false, Err: "bad tx hex"}, exitStructural
		}
		tx, err := consensus.DecodeTx(raw)
		if err != nil {
			return fail(err)
		}
		chainID := req.ChainID
		if chainID == 0 {
			chainID = cfg.ChainID
		}
		if err := tx.Verify(crypto.StandardProvider{}, policy.DevAlg(), chainID); err != nil {
			return fail(err)
		}
		return Response{Ok: true}, exitAccepted

	case "merkle_root":
		leaves := make([][]byte, 0, len(req.Leaves))
		for _, l := range req.Leaves {
			b, err := hex.DecodeString(l)
			if err != nil {
				return Response{Ok: false, Err: "bad leaf hex"}, exitStructural
			}
			leaves = append(leaves, b)
		}
		root := codec.MerkleRoot(leaves)
		return Response{Ok: true, RootHex: hex.EncodeToString(root[:])}, exitAccepted

	case "nullifier":
		body, err := hex.DecodeString(req.BodyHex)
		if err != nil {
			return Response{Ok: false, Err: "bad body hex"}, exitStructural
		}
		if req.Kind == "" {
			return Response{Ok: false, Err: "kind required"}, exitStructural
		}
		n := codec.Nullifier(req.Kind, body)
		return Response{Ok: true, HashHex: hex.EncodeToString(n[:])}, exitAccepted

	case "retarget_step":
		state := consensus.ControllerState{ThetaMicro: req.ThetaMicro, MMicro: req.MMicro}
		next, err := consensus.StepController(state, req.Number, req.DtSec, policy.Dev().Retarget)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, ThetaMicro: next.ThetaMicro, MMicro: next.MMicro}, exitAccepted

	case "admit_chain":
		return runAdmitChain(cfg, req)

	default:
		return Response{Ok: false, Err: "unknown op"}, exitStructural
	}
}

// runAdmitChain feeds a block sequence into a fresh chain state. The
// exit code reflects the last block's outcome.
func runAdmitChain(cfg node.Config, req *Request) (Response, int) {
	chainID := req.ChainID
	if chainID == 0 {
		chainID = cfg.ChainID
	}
	s := node.NewChainState(chainID, policy.Dev(), policy.DevAlg())
	opts := node.AdmitOptions{Workers: cfg.VerifyWorkers}
	if req.LocalTime != 0 {
		opts.LocalTime = req.LocalTime
		opts.LocalTimeSet = true
	}

	resp := Response{Ok: true}
	code := exitAccepted
	for i, blockHex := range req.BlocksHex {
		raw, err := hex.DecodeString(blockHex)
		if err != nil {
			return Response{Ok: false, Err: fmt.Sprintf("block %d: bad hex", i)}, exitStructural
		}
		res, err := s.Admit(crypto.StandardProvider{}, raw, opts)
		if err != nil {
			br := BlockResult{Err: err.Error()}
			if c, ok := consensus.CodeOf(err); ok {
				br.Err = string(c)
			}
			resp.Admitted = append(resp.Admitted, br)
			resp.Ok = false
			code = exitCodeFor(err)
			continue
		}
		resp.Admitted = append(resp.Admitted, BlockResult{
			HashHex:    hex.EncodeToString(res.Hash[:]),
			ScoreMicro: res.Score.SMicro,
			WorkMicro:  res.Work,
			IsHead:     res.IsHead,
		})
		code = exitAccepted
	}
	return resp, code
}
