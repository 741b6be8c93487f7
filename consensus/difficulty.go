package consensus

import (
	"sort"

	"animica.dev/core/munat"
	"animica.dev/core/policy"
)

// ControllerState is the difficulty controller's persistent state at a
// given header. Both fields are µ-nats; the state at genesis is
// (genesis Θ, m = 0).
type ControllerState struct {
	ThetaMicro uint64 `cbor:"theta"`
	MMicro     int64  `cbor:"m"`

	// Window accumulators, used only in per-epoch mode.
	WindowSumSec uint64 `cbor:"windowSum"`
	WindowCount  uint32 `cbor:"windowCount"`
}

// GenesisController returns the controller state seeded from the
// genesis header's declared Θ.
func GenesisController(theta uint64) ControllerState {
	return ControllerState{ThetaMicro: theta}
}

// clipInterval applies the Δt clip before the log observation.
func clipInterval(dtSec uint64, r policy.Retarget) uint64 {
	return munat.ClampU64(dtSec, r.DtMinSec, r.DtMaxSec)
}

// observe maps an interval to z = ln(clip(Δt)/τ_target) in µ-nats.
func observe(dtSec uint64, r policy.Retarget) (int64, error) {
	clipped := clipInterval(dtSec, r)
	return munat.LnRatio(clipped, r.TauTargetSec)
}

// smoothAndUpdate runs one EMA step and the Θ update for a single
// observation z. Integer divisions follow Go semantics (truncate toward
// zero); this rounding is part of the protocol.
func smoothAndUpdate(s ControllerState, z int64, r policy.Retarget) ControllerState {
	zc := munat.ClampI64(z, -r.ZCapMicroNats, r.ZCapMicroNats)

	beta := int64(r.BetaPPM)
	m := ((munat.Scale-beta)*s.MMicro + beta*zc) / munat.Scale

	// The update is corrective: observed intervals above target (z > 0)
	// lower Θ so acceptance gets easier, and vice versa. The deadband
	// zeroes small corrections to defeat timestamp grinding.
	var dTheta int64
	if m > r.DeadbandMicro || m < -r.DeadbandMicro {
		mc := munat.ClampI64(m, -r.MCapMicroNats, r.MCapMicroNats)
		dTheta = -(int64(r.KappaPPM) * mc / munat.Scale)
	}

	theta := s.ThetaMicro
	if dTheta >= 0 {
		theta += uint64(dTheta)
		if theta < s.ThetaMicro {
			theta = r.ThetaMaxMicro
		}
	} else {
		dec := uint64(-dTheta)
		if dec >= theta {
			theta = 0
		} else {
			theta -= dec
		}
	}
	theta = munat.ClampU64(theta, r.ThetaMinMicro, r.ThetaMaxMicro)

	return ControllerState{ThetaMicro: theta, MMicro: m}
}

// StepController advances the controller for one accepted block.
// number is the accepted block's height; dtSec its guarded interval.
// The returned state's ThetaMicro is the Θ expected of the *next*
// block.
func StepController(s ControllerState, number uint64, dtSec uint64, r policy.Retarget) (ControllerState, error) {
	switch r.Mode {
	case policy.RetargetPerBlock:
		z, err := observe(dtSec, r)
		if err != nil {
			return s, err
		}
		return smoothAndUpdate(s, z, r), nil

	case policy.RetargetPerEpoch:
		next := s
		next.WindowSumSec += clipInterval(dtSec, r)
		next.WindowCount++
		if next.WindowCount < r.EpochLen {
			return next, nil
		}
		avg := next.WindowSumSec / uint64(next.WindowCount)
		if avg == 0 {
			avg = 1
		}
		z, err := munat.LnRatio(avg, r.TauTargetSec)
		if err != nil {
			return s, err
		}
		out := smoothAndUpdate(ControllerState{ThetaMicro: next.ThetaMicro, MMicro: next.MMicro}, z, r)
		return out, nil

	default:
		return s, cerr(ErrPolicyRootMismatch, "unknown retarget mode %d", r.Mode)
	}
}

// CheckTimestamp enforces the header timestamp guards against the
// parent, the recent ancestor window, and (when available) the local
// clock. Failure is a hard rejection.
func CheckTimestamp(
	ts uint64,
	parentTs uint64,
	recentParents []uint64,
	localTime uint64,
	localTimeSet bool,
	r policy.Retarget,
) error {
	if ts < parentTs+r.MinStepSec {
		return cerr(ErrTimestampSkew, "timestamp %d does not advance past parent %d", ts, parentTs)
	}

	if r.MedianParents > 0 && len(recentParents) > 0 {
		n := int(r.MedianParents)
		if len(recentParents) < n {
			n = len(recentParents)
		}
		window := append([]uint64(nil), recentParents[len(recentParents)-n:]...)
		sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
		median := window[len(window)/2]
		if ts <= median {
			return cerr(ErrTimestampSkew, "timestamp %d not past median of recent parents %d", ts, median)
		}
	}

	if localTimeSet {
		var skew uint64
		if ts > localTime {
			skew = ts - localTime
		} else {
			skew = localTime - ts
		}
		if skew > r.MaxClockSkewSec {
			return cerr(ErrTimestampSkew, "timestamp %d skewed %ds from local clock", ts, skew)
		}
	}
	return nil
}

// CheckTheta verifies the header's declared Θ against the locally
// recomputed controller expectation. The controller is deterministic,
// so the match is exact.
func CheckTheta(declared uint64, expected uint64) error {
	if declared != expected {
		return cerr(ErrThetaMismatch, "declared theta %d, recomputed %d", declared, expected)
	}
	return nil
}
