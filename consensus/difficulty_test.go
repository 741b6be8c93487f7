package consensus

import (
	"testing"

	"animica.dev/core/policy"
)

func retargetParams() policy.Retarget {
	return policy.Dev().Retarget
}

func TestController_OnTargetHoldsTheta(t *testing.T) {
	r := retargetParams()
	s := GenesisController(2_000_000)
	for i := uint64(1); i <= 50; i++ {
		var err error
		s, err = StepController(s, i, r.TauTargetSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	// z = 0 throughout: m stays at zero, deadband holds Θ exactly.
	if s.ThetaMicro != 2_000_000 {
		t.Fatalf("theta drifted on target intervals: %d", s.ThetaMicro)
	}
	if s.MMicro != 0 {
		t.Fatalf("m drifted: %d", s.MMicro)
	}
}

func TestController_SlowBlocksLowerTheta(t *testing.T) {
	r := retargetParams()
	s := GenesisController(2_000_000)
	var err error
	// One block at 2×target: z = ln 2, m = β·z ≈ 138629, above the
	// deadband, so Θ drops by κ·m ≈ 48520.
	s, err = StepController(s, 1, 2*r.TauTargetSec, r)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if s.ThetaMicro >= 2_000_000 {
		t.Fatalf("slow block must lower theta, got %d", s.ThetaMicro)
	}
	if s.MMicro <= 0 {
		t.Fatalf("m must be positive after a slow block: %d", s.MMicro)
	}
	wantM := int64(r.BetaPPM) * 693147 / 1_000_000
	if diff := s.MMicro - wantM; diff < -2 || diff > 2 {
		t.Fatalf("m: got %d want ~%d", s.MMicro, wantM)
	}
}

func TestController_FastBlocksRaiseTheta(t *testing.T) {
	r := retargetParams()
	s := GenesisController(2_000_000)
	var err error
	for i := uint64(1); i <= 10; i++ {
		s, err = StepController(s, i, r.TauTargetSec/4, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if s.ThetaMicro <= 2_000_000 {
		t.Fatalf("fast blocks must raise theta, got %d", s.ThetaMicro)
	}
}

func TestController_StepResponseConverges(t *testing.T) {
	r := retargetParams()
	s := GenesisController(2_000_000)
	var err error

	// Disturbance: a run of slow blocks builds positive m and pushes
	// Θ down.
	for i := uint64(1); i <= 20; i++ {
		s, err = StepController(s, i, 2*r.TauTargetSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	disturbed := s.ThetaMicro
	if disturbed >= 2_000_000 {
		t.Fatalf("disturbance had no effect")
	}

	// Recovery: on-target blocks decay m geometrically by (1−β); once
	// inside the deadband Θ freezes. Θ must settle within 60 blocks
	// and stop moving.
	var settled uint64
	for i := uint64(21); i <= 80; i++ {
		s, err = StepController(s, i, r.TauTargetSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if s.MMicro <= r.DeadbandMicro && s.MMicro >= -r.DeadbandMicro {
			settled = s.ThetaMicro
			break
		}
	}
	if settled == 0 {
		t.Fatalf("controller did not settle")
	}
	for i := uint64(81); i <= 120; i++ {
		s, err = StepController(s, i, r.TauTargetSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if s.ThetaMicro != settled {
		t.Fatalf("theta moved after settling: %d vs %d", s.ThetaMicro, settled)
	}
}

func TestController_ZCapBoundsOutliers(t *testing.T) {
	r := retargetParams()
	s := GenesisController(2_000_000)

	// A single absurd interval is clipped twice: Δt clip then z cap.
	out, err := StepController(s, 1, r.DtMaxSec*100, r)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	maxM := int64(r.BetaPPM) * r.ZCapMicroNats / 1_000_000
	if out.MMicro > maxM {
		t.Fatalf("m exceeded beta*zcap: %d > %d", out.MMicro, maxM)
	}
}

func TestController_ThetaClamps(t *testing.T) {
	r := retargetParams()
	s := GenesisController(r.ThetaMinMicro)
	var err error
	for i := uint64(1); i <= 500; i++ {
		s, err = StepController(s, i, r.DtMaxSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if s.ThetaMicro < r.ThetaMinMicro {
		t.Fatalf("theta fell below clamp: %d", s.ThetaMicro)
	}

	s = GenesisController(r.ThetaMaxMicro)
	for i := uint64(1); i <= 500; i++ {
		s, err = StepController(s, i, r.DtMinSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if s.ThetaMicro > r.ThetaMaxMicro {
		t.Fatalf("theta rose above clamp: %d", s.ThetaMicro)
	}
}

func TestController_PerEpochMode(t *testing.T) {
	r := retargetParams()
	r.Mode = policy.RetargetPerEpoch
	r.EpochLen = 4

	s := GenesisController(2_000_000)
	var err error
	// Three slow blocks: window accumulates, Θ untouched.
	for i := uint64(1); i <= 3; i++ {
		s, err = StepController(s, i, 2*r.TauTargetSec, r)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if s.ThetaMicro != 2_000_000 {
			t.Fatalf("theta moved mid-epoch")
		}
	}
	// Fourth block closes the epoch and applies one update.
	s, err = StepController(s, 4, 2*r.TauTargetSec, r)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if s.ThetaMicro >= 2_000_000 {
		t.Fatalf("epoch close must apply the update")
	}
	if s.WindowCount != 0 || s.WindowSumSec != 0 {
		t.Fatalf("window must reset at epoch close")
	}
}

func TestController_Determinism(t *testing.T) {
	r := retargetParams()
	run := func() ControllerState {
		s := GenesisController(2_000_000)
		intervals := []uint64{12, 30, 4, 12, 700, 1, 12, 12, 45, 12}
		for i, dt := range intervals {
			var err error
			s, err = StepController(s, uint64(i+1), dt, r)
			if err != nil {
				t.Fatalf("step: %v", err)
			}
		}
		return s
	}
	a, b := run(), run()
	if a != b {
		t.Fatalf("controller not deterministic: %+v vs %+v", a, b)
	}
}

func TestCheckTimestamp(t *testing.T) {
	r := retargetParams()

	// Must advance past parent by the minimum step.
	err := CheckTimestamp(100, 100, nil, 0, false, r)
	if code, ok := CodeOf(err); !ok || code != ErrTimestampSkew {
		t.Fatalf("want TimestampSkew, got %v", err)
	}
	if err := CheckTimestamp(101, 100, nil, 0, false, r); err != nil {
		t.Fatalf("min step rejected: %v", err)
	}

	// Local clock skew bound.
	if err := CheckTimestamp(1000, 900, nil, 1003, true, r); err != nil {
		t.Fatalf("within skew rejected: %v", err)
	}
	err = CheckTimestamp(1000, 900, nil, 1010, true, r)
	if code, ok := CodeOf(err); !ok || code != ErrTimestampSkew {
		t.Fatalf("want TimestampSkew for stale block, got %v", err)
	}
	err = CheckTimestamp(1010, 900, nil, 1000, true, r)
	if code, ok := CodeOf(err); !ok || code != ErrTimestampSkew {
		t.Fatalf("want TimestampSkew for future block, got %v", err)
	}
}

func TestCheckTimestamp_MedianParents(t *testing.T) {
	r := retargetParams()
	r.MedianParents = 3
	parents := []uint64{100, 108, 116}

	// Must exceed the median of the recent window.
	err := CheckTimestamp(108, 100, parents, 0, false, r)
	if code, ok := CodeOf(err); !ok || code != ErrTimestampSkew {
		t.Fatalf("want TimestampSkew below median-parent floor, got %v", err)
	}
	if err := CheckTimestamp(117, 116, parents, 0, false, r); err != nil {
		t.Fatalf("valid timestamp rejected: %v", err)
	}
}

func TestCheckTheta(t *testing.T) {
	if err := CheckTheta(5, 5); err != nil {
		t.Fatalf("equal theta rejected: %v", err)
	}
	err := CheckTheta(5, 6)
	if code, ok := CodeOf(err); !ok || code != ErrThetaMismatch {
		t.Fatalf("want ThetaMismatch, got %v", err)
	}
}
