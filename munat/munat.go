// Package munat implements the fixed-point arithmetic used for all
// consensus-weighted quantities: thresholds, proof contributions, block
// scores, and cumulative chain work. One nat is Scale micro-nats; every
// routine here is integer-only and fully deterministic. Rounding is
// pinned: divisions truncate toward zero.
package munat

import (
	"fmt"
	"math/big"
	"math/bits"
)

// Scale is the number of µ-nats per nat.
const Scale = 1_000_000

// ln2Q32 is floor(ln(2) * 2^32).
const ln2Q32 = 0xB17217F7

// MaxLn256 is 256*ln(2) in µ-nats as computed by the pinned routine,
// the largest value NegLnU256 can return.
const MaxLn256 = 177445678

var (
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Log2Q32 returns floor-ish log2(x) in Q32.32 for x >= 1.
//
// The fractional part is produced by the classic squaring method: the
// mantissa is normalized to [1, 2) in Q32.32 and squared 32 times, with
// each overflow past 2 emitting one fraction bit. Truncation at each
// squaring step is part of the pinned definition; the reference outputs
// are the test vectors, not the real-valued logarithm.
func Log2Q32(x uint64) (uint64, error) {
	if x == 0 {
		return 0, fmt.Errorf("munat: log2 of zero")
	}
	intPart := uint64(bits.Len64(x) - 1)

	// Normalize x into Q32.32 within [1, 2).
	var m uint64
	if intPart <= 32 {
		m = x << (32 - intPart)
	} else {
		m = x >> (intPart - 32)
	}

	var frac uint64
	for i := 0; i < 32; i++ {
		hi, lo := bits.Mul64(m, m)
		m = hi<<32 | lo>>32
		frac <<= 1
		if m >= 2<<32 {
			frac |= 1
			m >>= 1
		}
	}
	return intPart<<32 | frac, nil
}

// log2Q32Big returns log2(x) in Q32.32 for a positive big integer. The
// mantissa is truncated to its top 64 bits before the squaring loop;
// that truncation is pinned.
func log2Q32Big(x *big.Int) (uint64, error) {
	if x.Sign() <= 0 {
		return 0, fmt.Errorf("munat: log2 of non-positive")
	}
	bitLen := x.BitLen()
	if bitLen <= 64 {
		return Log2Q32(x.Uint64())
	}
	// Top 64 bits as the mantissa, remaining exponent added back.
	top := new(big.Int).Rsh(x, uint(bitLen-64)).Uint64()
	l, err := Log2Q32(top)
	if err != nil {
		return 0, err
	}
	return l + uint64(bitLen-64)<<32, nil
}

// lnMicroFromLog2Q32 converts a Q32.32 binary logarithm into µ-nats.
func lnMicroFromLog2Q32(l uint64) uint64 {
	// l * ln2Q32 is at most 2^64 * 2^32; do it in 128 bits, then keep
	// the Q32.32 natural log and rescale to µ-nats.
	hi, lo := bits.Mul64(l, ln2Q32)
	lnQ32hi := hi           // contribution above 2^32
	lnQ32lo := lo >> 32     // Q32.32 low part
	lnQ32 := lnQ32hi<<32 | lnQ32lo

	hi2, lo2 := bits.Mul64(lnQ32, Scale)
	return hi2<<32 | lo2>>32
}

// LnU64 returns ln(x) in µ-nats for x >= 1.
func LnU64(x uint64) (uint64, error) {
	l, err := Log2Q32(x)
	if err != nil {
		return 0, err
	}
	return lnMicroFromLog2Q32(l), nil
}

// LnRatio returns ln(num/den) in µ-nats as a signed quantity.
// Both arguments must be positive.
func LnRatio(num, den uint64) (int64, error) {
	if num == 0 || den == 0 {
		return 0, fmt.Errorf("munat: ln ratio of zero")
	}
	ln, err := LnU64(num)
	if err != nil {
		return 0, err
	}
	ld, err := LnU64(den)
	if err != nil {
		return 0, err
	}
	return int64(ln) - int64(ld), nil
}

// NegLnU256 maps a 32-byte uniform draw h to −ln(u) in µ-nats, where
// u = (h + 1) / 2^256. The result is in [0, MaxLn256].
func NegLnU256(h [32]byte) uint64 {
	v := new(big.Int).SetBytes(h[:])
	v.Add(v, big.NewInt(1))
	if v.Cmp(two256) >= 0 {
		return 0
	}
	l, err := log2Q32Big(v)
	if err != nil {
		// Unreachable: v >= 1 by construction.
		return 0
	}
	const full = uint64(256) << 32
	if l >= full {
		return 0
	}
	return lnMicroFromLog2Q32(full - l)
}

// MulDiv returns a*b/den with the intermediate product kept in 128 bits.
// Division truncates. den must be non-zero and the result must fit uint64.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, fmt.Errorf("munat: division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, fmt.Errorf("munat: muldiv overflow")
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// AddU64 returns a+b or an error on uint64 overflow.
func AddU64(a, b uint64) (uint64, error) {
	if b > ^uint64(0)-a {
		return 0, fmt.Errorf("munat: addition overflow")
	}
	return a + b, nil
}

// ClampU64 bounds v into [lo, hi].
func ClampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampI64 bounds v into [lo, hi].
func ClampI64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScalePPM returns v scaled by a parts-per-million factor, truncating.
func ScalePPM(v uint64, ppm uint64) (uint64, error) {
	return MulDiv(v, ppm, Scale)
}
