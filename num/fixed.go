package num

import (
	"fmt"
	"math"
	"math/bits"
)

// Fixed is a signed Q-format fixed-point number. The position of the binary
// point is not carried by the value; it is defined by the FixedOps instance
// the value belongs to. Values from FixedOps instances with different
// fractional-bit counts must never be mixed.
type Fixed int64

// FixedOps implements Ops over Fixed with a configurable fractional-bit
// count. All arithmetic is integer only; intermediates use 128 bits so
// multiplication, division and square root keep full precision. Results
// outside the representable range saturate instead of wrapping.
type FixedOps struct {
	frac uint
}

// MaxFracBits is the largest supported fractional-bit count.
const MaxFracBits = 32

// NewFixedOps returns a FixedOps with the given number of fractional bits.
func NewFixedOps(fracBits uint) (FixedOps, error) {
	if fracBits < 1 || fracBits > MaxFracBits {
		return FixedOps{}, fmt.Errorf("fractional bits must be in [1,%d], got %d", MaxFracBits, fracBits)
	}
	return FixedOps{frac: fracBits}, nil
}

// MustFixedOps is NewFixedOps for static configurations known to be valid.
func MustFixedOps(fracBits uint) FixedOps {
	ops, err := NewFixedOps(fracBits)
	if err != nil {
		panic(err)
	}
	return ops
}

// FracBits returns the configured fractional-bit count.
func (o FixedOps) FracBits() uint { return o.frac }

// FromInt converts an integer to its fixed-point representation.
func (o FixedOps) FromInt(v int64) Fixed {
	return saturate(v, o.frac)
}

// FromFloat converts a float to the nearest representable fixed-point value.
// Intended for configuration boundaries, not for the hot path.
func (o FixedOps) FromFloat(v float64) Fixed {
	scaled := v * float64(int64(1)<<o.frac)
	if scaled >= math.MaxInt64 {
		return Fixed(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return Fixed(math.MinInt64)
	}
	return Fixed(math.Round(scaled))
}

// ToFloat converts a fixed-point value back to a float.
func (o FixedOps) ToFloat(v Fixed) float64 {
	return float64(v) / float64(int64(1)<<o.frac)
}

func (o FixedOps) Zero() Fixed { return 0 }

func (o FixedOps) One() Fixed { return Fixed(int64(1) << o.frac) }

func (o FixedOps) Add(a, b Fixed) Fixed {
	sum := int64(a) + int64(b)
	// Overflow flips the sign against both addends.
	if (int64(a) > 0 && int64(b) > 0 && sum < 0) || (int64(a) < 0 && int64(b) < 0 && sum >= 0) {
		if int64(a) > 0 {
			return Fixed(math.MaxInt64)
		}
		return Fixed(math.MinInt64)
	}
	return Fixed(sum)
}

func (o FixedOps) Sub(a, b Fixed) Fixed {
	if b == Fixed(math.MinInt64) {
		return o.Add(a, Fixed(math.MaxInt64))
	}
	return o.Add(a, -b)
}

func (o FixedOps) Mul(a, b Fixed) Fixed {
	neg := (a < 0) != (b < 0)
	ma, mb := magnitude(a), magnitude(b)
	hi, lo := bits.Mul64(ma, mb)
	if hi>>o.frac != 0 {
		return satSigned(neg)
	}
	m := hi<<(64-o.frac) | lo>>o.frac
	return fromMagnitude(m, neg)
}

func (o FixedOps) Div(a, b Fixed) Fixed {
	if b == 0 {
		panic("num: fixed-point division by zero")
	}
	neg := (a < 0) != (b < 0)
	ma, mb := magnitude(a), magnitude(b)
	hi := ma >> (64 - o.frac)
	lo := ma << o.frac
	if hi >= mb {
		return satSigned(neg)
	}
	q, _ := bits.Div64(hi, lo, mb)
	return fromMagnitude(q, neg)
}

func (o FixedOps) Inv(a Fixed) Fixed { return o.Div(o.One(), a) }

func (o FixedOps) Less(a, b Fixed) bool { return a < b }

// Sqrt computes the square root with a restoring bit-by-bit algorithm over
// the 128-bit shifted radicand, so no precision is lost to a half-width
// shortcut and no floating-point unit is involved.
func (o FixedOps) Sqrt(a Fixed) Fixed {
	if a < 0 {
		panic("num: fixed-point square root of negative value")
	}
	m := uint64(a)
	hi := m >> (64 - o.frac)
	lo := m << o.frac
	return Fixed(sqrtU128(hi, lo))
}

func (o FixedOps) Ceil(a Fixed) uint32 {
	if a <= 0 {
		return 0
	}
	mask := Fixed(int64(1)<<o.frac - 1)
	v := uint64(a+mask) >> o.frac
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func magnitude(v Fixed) uint64 {
	if v < 0 {
		return uint64(-int64(v))
	}
	return uint64(v)
}

func fromMagnitude(m uint64, neg bool) Fixed {
	if m > math.MaxInt64 {
		return satSigned(neg)
	}
	if neg {
		return Fixed(-int64(m))
	}
	return Fixed(m)
}

func satSigned(neg bool) Fixed {
	if neg {
		return Fixed(math.MinInt64)
	}
	return Fixed(math.MaxInt64)
}

func saturate(v int64, frac uint) Fixed {
	limit := int64(1) << (63 - frac)
	if v >= limit {
		return Fixed(math.MaxInt64)
	}
	if v <= -limit {
		return Fixed(math.MinInt64)
	}
	return Fixed(v << frac)
}

// sqrtU128 returns floor(sqrt(hi·2^64 + lo)), processing the radicand two
// bits per iteration with a 128-bit remainder.
func sqrtU128(hi, lo uint64) uint64 {
	var root, rhi, rlo uint64
	for i := 0; i < 64; i++ {
		rhi = rhi<<2 | rlo>>62
		rlo = rlo<<2 | hi>>62
		hi = hi<<2 | lo>>62
		lo <<= 2

		root <<= 1
		thi := root >> 63
		tlo := root<<1 | 1
		if rhi > thi || (rhi == thi && rlo >= tlo) {
			var borrow uint64
			rlo, borrow = bits.Sub64(rlo, tlo, 0)
			rhi, _ = bits.Sub64(rhi, thi, borrow)
			root++
		}
	}
	return root
}
