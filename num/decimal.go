package num

import (
	"math"

	"github.com/shopspring/decimal"
)

// DecimalOps implements Ops over shopspring decimals.
//
// Decimal arithmetic allocates, so this implementation is not meant for the
// step-generation hot path on constrained targets. It exists as a
// high-accuracy representation for hosts and as an oracle when validating
// the fixed-point implementation.
type DecimalOps struct{}

var (
	decimalOne  = decimal.NewFromInt(1)
	decimalTwo  = decimal.NewFromInt(2)
	decimalHalf = decimalOne.Div(decimalTwo)
)

func (DecimalOps) Zero() decimal.Decimal { return decimal.Zero }
func (DecimalOps) One() decimal.Decimal  { return decimalOne }

func (DecimalOps) Add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }
func (DecimalOps) Sub(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) }
func (DecimalOps) Mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }
func (DecimalOps) Div(a, b decimal.Decimal) decimal.Decimal { return a.Div(b) }

func (DecimalOps) Inv(a decimal.Decimal) decimal.Decimal { return decimalOne.Div(a) }

func (DecimalOps) Less(a, b decimal.Decimal) bool { return a.LessThan(b) }

// Sqrt computes the square root by Newton-Raphson iteration, seeded from the
// float64 approximation. The library offers no native square root.
func (DecimalOps) Sqrt(a decimal.Decimal) decimal.Decimal {
	if a.Sign() < 0 {
		panic("num: decimal square root of negative value")
	}
	if a.IsZero() {
		return decimal.Zero
	}
	seed := math.Sqrt(a.InexactFloat64())
	x := decimal.NewFromFloat(seed)
	if x.IsZero() {
		x = decimalOne
	}
	// Quadratic convergence; four rounds exceed the default division
	// precision from any float64 seed.
	for i := 0; i < 4; i++ {
		x = x.Add(a.Div(x)).Mul(decimalHalf)
	}
	return x
}

func (DecimalOps) Ceil(a decimal.Decimal) uint32 {
	v := a.Ceil().IntPart()
	if v <= 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
