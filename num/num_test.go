package num

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestF64Ops(t *testing.T) {
	ops := F64{}

	require.Equal(t, 0.0, ops.Zero())
	require.Equal(t, 1.0, ops.One())
	require.Equal(t, 0.001, ops.Inv(1000.0))
	require.Equal(t, uint32(4), ops.Ceil(3.2))
	require.True(t, ops.Less(1.0, 2.0))
	require.InDelta(t, 109.544511, ops.Sqrt(12000), 1e-6)
}

func TestF32Ops(t *testing.T) {
	ops := F32{}

	require.Equal(t, float32(0.5), ops.Inv(2.0))
	require.Equal(t, uint32(3), ops.Ceil(2.5))
	require.InDelta(t, float32(1.4142135), ops.Sqrt(2), 1e-6)
}

func TestDecimalOpsArithmetic(t *testing.T) {
	ops := DecimalOps{}

	a := decimal.NewFromFloat(3.5)
	b := decimal.NewFromFloat(2.25)

	require.True(t, ops.Add(a, b).Equal(decimal.NewFromFloat(5.75)))
	require.True(t, ops.Sub(a, b).Equal(decimal.NewFromFloat(1.25)))
	require.True(t, ops.Mul(a, b).Equal(decimal.NewFromFloat(7.875)))
	require.True(t, ops.Less(b, a))
	require.Equal(t, uint32(4), ops.Ceil(decimal.NewFromFloat(3.2)))
	require.Equal(t, uint32(0), ops.Ceil(decimal.NewFromFloat(-1.2)))
}

func TestDecimalSqrt(t *testing.T) {
	ops := DecimalOps{}

	for _, v := range []float64{0, 1, 2, 0.25, 12000} {
		got := ops.Sqrt(decimal.NewFromFloat(v)).InexactFloat64()
		require.InDelta(t, math.Sqrt(v), got, 1e-12, "sqrt(%v)", v)
	}

	require.Panics(t, func() { ops.Sqrt(decimal.NewFromInt(-1)) })
}

func TestDecimalInv(t *testing.T) {
	ops := DecimalOps{}
	require.InDelta(t, 0.001, ops.Inv(decimal.NewFromInt(1000)).InexactFloat64(), 1e-15)
}
