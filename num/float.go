package num

import "math"

// F64 implements Ops over float64.
type F64 struct{}

func (F64) Zero() float64            { return 0 }
func (F64) One() float64             { return 1 }
func (F64) Add(a, b float64) float64 { return a + b }
func (F64) Sub(a, b float64) float64 { return a - b }
func (F64) Mul(a, b float64) float64 { return a * b }
func (F64) Div(a, b float64) float64 { return a / b }
func (F64) Inv(a float64) float64    { return 1 / a }
func (F64) Less(a, b float64) bool   { return a < b }
func (F64) Sqrt(a float64) float64   { return math.Sqrt(a) }
func (F64) Ceil(a float64) uint32    { return uint32(math.Ceil(a)) }

// F32 implements Ops over float32.
//
// Single precision is enough for typical step rates, but the ramp formula
// squares the delay twice; expect visibly larger acceleration error than
// with F64 when delays are very small.
type F32 struct{}

func (F32) Zero() float32            { return 0 }
func (F32) One() float32             { return 1 }
func (F32) Add(a, b float32) float32 { return a + b }
func (F32) Sub(a, b float32) float32 { return a - b }
func (F32) Mul(a, b float32) float32 { return a * b }
func (F32) Div(a, b float32) float32 { return a / b }
func (F32) Inv(a float32) float32    { return 1 / a }
func (F32) Less(a, b float32) bool   { return a < b }
func (F32) Sqrt(a float32) float32   { return float32(math.Sqrt(float64(a))) }
func (F32) Ceil(a float32) uint32    { return uint32(math.Ceil(float64(a))) }
