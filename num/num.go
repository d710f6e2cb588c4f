// Package num defines the arithmetic capability set used by the motion
// profiles, together with floating-point, fixed-point and decimal
// implementations of it.
//
// The profiles are written purely against Ops, so the same ramp algorithm
// runs unchanged on IEEE floats, on a Q-format fixed-point representation
// for targets without an FPU, and on arbitrary-precision decimals used as a
// high-accuracy oracle in tests. The accuracy of the generated ramp depends
// directly on the chosen representation; it is a tunable of the integrating
// application, not an internal detail.
package num

// Ops is the arithmetic contract a number type must satisfy to drive a
// motion profile.
//
// All operations must be total over the profiles' legal input domain. The
// profiles guarantee that Sqrt is never called with a negative argument and
// that Div and Inv are never called with a zero divisor. Implementations
// must not allocate per operation, with the documented exception of
// DecimalOps.
type Ops[T any] interface {
	// Zero returns the additive identity.
	Zero() T
	// One returns the multiplicative identity.
	One() T

	Add(a, b T) T
	Sub(a, b T) T
	Mul(a, b T) T
	Div(a, b T) T

	// Inv returns the reciprocal 1/a.
	Inv(a T) T

	// Less reports whether a orders strictly before b.
	Less(a, b T) bool

	// Sqrt returns the square root of a non-negative value.
	Sqrt(a T) T

	// Ceil rounds a non-negative value toward positive infinity and casts
	// the result to an unsigned step count.
	Ceil(a T) uint32
}
