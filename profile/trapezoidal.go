package profile

import "github.com/stepcraft/rampd/num"

// Trapezoidal generates a trapezoidal acceleration ramp following the
// approach described at http://hwml.com/LeibRamp.htm: each delay is derived
// from its predecessor by a second-order expansion of the constant-
// acceleration recurrence.
//
// Ramp-up and ramp-down share the same formula, mirrored in sign; in effect
// the engine always computes a triangular profile. The trapezoidal shape
// emerges solely from clamping the delay at the minimum that corresponds to
// the configured maximum velocity, cutting off the top of the triangle.
//
// The initial velocity is always zero, so the profile is only suitable for
// motions that start and stop at a stand-still.
type Trapezoidal[T any] struct {
	ops num.Ops[T]

	targetAccel  T
	delayInitial T

	// Per-motion state, overwritten by EnterPositionMode.
	delayMin    T
	hasDelayMin bool
	delayPrev   T
	stepsLeft   uint32

	// Constants derived from One, cached so the generation path does not
	// rebuild them on every call.
	two        T
	threeHalve T
}

// NewTrapezoidal creates an engine with a fixed target acceleration, given
// in steps per (unit of time)^2. The engine is idle until a motion is armed
// with EnterPositionMode.
//
// Panics if targetAccel is not greater than zero; no valid initial delay
// can be derived from it.
func NewTrapezoidal[T any](ops num.Ops[T], targetAccel T) *Trapezoidal[T] {
	if !ops.Less(ops.Zero(), targetAccel) {
		panic("profile: target acceleration must be greater than zero")
	}

	two := ops.Add(ops.One(), ops.One())
	half := ops.Div(ops.One(), two)

	// The delay of the theoretical first step of a ramp starting from
	// rest: 1 / sqrt(2*a). No produced delay ever exceeds it.
	delayInitial := ops.Inv(ops.Sqrt(ops.Mul(two, targetAccel)))

	return &Trapezoidal[T]{
		ops:          ops,
		targetAccel:  targetAccel,
		delayInitial: delayInitial,
		delayPrev:    delayInitial,
		two:          two,
		threeHalve:   ops.Add(ops.One(), half),
	}
}

// EnterPositionMode arms a motion of numSteps steps bounded by maxVelocity,
// discarding any unfinished previous motion. Motion always starts from
// rest. A zero maxVelocity arms a no-op motion regardless of numSteps.
func (t *Trapezoidal[T]) EnterPositionMode(maxVelocity T, numSteps uint32) {
	o := t.ops
	if !o.Less(o.Zero(), maxVelocity) {
		t.hasDelayMin = false
		t.stepsLeft = 0
		return
	}
	t.delayMin = o.Inv(maxVelocity)
	t.hasDelayMin = true
	t.delayPrev = t.delayInitial
	t.stepsLeft = numSteps
}

// Mode derives the current kinematic phase from the raw engine state. It is
// a pure function of (delayMin, delayPrev, stepsLeft, targetAccel) and
// mutates nothing.
func (t *Trapezoidal[T]) Mode() Mode {
	if !t.hasDelayMin || t.stepsLeft == 0 {
		return ModeIdle
	}
	o := t.ops

	// Steps needed to reach zero velocity from the current velocity when
	// decelerating at the target rate: ceil(v^2 / (2*a)).
	v := o.Inv(t.delayPrev)
	stepsToStop := o.Ceil(o.Div(o.Mul(v, v), o.Mul(t.two, t.targetAccel)))

	switch {
	case t.stepsLeft <= stepsToStop:
		return ModeRampDown
	case !o.Less(t.delayMin, t.delayPrev):
		// Already at or above the configured maximum velocity.
		return ModePlateau
	default:
		return ModeRampUp
	}
}

// NextDelay produces the delay preceding the next step, or false once the
// motion is complete. Every produced delay d satisfies
// delayMin <= d <= delayInitial, and exactly numSteps delays are produced
// per armed motion.
func (t *Trapezoidal[T]) NextDelay() (T, bool) {
	mode := t.Mode()
	if mode == ModeIdle {
		var zero T
		return zero, false
	}
	o := t.ops

	// Second-order expansion of the constant-acceleration recurrence:
	// d' = d * (1 -/+ q + 1.5*q^2) with q = a*d^2. The sign of q selects
	// between acceleration and deceleration.
	q := o.Mul(t.targetAccel, o.Mul(t.delayPrev, t.delayPrev))
	correction := o.Mul(t.threeHalve, o.Mul(q, q))

	var next T
	switch mode {
	case ModeRampUp:
		next = o.Mul(t.delayPrev, o.Add(o.Sub(o.One(), q), correction))
		if o.Less(next, t.delayMin) {
			next = t.delayMin
		}
	case ModePlateau:
		next = t.delayPrev
	case ModeRampDown:
		next = o.Mul(t.delayPrev, o.Add(o.Add(o.One(), q), correction))
	}

	// Guards against overshoot at very low velocities, where the
	// truncated expansion is least accurate.
	if o.Less(t.delayInitial, next) {
		next = t.delayInitial
	}

	t.delayPrev = next
	t.stepsLeft--
	return next, true
}

// StepsLeft returns the number of steps remaining in the armed motion. Zero
// means idle.
func (t *Trapezoidal[T]) StepsLeft() uint32 { return t.stepsLeft }

// DelayInitial returns the upper bound on produced delays, derived from the
// target acceleration at construction.
func (t *Trapezoidal[T]) DelayInitial() T { return t.delayInitial }
