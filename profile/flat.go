package profile

import "github.com/stepcraft/rampd/num"

// Flat is the simplest possible motion profile: a constant velocity with no
// ramping at all. Every produced delay equals 1/maxVelocity.
//
// Theoretically this means infinite acceleration at both ends of the
// motion. At low speeds and light loads a motor may get away with it;
// otherwise expect missed steps. Flat exists to validate the shared Profile
// contract and as a degenerate test fixture, not for production motions.
type Flat[T any] struct {
	ops num.Ops[T]

	delay     T
	hasDelay  bool
	stepsLeft uint32
}

// NewFlat creates an idle flat profile.
func NewFlat[T any](ops num.Ops[T]) *Flat[T] {
	return &Flat[T]{ops: ops}
}

// EnterPositionMode arms a motion of numSteps steps at constant
// maxVelocity, discarding any unfinished previous motion. A zero
// maxVelocity arms a no-op motion.
func (f *Flat[T]) EnterPositionMode(maxVelocity T, numSteps uint32) {
	o := f.ops
	if !o.Less(o.Zero(), maxVelocity) {
		f.hasDelay = false
		f.stepsLeft = 0
		return
	}
	f.delay = o.Inv(maxVelocity)
	f.hasDelay = true
	f.stepsLeft = numSteps
}

// NextDelay returns the constant delay, or false once the motion is
// complete.
func (f *Flat[T]) NextDelay() (T, bool) {
	if !f.hasDelay || f.stepsLeft == 0 {
		var zero T
		return zero, false
	}
	f.stepsLeft--
	return f.delay, true
}
