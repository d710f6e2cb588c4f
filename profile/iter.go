package profile

import (
	"iter"

	"github.com/stepcraft/rampd/num"
)

// Delays returns the remaining delays of the armed motion as a lazy, finite
// sequence. The sequence drains the profile: it is not restartable, and
// breaking out of it leaves the profile mid-motion.
func Delays[T any](p Profile[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			delay, ok := p.NextDelay()
			if !ok {
				return
			}
			if !yield(delay) {
				return
			}
		}
	}
}

// Velocities returns the instantaneous velocity at each remaining step, the
// reciprocal of each delay. Like Delays, it drains the profile.
func Velocities[T any](ops num.Ops[T], p Profile[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			delay, ok := p.NextDelay()
			if !ok {
				return
			}
			if !yield(ops.Inv(delay)) {
				return
			}
		}
	}
}

// Accelerations returns the finite-difference acceleration between each
// pair of consecutive steps. It yields one value fewer than the number of
// remaining steps, since the first delay only seeds the difference.
//
// The velocity implied by a delay is taken to be reached at the mid-point
// between the two steps the delay separates, so the time base for the
// difference quotient is half of each neighboring delay:
//
//	accel = (vNext - vPrev) / (dPrev/2 + dNext/2)
//
// This sequence exists for diagnostics and testing, not for driving motors.
func Accelerations[T any](ops num.Ops[T], p Profile[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		prev, ok := p.NextDelay()
		if !ok {
			return
		}
		two := ops.Add(ops.One(), ops.One())
		for {
			next, ok := p.NextDelay()
			if !ok {
				return
			}
			velocityDiff := ops.Sub(ops.Inv(next), ops.Inv(prev))
			timeDiff := ops.Add(ops.Div(prev, two), ops.Div(next, two))
			if !yield(ops.Div(velocityDiff, timeDiff)) {
				return
			}
			prev = next
		}
	}
}
