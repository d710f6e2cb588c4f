// Package profile generates step-timing sequences for stepper motors.
//
// A motion profile produces one inter-step delay per step until the motor
// has travelled a requested number of steps and come to rest. Profiles are
// pure computations over in-memory state: no I/O, no timing, no allocation
// in the generation path. Pacing the step pulses according to the returned
// delays is the caller's job.
//
// The unit of time is left to the caller. If acceleration and velocity are
// given in steps per second, delays come back in seconds; if they are given
// in steps per timer tick, delays come back in ticks, which avoids any
// conversion on the way to the hardware timer.
package profile

// Profile is the contract shared by all motion profiles.
//
// A profile is armed for a discrete motion with EnterPositionMode and then
// drained with repeated NextDelay calls. Arming again before the previous
// motion finished silently discards it. A profile instance is exclusively
// owned by one control loop; none of the implementations in this package
// are safe for concurrent use.
type Profile[T any] interface {
	// EnterPositionMode arms a motion of numSteps steps, bounded by
	// maxVelocity. A zero maxVelocity or zero numSteps arms a defined
	// no-op motion that completes on the first NextDelay call.
	EnterPositionMode(maxVelocity T, numSteps uint32)

	// NextDelay returns the delay preceding the next step, or false once
	// the motion is complete.
	NextDelay() (T, bool)
}

// Mode identifies the kinematic phase a trapezoidal profile is in. It is
// derived fresh from the raw engine state on every call, never stored, so
// it cannot diverge from the actual kinematic condition.
type Mode uint8

const (
	// ModeIdle means no motion is armed or the armed motion is complete.
	ModeIdle Mode = iota
	// ModeRampUp means the profile is accelerating.
	ModeRampUp
	// ModePlateau means the profile holds the configured maximum velocity.
	ModePlateau
	// ModeRampDown means the profile is decelerating to land exactly on
	// the final step.
	ModeRampDown
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRampUp:
		return "ramp-up"
	case ModePlateau:
		return "plateau"
	case ModeRampDown:
		return "ramp-down"
	default:
		return "unknown"
	}
}
