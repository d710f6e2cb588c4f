// Package profiletest provides a reusable conformance suite for motion
// profile implementations. It covers the contract every Profile must honor
// regardless of its ramp shape; profile-specific behavior (plateau shape,
// acceleration accuracy) belongs in the profile's own tests.
package profiletest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepcraft/rampd/profile"
)

// Factory returns a fresh, idle profile instance for each subtest.
type Factory func() profile.Profile[float64]

// Run executes the full conformance suite against profiles created by
// newProfile.
func Run(t *testing.T, newProfile Factory) {
	t.Run("produces exact step count", func(t *testing.T) {
		p := newProfile()
		const numSteps = 200
		p.EnterPositionMode(1000, numSteps)
		require.Equal(t, numSteps, drain(p))
	})

	t.Run("respects maximum velocity", func(t *testing.T) {
		p := newProfile()
		p.EnterPositionMode(1000, 200)

		const minDelay = 0.001
		for {
			delay, ok := p.NextDelay()
			if !ok {
				break
			}
			require.GreaterOrEqual(t, delay, minDelay)
		}
	})

	t.Run("zero velocity is a no-op motion", func(t *testing.T) {
		p := newProfile()
		p.EnterPositionMode(0, 200)

		_, ok := p.NextDelay()
		require.False(t, ok)
	})

	t.Run("zero steps is a no-op motion", func(t *testing.T) {
		p := newProfile()
		p.EnterPositionMode(1000, 0)

		_, ok := p.NextDelay()
		require.False(t, ok)
	})

	t.Run("re-arming discards the previous motion", func(t *testing.T) {
		p := newProfile()
		p.EnterPositionMode(1000, 200)

		// Pull a few delays, then abandon the motion.
		for i := 0; i < 10; i++ {
			_, ok := p.NextDelay()
			require.True(t, ok)
		}

		p.EnterPositionMode(500, 50)
		require.Equal(t, 50, drain(p))

		// Re-arming with zero velocity cancels outright.
		p.EnterPositionMode(1000, 200)
		p.EnterPositionMode(0, 200)
		require.Equal(t, 0, drain(p))
	})

	t.Run("completion is sticky", func(t *testing.T) {
		p := newProfile()
		p.EnterPositionMode(1000, 3)
		require.Equal(t, 3, drain(p))

		for i := 0; i < 3; i++ {
			_, ok := p.NextDelay()
			require.False(t, ok)
		}
	})
}

func drain(p profile.Profile[float64]) int {
	count := 0
	for {
		if _, ok := p.NextDelay(); !ok {
			return count
		}
		count++
	}
}
