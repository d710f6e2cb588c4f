package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stepcraft/rampd/config"
)

type recordingCollector struct {
	mu         sync.Mutex
	started    map[string]int
	completed  map[string]int
	steps      map[string]uint64
	queueDepth map[string]int
	lastSteps  map[string]uint64
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		started:    make(map[string]int),
		completed:  make(map[string]int),
		steps:      make(map[string]uint64),
		queueDepth: make(map[string]int),
		lastSteps:  make(map[string]uint64),
	}
}

func (c *recordingCollector) IncMotionsStarted(axis string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[axis]++
}

func (c *recordingCollector) IncMotionsCompleted(axis string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[axis]++
}

func (c *recordingCollector) AddStepsGenerated(axis string, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[axis] += n
}

func (c *recordingCollector) SetQueueDepth(axis string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth[axis] = depth
}

func (c *recordingCollector) SetLastMotionSteps(axis string, steps uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSteps[axis] = steps
}

func (c *recordingCollector) snapshot(axis string) (started, completed int, steps uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started[axis], c.completed[axis], c.steps[axis]
}

func testConfig(axes ...config.AxisConfig) *config.Config {
	return &config.Config{Axes: axes}
}

func floatAxis(id string) config.AxisConfig {
	return config.AxisConfig{
		ID:          id,
		Numeric:     config.NumericFloat64,
		TargetAccel: 6000,
		MaxVelocity: 1000,
	}
}

func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func startService(t *testing.T, cfg *config.Config, opts ...Option) (*Service, func()) {
	t.Helper()
	svc, err := New(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
		}
		require.NoError(t, svc.Close())
	}
	return svc, stop
}

func TestServiceExecutesEnqueuedMove(t *testing.T) {
	collector := newRecordingCollector()
	svc, stop := startService(t, testConfig(floatAxis("x")), WithCollector(collector))
	defer stop()

	events, cancel := svc.Subscribe()
	defer cancel()

	require.NoError(t, svc.Enqueue("x", Move{Steps: 200, MaxVelocity: 1000}))

	armed := waitEvent(t, events, EventArmed)
	require.Equal(t, "x", armed.Axis)
	require.Equal(t, uint32(200), armed.Steps)

	var total int
	for {
		ev := <-events
		if ev.Type == EventDelays {
			total += len(ev.Delays)
			for _, delay := range ev.Delays {
				require.Greater(t, delay, 0.0)
			}
			continue
		}
		require.Equal(t, EventCompleted, ev.Type)
		require.Equal(t, armed.Seq, ev.Seq)
		require.Greater(t, ev.Duration, 0.0)
		break
	}
	require.Equal(t, 200, total)

	started, completed, steps := collector.snapshot("x")
	require.Equal(t, 1, started)
	require.Equal(t, 1, completed)
	require.Equal(t, uint64(200), steps)

	collector.mu.Lock()
	require.Equal(t, uint64(200), collector.lastSteps["x"])
	collector.mu.Unlock()
}

func TestServiceRunsEveryNumericKind(t *testing.T) {
	cfg := testConfig(
		floatAxis("f"),
		config.AxisConfig{ID: "q", Numeric: config.NumericFixed, FracBits: 28, TargetAccel: 6000, MaxVelocity: 1000},
		config.AxisConfig{ID: "d", Numeric: config.NumericDecimal, TargetAccel: 6000, MaxVelocity: 1000},
	)
	svc, stop := startService(t, cfg)
	defer stop()

	events, cancel := svc.Subscribe()
	defer cancel()

	for _, id := range []string{"f", "q", "d"} {
		require.NoError(t, svc.Enqueue(id, Move{Steps: 50, MaxVelocity: 500}))
	}

	seen := map[string]bool{}
	for len(seen) < 3 {
		ev := waitEvent(t, events, EventCompleted)
		seen[ev.Axis] = true
	}
}

func TestServiceRunsScriptedProgram(t *testing.T) {
	cfg := testConfig(config.AxisConfig{
		ID:          "x",
		Numeric:     config.NumericFloat64,
		TargetAccel: 6000,
		MaxVelocity: 1000,
		Variables:   map[string]float64{"travel": 120},
	})
	cfg.Program = []config.MoveConfig{
		{Axis: "x", Steps: "travel + 80"},
		{Axis: "x", Steps: "40", MaxVelocity: "vmax / 2"},
	}

	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	events, unsub := svc.Subscribe()
	defer unsub()
	go func() { done <- svc.Run(ctx) }()

	first := waitEvent(t, events, EventCompleted)
	require.Equal(t, uint32(200), first.Steps)
	second := waitEvent(t, events, EventCompleted)
	require.Equal(t, uint32(40), second.Steps)

	cancel()
	require.NoError(t, <-done)
}

func TestServiceRejectsBadProgram(t *testing.T) {
	cfg := testConfig(floatAxis("x"))
	cfg.Program = []config.MoveConfig{{Axis: "x", Steps: "count +"}}
	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestProgramVelocityAboveAxisLimitFailsRun(t *testing.T) {
	cfg := testConfig(floatAxis("x"))
	cfg.Program = []config.MoveConfig{{Axis: "x", Steps: "10", MaxVelocity: "vmax * 2"}}

	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, svc.Run(ctx))
}

func TestRunTreatsWrappedCancellationAsCleanShutdown(t *testing.T) {
	cfg := testConfig(config.AxisConfig{
		ID:          "x",
		Numeric:     config.NumericFloat64,
		TargetAccel: 0.001,
		MaxVelocity: 0.1,
		Pace:        true,
	})
	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	events, unsub := svc.Subscribe()
	defer unsub()

	// Delays on this axis run for tens of seconds, so the cancel lands
	// mid-motion inside the pacing wait and the axis goroutine returns
	// an annotated cancellation error.
	require.NoError(t, svc.Enqueue("x", Move{Steps: 100, MaxVelocity: 0.1}))
	waitEvent(t, events, EventArmed)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestEnqueueValidation(t *testing.T) {
	svc, stop := startService(t, testConfig(floatAxis("x")))
	defer stop()

	require.ErrorContains(t, svc.Enqueue("y", Move{Steps: 1, MaxVelocity: 1}), "unknown axis")
	require.ErrorContains(t, svc.Enqueue("x", Move{Steps: 1, MaxVelocity: 2000}), "exceeds limit")
}

func TestAxisQueueFull(t *testing.T) {
	axis, err := newAxis(floatAxis("x"), zerolog.Nop(), newHub(), newRecordingCollector())
	require.NoError(t, err)

	for i := 0; i < moveQueueSize; i++ {
		require.NoError(t, axis.Enqueue(Move{Steps: 1, MaxVelocity: 1}))
	}
	require.ErrorContains(t, axis.Enqueue(Move{Steps: 1, MaxVelocity: 1}), "queue full")
}

func TestServiceStatesSorted(t *testing.T) {
	svc, err := New(testConfig(floatAxis("b"), floatAxis("a")), zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	states := svc.States()
	require.Len(t, states, 2)
	require.Equal(t, "a", states[0].ID)
	require.Equal(t, "b", states[1].ID)
	require.Equal(t, 6000.0, states[0].TargetAccel)
}

func TestNewRejectsUnknownNumericKind(t *testing.T) {
	_, err := New(testConfig(config.AxisConfig{
		ID:          "x",
		Numeric:     "posit",
		TargetAccel: 1,
		MaxVelocity: 1,
	}), zerolog.Nop())
	require.Error(t, err)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := newHub()
	events, cancel := h.subscribe()
	defer cancel()

	for i := 0; i < 200; i++ {
		h.publish(Event{Type: EventDelays})
	}

	var received int
	for {
		select {
		case <-events:
			received++
		default:
			require.Equal(t, 64, received)
			return
		}
	}
}
