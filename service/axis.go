package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stepcraft/rampd/config"
	"github.com/stepcraft/rampd/num"
	"github.com/stepcraft/rampd/profile"
	"github.com/stepcraft/rampd/telemetry"
)

// Move is one motion request: a relative step count bounded by a maximum
// velocity. Zero steps or zero velocity is a legal no-op motion.
type Move struct {
	Steps       uint32
	MaxVelocity float64
}

// engine is the float64 boundary over a ramp engine running on any numeric
// representation. Adapters convert at the edges so the engine itself stays
// on its configured number type.
type engine interface {
	EnterPositionMode(maxVelocity float64, numSteps uint32)
	NextDelay() (float64, bool)
}

func newEngine(cfg config.AxisConfig) (engine, error) {
	switch cfg.Numeric {
	case config.NumericFloat64, "":
		return profile.NewTrapezoidal[float64](num.F64{}, cfg.TargetAccel), nil
	case config.NumericFixed:
		ops, err := num.NewFixedOps(cfg.FracBits)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", cfg.ID, err)
		}
		return &fixedEngine{
			ops: ops,
			eng: profile.NewTrapezoidal[num.Fixed](ops, ops.FromFloat(cfg.TargetAccel)),
		}, nil
	case config.NumericDecimal:
		return &decimalEngine{
			eng: profile.NewTrapezoidal[decimal.Decimal](num.DecimalOps{}, decimal.NewFromFloat(cfg.TargetAccel)),
		}, nil
	default:
		return nil, fmt.Errorf("axis %s: unknown numeric kind %q", cfg.ID, cfg.Numeric)
	}
}

type fixedEngine struct {
	ops num.FixedOps
	eng *profile.Trapezoidal[num.Fixed]
}

func (f *fixedEngine) EnterPositionMode(maxVelocity float64, numSteps uint32) {
	f.eng.EnterPositionMode(f.ops.FromFloat(maxVelocity), numSteps)
}

func (f *fixedEngine) NextDelay() (float64, bool) {
	delay, ok := f.eng.NextDelay()
	if !ok {
		return 0, false
	}
	return f.ops.ToFloat(delay), true
}

type decimalEngine struct {
	eng *profile.Trapezoidal[decimal.Decimal]
}

func (d *decimalEngine) EnterPositionMode(maxVelocity float64, numSteps uint32) {
	d.eng.EnterPositionMode(decimal.NewFromFloat(maxVelocity), numSteps)
}

func (d *decimalEngine) NextDelay() (float64, bool) {
	delay, ok := d.eng.NextDelay()
	if !ok {
		return 0, false
	}
	return delay.InexactFloat64(), true
}

// delayBatchSize bounds the delay slices attached to stream events.
const delayBatchSize = 64

const moveQueueSize = 32

// Axis drives one motor axis. It exclusively owns its ramp engine; moves
// are serialized through the queue and executed one at a time by the run
// loop, so the engine is never touched by two goroutines.
type Axis struct {
	cfg       config.AxisConfig
	logger    zerolog.Logger
	engine    engine
	moves     chan Move
	hub       *hub
	collector telemetry.Collector

	seq       atomic.Uint64
	completed atomic.Uint64
	queued    atomic.Int64
}

func newAxis(cfg config.AxisConfig, logger zerolog.Logger, h *hub, collector telemetry.Collector) (*Axis, error) {
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Axis{
		cfg:       cfg,
		logger:    logger.With().Str("axis", cfg.ID).Logger(),
		engine:    eng,
		moves:     make(chan Move, moveQueueSize),
		hub:       h,
		collector: collector,
	}, nil
}

// ID returns the axis identifier.
func (a *Axis) ID() string { return a.cfg.ID }

// Enqueue adds a move to the axis queue without blocking. It fails when
// the queue is full; the caller decides whether to retry or drop.
func (a *Axis) Enqueue(move Move) error {
	select {
	case a.moves <- move:
		depth := int(a.queued.Add(1))
		a.collector.SetQueueDepth(a.cfg.ID, depth)
		return nil
	default:
		return fmt.Errorf("axis %s: move queue full", a.cfg.ID)
	}
}

// run executes queued moves until the context is cancelled.
func (a *Axis) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case move := <-a.moves:
			depth := int(a.queued.Add(-1))
			a.collector.SetQueueDepth(a.cfg.ID, depth)
			if err := a.execute(ctx, move); err != nil {
				return fmt.Errorf("axis %s: %w", a.cfg.ID, err)
			}
		}
	}
}

func (a *Axis) execute(ctx context.Context, move Move) error {
	seq := a.seq.Add(1)
	a.engine.EnterPositionMode(move.MaxVelocity, move.Steps)
	a.collector.IncMotionsStarted(a.cfg.ID)
	a.hub.publish(Event{
		Type:        EventArmed,
		Axis:        a.cfg.ID,
		Seq:         seq,
		Steps:       move.Steps,
		MaxVelocity: move.MaxVelocity,
	})
	a.logger.Debug().
		Uint64("seq", seq).
		Uint32("steps", move.Steps).
		Float64("max_velocity", move.MaxVelocity).
		Msg("motion armed")

	var (
		batch    = make([]float64, 0, delayBatchSize)
		total    uint64
		duration float64
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		delays := make([]float64, len(batch))
		copy(delays, batch)
		a.hub.publish(Event{Type: EventDelays, Axis: a.cfg.ID, Seq: seq, Delays: delays})
		a.collector.AddStepsGenerated(a.cfg.ID, uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		delay, ok := a.engine.NextDelay()
		if !ok {
			break
		}
		total++
		duration += delay
		batch = append(batch, delay)
		if len(batch) == delayBatchSize {
			flush()
		}
		if a.cfg.Pace {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(delay * float64(time.Second))):
			}
		}
	}
	flush()

	a.completed.Add(1)
	a.collector.IncMotionsCompleted(a.cfg.ID)
	a.collector.SetLastMotionSteps(a.cfg.ID, total)
	a.hub.publish(Event{
		Type:     EventCompleted,
		Axis:     a.cfg.ID,
		Seq:      seq,
		Steps:    move.Steps,
		Duration: duration,
	})
	a.logger.Info().
		Uint64("seq", seq).
		Uint64("steps", total).
		Float64("duration", duration).
		Msg("motion completed")
	return nil
}

// state snapshots the axis for the HTTP state endpoint.
func (a *Axis) state() AxisState {
	return AxisState{
		ID:          a.cfg.ID,
		Numeric:     string(a.cfg.Numeric),
		TargetAccel: a.cfg.TargetAccel,
		MaxVelocity: a.cfg.MaxVelocity,
		Queued:      int(a.queued.Load()),
		Completed:   a.completed.Load(),
	}
}

// AxisState is the externally visible state of one axis.
type AxisState struct {
	ID          string  `json:"id"`
	Numeric     string  `json:"numeric"`
	TargetAccel float64 `json:"target_accel"`
	MaxVelocity float64 `json:"max_velocity"`
	Queued      int     `json:"queued"`
	Completed   uint64  `json:"completed"`
}
