// Package service runs the motion runtime: one exclusively owned ramp
// engine per configured axis, a scripted motion program, and an HTTP
// server streaming generated step timing to subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stepcraft/rampd/config"
	"github.com/stepcraft/rampd/script"
	"github.com/stepcraft/rampd/telemetry"
)

// Service wires axes, the motion program, telemetry and the stream server.
type Service struct {
	cfg       *config.Config
	logger    zerolog.Logger
	collector telemetry.Collector

	axes    map[string]*Axis
	ordered []*Axis
	hub     *hub
	server  *streamServer
	program []scriptedMove
}

type scriptedMove struct {
	axis        *Axis
	steps       *script.Expression
	maxVelocity *script.Expression
}

// Option configures the service during construction.
type Option func(*Service)

// WithCollector installs a telemetry collector. Defaults to the noop
// collector.
func WithCollector(collector telemetry.Collector) Option {
	return func(s *Service) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// New builds a service from a validated configuration. The stream server,
// if enabled, starts listening immediately; axis loops start with Run.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	svc := &Service{
		cfg:       cfg,
		logger:    logger,
		collector: telemetry.Noop(),
		axes:      make(map[string]*Axis, len(cfg.Axes)),
		hub:       newHub(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	for _, axisCfg := range cfg.Axes {
		axis, err := newAxis(axisCfg, logger, svc.hub, svc.collector)
		if err != nil {
			return nil, err
		}
		svc.axes[axisCfg.ID] = axis
		svc.ordered = append(svc.ordered, axis)
	}

	if err := svc.compileProgram(); err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		server, err := newStreamServer(cfg.Server, svc, logger, cfg.Telemetry.Enabled)
		if err != nil {
			return nil, err
		}
		svc.server = server
	}

	return svc, nil
}

func (s *Service) compileProgram() error {
	for i, move := range s.cfg.Program {
		axis, ok := s.axes[move.Axis]
		if !ok {
			return fmt.Errorf("program move %d: unknown axis %q", i, move.Axis)
		}
		steps, err := script.Compile(string(move.Steps))
		if err != nil {
			return fmt.Errorf("program move %d: %w", i, err)
		}
		sm := scriptedMove{axis: axis, steps: steps}
		if move.MaxVelocity != "" {
			maxVelocity, err := script.Compile(string(move.MaxVelocity))
			if err != nil {
				return fmt.Errorf("program move %d: %w", i, err)
			}
			sm.maxVelocity = maxVelocity
		}
		s.program = append(s.program, sm)
	}
	return nil
}

// Run starts the axis loops, feeds the scripted program and blocks until
// the context is cancelled or an axis fails.
func (s *Service) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, axis := range s.ordered {
		group.Go(func() error { return axis.run(ctx) })
	}

	group.Go(func() error { return s.feedProgram(ctx) })

	if s.server != nil {
		group.Go(func() error { return s.server.run(ctx) })
	}

	err := group.Wait()
	s.hub.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) feedProgram(ctx context.Context) error {
	for i, sm := range s.program {
		if err := ctx.Err(); err != nil {
			return err
		}
		move, err := sm.resolve()
		if err != nil {
			return fmt.Errorf("program move %d: %w", i, err)
		}
		if err := sm.axis.Enqueue(move); err != nil {
			return fmt.Errorf("program move %d: %w", i, err)
		}
	}
	return nil
}

func (sm scriptedMove) resolve() (Move, error) {
	cfg := sm.axis.cfg
	env := script.Env(cfg.Variables, map[string]float64{
		"vmax":  cfg.MaxVelocity,
		"accel": cfg.TargetAccel,
	})

	steps, err := sm.steps.EvalSteps(env)
	if err != nil {
		return Move{}, err
	}

	maxVelocity := cfg.MaxVelocity
	if sm.maxVelocity != nil {
		maxVelocity, err = sm.maxVelocity.EvalNumber(env)
		if err != nil {
			return Move{}, err
		}
		if maxVelocity < 0 {
			return Move{}, fmt.Errorf("max velocity %v must not be negative", maxVelocity)
		}
	}
	if maxVelocity > cfg.MaxVelocity {
		return Move{}, fmt.Errorf("max velocity %v exceeds axis limit %v", maxVelocity, cfg.MaxVelocity)
	}

	return Move{Steps: steps, MaxVelocity: maxVelocity}, nil
}

// Enqueue adds a move to the named axis.
func (s *Service) Enqueue(axisID string, move Move) error {
	axis, ok := s.axes[axisID]
	if !ok {
		return fmt.Errorf("unknown axis %q", axisID)
	}
	if move.MaxVelocity > axis.cfg.MaxVelocity {
		return fmt.Errorf("axis %s: max velocity %v exceeds limit %v", axisID, move.MaxVelocity, axis.cfg.MaxVelocity)
	}
	return axis.Enqueue(move)
}

// Subscribe returns a channel of motion events and a cancel function. The
// subscription drops events if the consumer falls behind.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.hub.subscribe()
}

// States snapshots all axes, sorted by id.
func (s *Service) States() []AxisState {
	states := make([]AxisState, 0, len(s.ordered))
	for _, axis := range s.ordered {
		states = append(states, axis.state())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Addr returns the stream server address, or empty when disabled.
func (s *Service) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.addr()
}

// Close releases the stream server listener. Run must have returned.
func (s *Service) Close() error {
	if s.server != nil {
		return s.server.close()
	}
	return nil
}
