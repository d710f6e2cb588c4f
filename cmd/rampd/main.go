package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stepcraft/rampd/config"
	"github.com/stepcraft/rampd/internal/logging"
	"github.com/stepcraft/rampd/internal/reload"
	"github.com/stepcraft/rampd/num"
	"github.com/stepcraft/rampd/profile"
	"github.com/stepcraft/rampd/service"
	"github.com/stepcraft/rampd/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	plotAxis := flag.String("plot", "", "Print the motion profile of the named axis and exit")
	plotSteps := flag.Uint("plot-steps", 200, "Number of steps for -plot")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		fmt.Println("Configuration is valid.")
		os.Exit(0)
	}

	if *plotAxis != "" {
		if err := executePlot(cfg, *plotAxis, uint32(*plotSteps)); err != nil {
			fmt.Fprintf(os.Stderr, "plot failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}

	if cfg.HotReload {
		if err := runWithHotReload(ctx, *cfgPath, cfg, collector); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("service stopped")
		}
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	srv, err := service.New(cfg, logger, service.WithCollector(collector))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create service")
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	return telemetry.NewPrometheusCollector(prometheus.DefaultRegisterer)
}

// runWithHotReload restarts the service whenever the configuration file
// changes. A change that fails to parse is logged and the running service
// keeps its previous configuration.
func runWithHotReload(ctx context.Context, path string, cfg *config.Config, collector telemetry.Collector) error {
	watcher, err := reload.NewWatcher(path)
	if err != nil {
		return fmt.Errorf("watch configuration: %w", err)
	}

	for {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}
		log.Logger = logger

		srv, err := service.New(cfg, logger, service.WithCollector(collector))
		if err != nil {
			cleanup()
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Run(runCtx) }()

		next, exited, err := superviseReload(ctx, watcher, cfg.ReloadInterval.Duration, logger, done)
		cancelRun()
		if !exited {
			<-done
		}
		srv.Close()
		cleanup()
		if err != nil {
			return err
		}
		if next == nil {
			return ctx.Err()
		}
		cfg = next
	}
}

// superviseReload blocks until the service exits, the context is cancelled
// or a valid new configuration appears. It returns the new configuration
// when a restart is wanted and reports whether the service already exited.
func superviseReload(ctx context.Context, watcher *reload.Watcher, interval time.Duration, logger zerolog.Logger, done <-chan error) (*config.Config, bool, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, nil
		case err := <-done:
			return nil, true, err
		case <-ticker.C:
			if !watcher.Changed() {
				continue
			}
			next, err := config.Load(watcher.Path())
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring invalid configuration change")
				continue
			}
			logger.Info().Msg("configuration changed, restarting service")
			return next, false, nil
		}
	}
}

// executePlot prints the full motion profile of one axis as a table of
// step delays, velocities and accelerations.
func executePlot(cfg *config.Config, axisID string, steps uint32) error {
	axis, ok := cfg.Axis(axisID)
	if !ok {
		return fmt.Errorf("unknown axis %q", axisID)
	}

	ops := num.F64{}
	ramp := profile.NewTrapezoidal[float64](ops, axis.TargetAccel)
	ramp.EnterPositionMode(axis.MaxVelocity, steps)

	delays := make([]float64, 0, steps)
	for delay := range profile.Delays[float64](ramp) {
		delays = append(delays, delay)
	}

	fmt.Printf("axis %s: accel=%g vmax=%g steps=%d\n", axisID, axis.TargetAccel, axis.MaxVelocity, steps)
	fmt.Println("step\tdelay\tvelocity\taccel")
	var elapsed float64
	for i, delay := range delays {
		velocity := 1 / delay
		accel := 0.0
		if i > 0 {
			prev := delays[i-1]
			accel = (velocity - 1/prev) / (prev/2 + delay/2)
		}
		elapsed += delay
		fmt.Printf("%d\t%.9f\t%.3f\t%.3f\n", i, delay, velocity, accel)
	}
	fmt.Printf("total time: %.6f\n", elapsed)
	return nil
}
