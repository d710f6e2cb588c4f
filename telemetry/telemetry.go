package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the motion runtime.
//
// Implementations may forward metrics to Prometheus or other monitoring
// systems. They should be inexpensive to call because hooks run inline with
// step generation.
type Collector interface {
	IncMotionsStarted(axis string)
	IncMotionsCompleted(axis string)
	AddStepsGenerated(axis string, count uint64)
	SetQueueDepth(axis string, depth int)
	SetLastMotionSteps(axis string, steps uint64)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncMotionsStarted(string)          {}
func (noopCollector) IncMotionsCompleted(string)        {}
func (noopCollector) AddStepsGenerated(string, uint64)  {}
func (noopCollector) SetQueueDepth(string, int)         {}
func (noopCollector) SetLastMotionSteps(string, uint64) {}

// PrometheusCollector exposes motion telemetry via Prometheus.
type PrometheusCollector struct {
	motionsStarted   *prometheus.CounterVec
	motionsCompleted *prometheus.CounterVec
	stepsGenerated   *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	lastMotionSteps  *prometheus.GaugeVec
}

var (
	registryMu          sync.Mutex
	motionsStartedVec   *prometheus.CounterVec
	motionsCompletedVec *prometheus.CounterVec
	stepsGeneratedVec   *prometheus.CounterVec
	queueDepthVec       *prometheus.GaugeVec
	lastMotionStepsVec  *prometheus.GaugeVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Registering twice against the same registerer reuses the
// existing collectors instead of failing.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	counter := func(cached **prometheus.CounterVec, name, help string) (*prometheus.CounterVec, error) {
		if *cached == nil {
			*cached = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"axis"})
		}
		if err := reg.Register(*cached); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				*cached = existing
			}
		}
		return *cached, nil
	}

	started, err := counter(&motionsStartedVec, "rampd_motions_started_total", "Number of motions armed per axis.")
	if err != nil {
		return nil, err
	}
	completed, err := counter(&motionsCompletedVec, "rampd_motions_completed_total", "Number of motions driven to completion per axis.")
	if err != nil {
		return nil, err
	}
	steps, err := counter(&stepsGeneratedVec, "rampd_steps_generated_total", "Number of step delays produced per axis.")
	if err != nil {
		return nil, err
	}

	gauge := func(cached **prometheus.GaugeVec, name, help string) (*prometheus.GaugeVec, error) {
		if *cached == nil {
			*cached = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"axis"})
		}
		if err := reg.Register(*cached); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				*cached = existing
			}
		}
		return *cached, nil
	}

	depth, err := gauge(&queueDepthVec, "rampd_move_queue_depth", "Pending moves per axis.")
	if err != nil {
		return nil, err
	}
	lastSteps, err := gauge(&lastMotionStepsVec, "rampd_last_motion_steps", "Step count of the most recently completed motion per axis.")
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		motionsStarted:   started,
		motionsCompleted: completed,
		stepsGenerated:   steps,
		queueDepth:       depth,
		lastMotionSteps:  lastSteps,
	}, nil
}

func (c *PrometheusCollector) IncMotionsStarted(axis string) {
	c.motionsStarted.WithLabelValues(axis).Inc()
}

func (c *PrometheusCollector) IncMotionsCompleted(axis string) {
	c.motionsCompleted.WithLabelValues(axis).Inc()
}

func (c *PrometheusCollector) AddStepsGenerated(axis string, count uint64) {
	c.stepsGenerated.WithLabelValues(axis).Add(float64(count))
}

func (c *PrometheusCollector) SetQueueDepth(axis string, depth int) {
	c.queueDepth.WithLabelValues(axis).Set(float64(depth))
}

func (c *PrometheusCollector) SetLastMotionSteps(axis string, steps uint64) {
	c.lastMotionSteps.WithLabelValues(axis).Set(float64(steps))
}
