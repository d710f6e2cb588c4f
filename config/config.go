// Package config loads and validates the rampd configuration.
//
// Configuration is YAML on disk. After decoding, the raw document is
// checked against an embedded CUE schema for structural errors, then the
// typed configuration is validated for semantic ones (positive
// accelerations, known numeric kinds, resolvable axis references).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// NumericKind selects the number representation an axis engine runs on.
type NumericKind string

const (
	// NumericFloat64 runs the engine on IEEE double precision.
	NumericFloat64 NumericKind = "float64"
	// NumericFixed runs the engine on Q-format fixed point.
	NumericFixed NumericKind = "fixed"
	// NumericDecimal runs the engine on arbitrary-precision decimals.
	NumericDecimal NumericKind = "decimal"
)

// LokiConfig configures the optional Loki log sink.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig enables the Prometheus collector and metrics endpoint.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServerConfig configures the HTTP state/stream server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// ShutdownTimeout bounds the graceful drain of in-flight requests
	// when the service stops. Defaults to 5s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

// AxisConfig describes one motor axis. Each axis owns exactly one ramp
// engine for its lifetime.
type AxisConfig struct {
	ID          string      `yaml:"id"`
	Numeric     NumericKind `yaml:"numeric"`
	FracBits    uint        `yaml:"frac_bits,omitempty"`
	TargetAccel float64     `yaml:"target_accel"`
	MaxVelocity float64     `yaml:"max_velocity"`
	// Pace makes the axis honor delays in real time instead of
	// generating as fast as possible. Useful for demos; the engine
	// itself never sleeps.
	Pace bool `yaml:"pace,omitempty"`
	// Variables are exposed to move expressions alongside the built-ins
	// vmax and accel.
	Variables map[string]float64 `yaml:"variables,omitempty"`
}

// Expr is a scalar configuration value used as an expression source. Plain
// YAML numbers are accepted and kept in their literal form.
type Expr string

// UnmarshalYAML accepts any scalar node and keeps its literal text.
func (e *Expr) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expression must be a scalar")
	}
	*e = Expr(value.Value)
	return nil
}

// MoveConfig is one scripted move. Steps and MaxVelocity are expressions
// evaluated against the axis variable environment; MaxVelocity defaults to
// the axis maximum when empty.
type MoveConfig struct {
	Axis        string `yaml:"axis"`
	Steps       Expr   `yaml:"steps"`
	MaxVelocity Expr   `yaml:"max_velocity,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
	HotReload bool            `yaml:"hot_reload"`
	// ReloadInterval is the polling interval of the hot-reload watcher.
	// Defaults to 1s.
	ReloadInterval Duration `yaml:"reload_interval,omitempty"`
	Axes      []AxisConfig    `yaml:"axes"`
	Program   []MoveConfig    `yaml:"program,omitempty"`
}

// Load reads, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a raw YAML configuration document.
func Parse(raw []byte) (*Config, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Enabled && cfg.Server.Listen == "" {
		cfg.Server.Listen = ":9180"
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = 5 * time.Second
	}
	if cfg.ReloadInterval.Duration == 0 {
		cfg.ReloadInterval.Duration = time.Second
	}
	for i := range cfg.Axes {
		axis := &cfg.Axes[i]
		if axis.Numeric == "" {
			axis.Numeric = NumericFloat64
		}
		if axis.Numeric == NumericFixed && axis.FracBits == 0 {
			axis.FracBits = 32
		}
	}
}

// Validate checks the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Axes) == 0 {
		return fmt.Errorf("at least one axis is required")
	}
	seen := make(map[string]struct{}, len(c.Axes))
	for _, axis := range c.Axes {
		if axis.ID == "" {
			return fmt.Errorf("axis id must not be empty")
		}
		if _, dup := seen[axis.ID]; dup {
			return fmt.Errorf("duplicate axis id %q", axis.ID)
		}
		seen[axis.ID] = struct{}{}

		switch axis.Numeric {
		case NumericFloat64, NumericDecimal:
		case NumericFixed:
			if axis.FracBits < 1 || axis.FracBits > 32 {
				return fmt.Errorf("axis %s: frac_bits must be in [1,32], got %d", axis.ID, axis.FracBits)
			}
		default:
			return fmt.Errorf("axis %s: unknown numeric kind %q", axis.ID, axis.Numeric)
		}

		if axis.TargetAccel <= 0 {
			return fmt.Errorf("axis %s: target_accel must be greater than zero", axis.ID)
		}
		if axis.MaxVelocity < 0 {
			return fmt.Errorf("axis %s: max_velocity must not be negative", axis.ID)
		}
	}

	for i, move := range c.Program {
		if _, ok := seen[move.Axis]; !ok {
			return fmt.Errorf("program move %d: unknown axis %q", i, move.Axis)
		}
		if move.Steps == "" {
			return fmt.Errorf("program move %d: steps expression must not be empty", i)
		}
	}

	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return fmt.Errorf("loki url is required when the loki sink is enabled")
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server listen address must not be empty")
	}
	if c.Server.ShutdownTimeout.Duration < 0 {
		return fmt.Errorf("server shutdown_timeout must not be negative")
	}
	if c.ReloadInterval.Duration < 0 {
		return fmt.Errorf("reload_interval must not be negative")
	}
	return nil
}

// Axis returns the configuration of the axis with the given id.
func (c *Config) Axis(id string) (AxisConfig, bool) {
	for _, axis := range c.Axes {
		if axis.ID == id {
			return axis, true
		}
	}
	return AxisConfig{}, false
}
