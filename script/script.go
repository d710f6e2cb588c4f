// Package script compiles and evaluates the numeric expressions used for
// scripted move parameters. Expressions are evaluated against an axis
// environment: the variables declared on the axis plus the built-ins vmax
// and accel.
package script

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expression is a compiled numeric expression.
type Expression struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks an expression source. Compilation errors
// surface at configuration load, long before any motion runs.
func Compile(source string) (*Expression, error) {
	if source == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	return &Expression{source: source, program: program}, nil
}

// Source returns the original expression text.
func (e *Expression) Source() string { return e.source }

// EvalNumber evaluates the expression and coerces the result to a float64.
func (e *Expression) EvalNumber(env map[string]any) (float64, error) {
	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	value, ok := toNumber(out)
	if !ok {
		return 0, fmt.Errorf("expression %q yielded %T, want a number", e.source, out)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("expression %q yielded %v", e.source, value)
	}
	return value, nil
}

// EvalSteps evaluates the expression as a non-negative step count.
func (e *Expression) EvalSteps(env map[string]any) (uint32, error) {
	value, err := e.EvalNumber(env)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("expression %q yielded negative step count %v", e.source, value)
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("expression %q yielded step count %v out of range", e.source, value)
	}
	return uint32(math.Round(value)), nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Env builds the evaluation environment for an axis from its declared
// variables and built-ins. Declared variables win over built-ins.
func Env(variables map[string]float64, builtins map[string]float64) map[string]any {
	env := make(map[string]any, len(variables)+len(builtins))
	for k, v := range builtins {
		env[k] = v
	}
	for k, v := range variables {
		env[k] = v
	}
	return env
}
