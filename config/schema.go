package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// schema is the structural contract for the configuration document. It
// rejects unknown fields and out-of-range scalars before the typed decode
// runs, so misspelled keys fail loudly instead of silently defaulting.
const schema = `
#Config: close({
	logging?: close({
		level?:  string
		format?: string
		loki?: close({
			enabled?: bool
			url?:     string
			labels?: {[string]: string}
		})
	})
	telemetry?: close({
		enabled?: bool
	})
	server?: close({
		enabled?:          bool
		listen?:           string
		shutdown_timeout?: string
	})
	hot_reload?:      bool
	reload_interval?: string
	axes: [...#Axis]
	program?: [...#Move]
})

#Axis: close({
	id:           string
	numeric?:     "float64" | "fixed" | "decimal"
	frac_bits?:   int & >=1 & <=32
	target_accel: number & >0
	max_velocity: number & >=0
	pace?:        bool
	variables?: {[string]: number}
})

#Move: close({
	axis:          string
	steps:         string | number
	max_velocity?: string | number
})
`

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("config document is empty")
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	configDef := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if err := configDef.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	docVal := ctx.Encode(doc)
	if err := docVal.Err(); err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}

	unified := configDef.Unify(docVal)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config schema violation: %s", cueerrors.Details(err, nil))
	}
	return nil
}
