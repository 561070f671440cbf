// Package inputs resolves a playbook's declared inputs to concrete
// values before execution: supplied values first, then defaults, then
// an interactive prompt when one is configured. Every resolved value
// passes the input's validation rules.
package inputs

import (
	"fmt"
	"strconv"

	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
	"github.com/catalystworks/catalyst/pkg/validate"
)

// Prompter obtains a value for an input that was neither supplied nor
// defaulted. Implementations include the readline prompter.
type Prompter interface {
	Prompt(def schema.InputDef) (string, error)
}

// Resolver turns declared inputs plus supplied values into the initial
// variable scope of a run.
type Resolver struct {
	validator *validate.Executor
	prompter  Prompter
}

// NewResolver creates a resolver. eval backs custom validation rules;
// prompter may be nil for non-interactive resolution.
func NewResolver(eval validate.ScriptEvaluator, prompter Prompter) *Resolver {
	return &Resolver{
		validator: validate.NewExecutor(eval),
		prompter:  prompter,
	}
}

// Resolve checks supplied against defs and returns the initial scope.
// Undeclared supplied names are rejected. A required input with no
// supplied value, no default, and no prompter is a configuration fault.
func (r *Resolver) Resolve(defs []schema.InputDef, supplied map[string]any) (map[string]any, error) {
	declared := make(map[string]bool, len(defs))
	vars := make(map[string]any, len(defs))

	for _, def := range defs {
		declared[def.Name] = true
		val, ok := supplied[def.Name]
		if !ok {
			if def.Default != nil {
				val = def.Default
			} else if def.Required {
				if r.prompter == nil {
					return nil, fault.New(fault.ConfigInvalid, "missing required input %q", def.Name).
						WithGuidance("Supply the input or run interactively")
				}
				prompted, err := r.prompter.Prompt(def)
				if err != nil {
					return nil, fmt.Errorf("prompt input %q: %w", def.Name, err)
				}
				coerced, err := Coerce(def.Type, prompted)
				if err != nil {
					return nil, fault.Wrap(fault.ConfigInvalid, err, "input %q", def.Name)
				}
				val = coerced
			} else {
				continue
			}
		}
		if len(def.Validation) > 0 {
			if res := r.validator.ValidateAll(val, def.Validation); !res.Valid {
				return nil, fault.Wrap(fault.ValidationFailed, res.Error, "input %q", def.Name)
			}
		}
		vars[def.Name] = val
	}

	for name := range supplied {
		if !declared[name] {
			return nil, fault.New(fault.ConfigInvalid, "undeclared input %q", name).
				WithGuidance("Declare the input in the playbook or remove it")
		}
	}
	return vars, nil
}

// Coerce converts a raw string (CLI flag or prompt answer) to the
// declared input type. An empty or "string" type passes through.
func Coerce(inputType, raw string) (any, error) {
	switch inputType {
	case "", "string":
		return raw, nil
	case "number":
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return n, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot read a %s value from a string", inputType)
	}
}
