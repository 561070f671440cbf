// Package actions implements the built-in playbook actions: the
// control-flow actions (branch, iterate, invoke, fail) that recursively
// re-enter the step executor, and the leaf actions (shell, ai, log) that
// reach external collaborators through narrow interfaces.
package actions

import (
	"fmt"
	"strings"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// requireString extracts a non-empty string configuration field.
func requireString(cfg map[string]any, key, action string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		return "", fault.New(fault.ConfigInvalid, "%s: missing required %q", action, key)
	}
	s, isString := v.(string)
	if !isString {
		return "", fault.New(fault.ConfigInvalid, "%s: %q must be a string, got %T", action, key, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fault.New(fault.ConfigInvalid, "%s: %q must not be empty", action, key)
	}
	return s, nil
}

func optionalString(cfg map[string]any, key, action string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", fault.New(fault.ConfigInvalid, "%s: %q must be a string, got %T", action, key, v)
	}
	return s, nil
}

// truthy applies host truthiness: nil, numeric zero, empty string, and
// the string "false" are falsy; every other value — including the string
// "0" — is truthy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.TrimSpace(val)
		return s != "" && s != "false"
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// stepList converts a raw configuration value into a step list,
// validating that every entry is well-formed and names a registered
// action.
func stepList(action, field string, raw any, x *engine.Executor) ([]schema.Step, error) {
	entries, ok := raw.([]any)
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "%s: %q must be a step list, got %T", action, field, raw)
	}
	steps := make([]schema.Step, 0, len(entries))
	for i, entry := range entries {
		m, isMap := entry.(map[string]any)
		if !isMap {
			return nil, fault.New(fault.ConfigInvalid, "%s: %s[%d] must be an object, got %T", action, field, i, entry)
		}
		step, err := stepFromMap(m)
		if err != nil {
			return nil, fault.Wrap(fault.ConfigInvalid, err, "%s: %s[%d]", action, field, i)
		}
		if _, registered := x.Lookup(step.Action); !registered {
			return nil, fault.New(fault.ConfigInvalid, "%s: %s[%d] names unknown action %q", action, field, i, step.Action).
				WithGuidance(fmt.Sprintf("Registered actions: %s", strings.Join(x.ActionNames(), ", ")))
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func stepFromMap(m map[string]any) (schema.Step, error) {
	var step schema.Step
	for key, v := range m {
		switch key {
		case "name":
			s, ok := v.(string)
			if !ok {
				return step, fmt.Errorf("name must be a string, got %T", v)
			}
			step.Name = s
		case "action":
			s, ok := v.(string)
			if !ok {
				return step, fmt.Errorf("action must be a string, got %T", v)
			}
			step.Action = s
		case "with":
			if cfg, ok := v.(map[string]any); ok {
				step.With = cfg
			} else {
				step.With = map[string]any{schema.PrimaryKey: v}
			}
		default:
			return step, fmt.Errorf("unknown field %q", key)
		}
	}
	if strings.TrimSpace(step.Action) == "" {
		return step, fmt.Errorf("step has no action")
	}
	return step, nil
}
