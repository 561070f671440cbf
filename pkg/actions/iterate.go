package actions

import (
	"context"
	"fmt"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// Iterate runs a nested step list once per element of an array, binding
// the current element and zero-based index under configurable variable
// names. Bindings shadow parent variables for that iteration only.
// Iterations are strictly ordered; a failed iteration halts the loop.
type Iterate struct {
	exec *engine.Executor
}

// NewIterate creates the iterate action around its executor capability.
func NewIterate(exec *engine.Executor) *Iterate {
	return &Iterate{exec: exec}
}

func (it *Iterate) Name() string { return "iterate" }

// PrimaryProperty enables `with: ${{ get("items") }}` shorthand.
func (it *Iterate) PrimaryProperty() string { return "in" }

// RawFields keeps the nested step list uninterpolated until each
// iteration runs it, so loop bindings resolve.
func (it *Iterate) RawFields() []string { return []string{"steps"} }

func (it *Iterate) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	exec := engine.FromContext(ctx, it.exec)

	inRaw, ok := cfg["in"]
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "iterate: missing required \"in\"")
	}
	items, isSlice := inRaw.([]any)
	if !isSlice {
		return nil, fault.New(fault.ConfigInvalid, "iterate: \"in\" must resolve to an array, got %T", inRaw).
			WithGuidance("Use a type-preserving reference such as \"${{ get(\\\"items\\\") }}\"")
	}

	itemVar, err := optionalString(cfg, "item", "iterate")
	if err != nil {
		return nil, err
	}
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar, err := optionalString(cfg, "index", "iterate")
	if err != nil {
		return nil, err
	}
	if indexVar == "" {
		indexVar = "index"
	}

	stepsRaw, ok := cfg["steps"]
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "iterate: missing required \"steps\"")
	}
	steps, err := stepList("iterate", "steps", stepsRaw, exec)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fault.New(fault.ConfigInvalid, "iterate: \"steps\" must not be empty")
	}

	scope := engine.ScopeFrom(ctx)
	completed, failed := 0, 0

	for i, item := range items {
		iterScope := make(map[string]any, len(scope)+2)
		for k, v := range scope {
			iterScope[k] = v
		}
		iterScope[itemVar] = item
		iterScope[indexVar] = i

		if _, err := exec.ExecuteSteps(ctx, steps, iterScope); err != nil {
			failed++
			return iterateResult(len(items), completed, failed),
				fmt.Errorf("iteration %d: %w", i, err)
		}
		completed++
	}

	return iterateResult(len(items), completed, failed), nil
}

func iterateResult(iterations, completed, failed int) *engine.Result {
	return &engine.Result{
		Code:    "iterate_done",
		Message: fmt.Sprintf("%d iteration(s): %d completed, %d failed", iterations, completed, failed),
		Value: map[string]any{
			"iterations": iterations,
			"completed":  completed,
			"failed":     failed,
		},
	}
}
