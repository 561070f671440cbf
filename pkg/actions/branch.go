package actions

import (
	"context"
	"fmt"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// Branch executes one of two nested step lists depending on a condition.
// The condition arrives already interpolated; host truthiness decides
// the arm. An empty condition is a configuration error, not a falsy one.
type Branch struct {
	exec *engine.Executor
}

// NewBranch creates the branch action around its executor capability.
func NewBranch(exec *engine.Executor) *Branch {
	return &Branch{exec: exec}
}

func (b *Branch) Name() string { return "branch" }

// PrimaryProperty enables `with: <condition>` shorthand.
func (b *Branch) PrimaryProperty() string { return "condition" }

// RawFields keeps nested step lists uninterpolated until they run.
func (b *Branch) RawFields() []string { return []string{"then", "else"} }

func (b *Branch) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	cond, ok := cfg["condition"]
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "branch: missing required \"condition\"")
	}
	if s, isString := cond.(string); isString && s == "" {
		return nil, fault.New(fault.ConfigInvalid, "branch: \"condition\" must not be empty")
	}

	exec := engine.FromContext(ctx, b.exec)

	thenRaw, ok := cfg["then"]
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "branch: missing required \"then\"")
	}
	thenSteps, err := stepList("branch", "then", thenRaw, exec)
	if err != nil {
		return nil, err
	}
	if len(thenSteps) == 0 {
		return nil, fault.New(fault.ConfigInvalid, "branch: \"then\" must not be empty")
	}

	var elseSteps []schema.Step
	if elseRaw, hasElse := cfg["else"]; hasElse {
		steps, err := stepList("branch", "else", elseRaw, exec)
		if err != nil {
			return nil, err
		}
		elseSteps = steps
	}

	taken := "none"
	executed := 0
	scope := engine.ScopeFrom(ctx)

	switch {
	case truthy(cond):
		taken = "then"
		results, err := exec.ExecuteSteps(ctx, thenSteps, scope)
		executed = len(results)
		if err != nil {
			return branchResult(taken, executed), fmt.Errorf("branch then: %w", err)
		}
	case len(elseSteps) > 0:
		taken = "else"
		results, err := exec.ExecuteSteps(ctx, elseSteps, scope)
		executed = len(results)
		if err != nil {
			return branchResult(taken, executed), fmt.Errorf("branch else: %w", err)
		}
	}

	return branchResult(taken, executed), nil
}

func branchResult(taken string, executed int) *engine.Result {
	return &engine.Result{
		Code:    "branch_" + taken,
		Message: fmt.Sprintf("branch took %q, executed %d step(s)", taken, executed),
		Value: map[string]any{
			"branch":   taken,
			"executed": executed,
		},
	}
}
