package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// RunConfig carries per-run settings for a full playbook execution.
type RunConfig struct {
	RunID  string
	Inputs map[string]any
	// Observe, when set, is called after each top-level step finishes.
	// Nested step lists inside control-flow actions are not observed.
	Observe func(index int, res Result)
}

// RunOutcome is the complete record of one playbook run. Results holds
// the main step list plus any catch and finally results, in execution
// order. Err is nil only when the run succeeded end to end.
type RunOutcome struct {
	RunID   string
	Results []Result
	Outputs map[string]any
	Err     error
	Started time.Time
	Ended   time.Time
}

// Run executes a playbook document end to end: the main step list, the
// catch list when the main list failed, the finally list always, then
// the declared outputs. A successful catch does not clear the original
// failure; catch steps are compensation, not recovery.
func (x *Executor) Run(ctx context.Context, pb *schema.Playbook, cfg RunConfig) *RunOutcome {
	out := &RunOutcome{RunID: cfg.RunID, Started: time.Now()}
	frame := x.WithFrame(pb.Name)

	results, runErr := frame.executeList(ctx, pb.Steps, cfg.Inputs, cfg.Observe)
	out.Results = results
	out.Err = runErr

	scope := finalScope(cfg.Inputs, results)

	if runErr != nil && len(pb.Catch) > 0 {
		catchScope := withError(scope, runErr)
		catchResults, catchErr := frame.ExecuteSteps(ctx, pb.Catch, catchScope)
		out.Results = append(out.Results, catchResults...)
		if catchErr != nil {
			out.Err = fmt.Errorf("%w (catch also failed: %v)", runErr, catchErr)
		}
	}

	if len(pb.Finally) > 0 {
		finallyScope := scope
		if runErr != nil {
			finallyScope = withError(scope, runErr)
		}
		finallyResults, finallyErr := frame.ExecuteSteps(ctx, pb.Finally, finallyScope)
		out.Results = append(out.Results, finallyResults...)
		if finallyErr != nil && out.Err == nil {
			out.Err = fmt.Errorf("finally: %w", finallyErr)
		}
	}

	if out.Err == nil && len(pb.Outputs) > 0 {
		outputs := make(map[string]any, len(pb.Outputs))
		for name, expr := range pb.Outputs {
			v, err := x.tmpl.InterpolateValue(expr, scope)
			if err != nil {
				out.Err = fmt.Errorf("output %q: %w", name, err)
				break
			}
			outputs[name] = v
		}
		if out.Err == nil {
			out.Outputs = outputs
		}
	}

	out.Ended = time.Now()
	return out
}

// finalScope rebuilds the variable scope visible after the main step
// list: the run inputs overlaid with every named step's result value.
func finalScope(inputs map[string]any, results []Result) map[string]any {
	scope := make(map[string]any, len(inputs)+len(results))
	for k, v := range inputs {
		scope[k] = v
	}
	for _, r := range results {
		if r.Step != "" && r.Err == nil {
			scope[r.Step] = r.Value
		}
	}
	return scope
}

// withError derives a scope exposing the failure to catch and finally
// steps under the reserved name "error".
func withError(scope map[string]any, err error) map[string]any {
	derived := make(map[string]any, len(scope)+1)
	for k, v := range scope {
		derived[k] = v
	}
	info := map[string]any{"message": err.Error()}
	if code := fault.CodeOf(err); code != "" {
		info["code"] = string(code)
	}
	derived["error"] = info
	return derived
}
