package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
	pkginputs "github.com/catalystworks/catalyst/pkg/inputs"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// LoadFunc resolves a playbook identifier to its validated definition.
// The playbook registry satisfies this signature.
type LoadFunc func(identifier string) (*schema.Playbook, error)

// Invoke runs another playbook as a child of the current run. The child
// executes with its own variable scope seeded only from the declared
// inputs; parent variables never leak in. Recursion is bounded by the
// executor call stack: re-entering a playbook already on the stack is a
// cycle, and exceeding the depth limit aborts before loading.
type Invoke struct {
	exec *engine.Executor
	load LoadFunc
}

// NewInvoke creates the invoke action. load resolves playbook
// identifiers, typically a playbooks.Registry.
func NewInvoke(exec *engine.Executor, load LoadFunc) *Invoke {
	return &Invoke{exec: exec, load: load}
}

func (iv *Invoke) Name() string { return "invoke" }

// PrimaryProperty enables `with: deploy/rollout` shorthand.
func (iv *Invoke) PrimaryProperty() string { return "playbook" }

func (iv *Invoke) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	// "playbook" is the canonical key; "name" is accepted as an alias
	// so authors can mirror the step-level field.
	key := "playbook"
	if _, ok := cfg[key]; !ok {
		if _, ok := cfg["name"]; ok {
			key = "name"
		}
	}
	name, err := requireString(cfg, key, "invoke")
	if err != nil {
		return nil, err
	}

	var inputs map[string]any
	if raw, ok := cfg["inputs"]; ok && raw != nil {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fault.New(fault.ConfigInvalid, "invoke: \"inputs\" must be a mapping, got %T", raw)
		}
		inputs = m
	}

	exec := engine.FromContext(ctx, iv.exec)
	stack := exec.CallStack()
	for _, frame := range stack {
		if frame == name {
			chain := strings.Join(append(stack, name), " -> ")
			return nil, fault.New(fault.CycleDetected, "invoke: playbook cycle: %s", chain).
				WithGuidance("Remove the recursive invoke or restructure the playbooks")
		}
	}
	if len(stack) >= exec.MaxDepth() {
		return nil, fault.New(fault.DepthExceeded, "invoke: call depth %d exceeds limit %d", len(stack), exec.MaxDepth()).
			WithGuidance("Deeply nested invoke chains usually indicate unintended recursion")
	}

	pb, err := iv.load(name)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", name, err)
	}

	// Child scope is exactly the declared inputs; parent variables
	// never leak in. Non-interactive: a missing required input fails.
	resolver := pkginputs.NewResolver(exec.Template(), nil)
	vars, err := resolver.Resolve(pb.Inputs, inputs)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", name, err)
	}

	child := exec.WithFrame(name)
	results, err := child.ExecuteSteps(ctx, pb.Steps, vars)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", name, err)
	}

	var output any = map[string]any{}
	if len(results) > 0 {
		if v := results[len(results)-1].Value; v != nil {
			output = v
		}
	}
	return &engine.Result{
		Code:    "invoke_done",
		Message: fmt.Sprintf("playbook %q completed (%d step(s))", name, len(results)),
		Value:   output,
	}, nil
}

