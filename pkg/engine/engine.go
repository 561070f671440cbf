// Package engine drives ordered execution of playbook steps against a
// variable scope. Each step's configuration is interpolated through the
// template engine, dispatched to the matching action, and a named step's
// result value is folded back into the scope visible to later steps.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
	"github.com/catalystworks/catalyst/pkg/template"
)

// DefaultMaxDepth limits how deep sub-playbook invocation can recurse.
const DefaultMaxDepth = 10

// Result is the uniform outcome envelope of one executed step.
// Success ⇔ Err is nil.
type Result struct {
	Step    string `json:"step,omitempty"`
	Action  string `json:"action"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Value   any    `json:"value,omitempty"`
	Err     error  `json:"-"`
}

// OK reports whether the step succeeded.
func (r *Result) OK() bool { return r.Err == nil }

// Action is the polymorphic unit of work consumed by the executor.
// Execute MUST NOT mutate the configuration tree it receives.
type Action interface {
	Name() string
	Execute(ctx context.Context, cfg map[string]any) (*Result, error)
}

// PrimaryConfigurer is implemented by actions accepting a shorthand
// single-value configuration form; the value is placed under the
// returned property name.
type PrimaryConfigurer interface {
	PrimaryProperty() string
}

// RawConfigurer is implemented by actions whose named top-level
// configuration fields must be passed through uninterpolated. Control-flow
// actions use this for nested step lists, whose template strings are
// resolved only when the nested executor runs them.
type RawConfigurer interface {
	RawFields() []string
}

// Dependency declares an external requirement of an action.
type Dependency struct {
	Kind string `json:"kind"` // cli, env
	Name string `json:"name"`
}

// DependencyDeclarer is implemented by actions with external dependencies.
type DependencyDeclarer interface {
	Dependencies() []Dependency
}

// Executor iterates a step list against a variable scope. The call stack
// of in-flight playbook names is plain data threaded through derived
// executors, shared read-only down the recursion chain.
type Executor struct {
	actions  map[string]Action
	tmpl     *template.Engine
	stack    []string
	maxDepth int
}

// New creates an executor around a template engine. A nil tmpl gets a
// fresh engine with default settings.
func New(tmpl *template.Engine) *Executor {
	if tmpl == nil {
		tmpl = template.New()
	}
	return &Executor{
		actions:  make(map[string]Action),
		tmpl:     tmpl,
		maxDepth: DefaultMaxDepth,
	}
}

// Register adds an action to the dispatch table.
func (x *Executor) Register(a Action) error {
	name := a.Name()
	if name == "" {
		return fault.New(fault.ConfigInvalid, "action has no name")
	}
	if _, exists := x.actions[name]; exists {
		return fault.New(fault.ConfigInvalid, "action %q already registered", name)
	}
	x.actions[name] = a
	return nil
}

// Lookup returns the action registered under name.
func (x *Executor) Lookup(name string) (Action, bool) {
	a, ok := x.actions[name]
	return a, ok
}

// ActionNames returns the registered action names, sorted.
func (x *Executor) ActionNames() []string {
	names := make([]string, 0, len(x.actions))
	for name := range x.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template returns the executor's template engine.
func (x *Executor) Template() *template.Engine { return x.tmpl }

// CallStack returns the ordered chain of in-flight playbook names.
func (x *Executor) CallStack() []string {
	out := make([]string, len(x.stack))
	copy(out, x.stack)
	return out
}

// MaxDepth returns the invocation depth ceiling.
func (x *Executor) MaxDepth() int { return x.maxDepth }

// SetMaxDepth overrides the invocation depth ceiling.
func (x *Executor) SetMaxDepth(n int) {
	if n > 0 {
		x.maxDepth = n
	}
}

// WithFrame returns a derived executor whose call stack is extended by
// one playbook name. Registry and template engine are shared; the stack
// slice is copied so sibling frames never alias.
func (x *Executor) WithFrame(playbook string) *Executor {
	stack := make([]string, len(x.stack), len(x.stack)+1)
	copy(stack, x.stack)
	return &Executor{
		actions:  x.actions,
		tmpl:     x.tmpl,
		stack:    append(stack, playbook),
		maxDepth: x.maxDepth,
	}
}

// ExecuteSteps executes steps strictly in order. vars seeds a derived
// scope — the caller's map is never mutated. A named step's result value
// becomes visible to later steps under the step name. The first failing
// step halts execution; its result is included in the returned list.
func (x *Executor) ExecuteSteps(ctx context.Context, steps []schema.Step, vars map[string]any) ([]Result, error) {
	return x.executeList(ctx, steps, vars, nil)
}

func (x *Executor) executeList(ctx context.Context, steps []schema.Step, vars map[string]any, observe func(index int, res Result)) ([]Result, error) {
	scope := make(map[string]any, len(vars)+len(steps))
	for k, v := range vars {
		scope[k] = v
	}

	results := make([]Result, 0, len(steps))
	for i, step := range steps {
		res, err := x.executeStep(ctx, step, scope)
		res.Step = step.Name
		res.Action = step.Action
		res.Err = err
		results = append(results, res)
		if observe != nil {
			observe(i, res)
		}
		if err != nil {
			return results, fmt.Errorf("step %s: %w", describeStep(i, step), err)
		}
		if step.Name != "" {
			scope[step.Name] = res.Value
		}
	}
	return results, nil
}

func (x *Executor) executeStep(ctx context.Context, step schema.Step, scope map[string]any) (Result, error) {
	action, ok := x.actions[step.Action]
	if !ok {
		return Result{}, fault.New(fault.NotFound, "unknown action %q", step.Action).
			WithGuidance(fmt.Sprintf("Registered actions: %s", strings.Join(x.ActionNames(), ", ")))
	}

	cfg, err := x.interpolateConfig(action, step.With, scope)
	if err != nil {
		return Result{}, err
	}

	res, err := action.Execute(withExecutor(withScope(ctx, scope), x), cfg)
	if res == nil {
		res = &Result{}
	}
	return *res, err
}

// interpolateConfig renders a step's configuration tree against the
// current scope. Interpolation never mutates the scope or the playbook's
// configuration tree. Fields an action declares raw are passed through
// untouched.
func (x *Executor) interpolateConfig(action Action, raw map[string]any, scope map[string]any) (map[string]any, error) {
	// Shorthand single-value form: map the scalar onto the action's
	// primary property before interpolation.
	if v, isShorthand := raw[schema.PrimaryKey]; isShorthand && len(raw) == 1 {
		pc, accepts := action.(PrimaryConfigurer)
		if !accepts {
			return nil, fault.New(fault.ConfigInvalid, "action %q does not accept shorthand configuration", action.Name())
		}
		raw = map[string]any{pc.PrimaryProperty(): v}
	}

	rawFields := map[string]bool{}
	if rc, ok := action.(RawConfigurer); ok {
		for _, f := range rc.RawFields() {
			rawFields[f] = true
		}
	}

	cfg := make(map[string]any, len(raw))
	for k, v := range raw {
		if rawFields[k] {
			cfg[k] = v
			continue
		}
		interpolated, err := x.tmpl.InterpolateValue(v, scope)
		if err != nil {
			return nil, fmt.Errorf("interpolate configuration %q: %w", k, err)
		}
		cfg[k] = interpolated
	}
	return cfg, nil
}

type scopeKey struct{}

type execKey struct{}

// withExecutor records the dispatching executor so control-flow actions
// re-enter through the frame that invoked them, not the executor they
// were constructed with. Without this, a nested invoke would read the
// root frame's empty call stack and the cycle/depth guards could never
// fire through recursion.
func withExecutor(ctx context.Context, x *Executor) context.Context {
	return context.WithValue(ctx, execKey{}, x)
}

// FromContext returns the executor that dispatched the current step.
// Actions invoked outside a step dispatch get the fallback.
func FromContext(ctx context.Context, fallback *Executor) *Executor {
	if x, ok := ctx.Value(execKey{}).(*Executor); ok {
		return x
	}
	return fallback
}

// withScope attaches a read-only snapshot of the current scope to ctx.
func withScope(ctx context.Context, scope map[string]any) context.Context {
	snapshot := make(map[string]any, len(scope))
	for k, v := range scope {
		snapshot[k] = v
	}
	return context.WithValue(ctx, scopeKey{}, snapshot)
}

// ScopeFrom returns a derived copy of the variable scope the current
// step was dispatched with. Mutating the copy never affects the parent
// scope. Control-flow actions use this to seed nested step lists.
func ScopeFrom(ctx context.Context) map[string]any {
	snapshot, _ := ctx.Value(scopeKey{}).(map[string]any)
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = v
	}
	return out
}

func describeStep(index int, step schema.Step) string {
	if step.Name != "" {
		return fmt.Sprintf("%q (%s)", step.Name, step.Action)
	}
	return fmt.Sprintf("[%d] (%s)", index, step.Action)
}
