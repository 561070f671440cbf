package actions

import (
	"context"
	"strings"
	"testing"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/schema"
	"github.com/catalystworks/catalyst/pkg/validate"
)

// libraryLoad serves playbooks from an in-memory map.
func libraryLoad(lib map[string]*schema.Playbook) LoadFunc {
	return func(identifier string) (*schema.Playbook, error) {
		pb, ok := lib[identifier]
		if !ok {
			return nil, fault.New(fault.NotFound, "playbook %q not found", identifier)
		}
		return pb, nil
	}
}

func newInvokeExec(t *testing.T, lib map[string]*schema.Playbook) (*engine.Executor, *captureAction) {
	t.Helper()
	exec, cap := newTestExec(t)
	if err := exec.Register(NewInvoke(exec, libraryLoad(lib))); err != nil {
		t.Fatalf("register invoke: %v", err)
	}
	return exec, cap
}

func TestInvokeRunsChildWithIsolatedScope(t *testing.T) {
	lib := map[string]*schema.Playbook{
		"greet": {
			Name:   "greet",
			Inputs: []schema.InputDef{{Name: "who", Type: "string", Required: true}},
			Steps: []schema.Step{
				{Name: "out", Action: "capture", With: map[string]any{schema.PrimaryKey: "hello {{who}}"}},
			},
		},
	}
	exec, cap := newInvokeExec(t, lib)
	steps := []schema.Step{{Name: "call", Action: "invoke", With: map[string]any{
		"playbook": "greet",
		"inputs":   map[string]any{"who": "{{caller}}"},
	}}}

	results, err := exec.ExecuteSteps(context.Background(), steps, map[string]any{"caller": "ops", "secret_var": "x"})
	if err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if len(cap.values) != 1 || cap.values[0] != "hello ops" {
		t.Errorf("captured %v, want [hello ops]", cap.values)
	}
	// Child output is the last step's value.
	if results[0].Value != "hello ops" {
		t.Errorf("invoke value = %v, want hello ops", results[0].Value)
	}
}

func TestInvokeAcceptsNameAlias(t *testing.T) {
	lib := map[string]*schema.Playbook{
		"greet": {
			Name: "greet",
			Steps: []schema.Step{
				{Action: "capture", With: map[string]any{schema.PrimaryKey: "hi"}},
			},
		},
	}
	exec, cap := newInvokeExec(t, lib)
	steps := []schema.Step{{Action: "invoke", With: map[string]any{"name": "greet"}}}

	if _, err := exec.ExecuteSteps(context.Background(), steps, nil); err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if len(cap.values) != 1 || cap.values[0] != "hi" {
		t.Errorf("captured %v, want [hi]", cap.values)
	}
}

func TestInvokeParentVariablesDoNotLeak(t *testing.T) {
	lib := map[string]*schema.Playbook{
		"child": {
			Name: "child",
			Steps: []schema.Step{
				{Action: "capture", With: map[string]any{schema.PrimaryKey: "{{parent_only}}"}},
			},
		},
	}
	exec, _ := newInvokeExec(t, lib)
	steps := []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "child"}}}

	_, err := exec.ExecuteSteps(context.Background(), steps, map[string]any{"parent_only": "visible"})
	if err == nil {
		t.Fatal("expected unresolved reference in isolated child scope")
	}
	if !fault.Is(err, fault.UnresolvedReference) {
		t.Errorf("expected unresolved_reference, got %v", err)
	}
}

func TestInvokeInputDefaultsAndValidation(t *testing.T) {
	min := 2
	lib := map[string]*schema.Playbook{
		"sized": {
			Name: "sized",
			Inputs: []schema.InputDef{
				{Name: "env", Type: "string", Default: "staging"},
				{Name: "tag", Type: "string", Required: true, Validation: []validate.Rule{
					{Type: validate.StringLength, MinLength: &min},
				}},
			},
			Steps: []schema.Step{
				{Action: "capture", With: map[string]any{schema.PrimaryKey: "{{env}}/{{tag}}"}},
			},
		},
	}

	t.Run("default applied", func(t *testing.T) {
		exec, cap := newInvokeExec(t, lib)
		steps := []schema.Step{{Action: "invoke", With: map[string]any{
			"playbook": "sized",
			"inputs":   map[string]any{"tag": "v1.2"},
		}}}
		if _, err := exec.ExecuteSteps(context.Background(), steps, nil); err != nil {
			t.Fatalf("ExecuteSteps: %v", err)
		}
		if len(cap.values) != 1 || cap.values[0] != "staging/v1.2" {
			t.Errorf("captured %v, want [staging/v1.2]", cap.values)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		exec, _ := newInvokeExec(t, lib)
		steps := []schema.Step{{Action: "invoke", With: map[string]any{
			"playbook": "sized",
			"inputs":   map[string]any{"tag": "v"},
		}}}
		_, err := exec.ExecuteSteps(context.Background(), steps, nil)
		if !fault.Is(err, fault.ValidationFailed) {
			t.Errorf("expected validation_failed, got %v", err)
		}
	})

	t.Run("missing required", func(t *testing.T) {
		exec, _ := newInvokeExec(t, lib)
		steps := []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "sized"}}}
		_, err := exec.ExecuteSteps(context.Background(), steps, nil)
		if !fault.Is(err, fault.ConfigInvalid) {
			t.Errorf("expected config_invalid, got %v", err)
		}
	})

	t.Run("undeclared input rejected", func(t *testing.T) {
		exec, _ := newInvokeExec(t, lib)
		steps := []schema.Step{{Action: "invoke", With: map[string]any{
			"playbook": "sized",
			"inputs":   map[string]any{"tag": "v1.2", "extra": true},
		}}}
		_, err := exec.ExecuteSteps(context.Background(), steps, nil)
		if !fault.Is(err, fault.ConfigInvalid) {
			t.Errorf("expected config_invalid, got %v", err)
		}
	})
}

func TestInvokeDetectsCycle(t *testing.T) {
	lib := map[string]*schema.Playbook{}
	lib["a"] = &schema.Playbook{
		Name:  "a",
		Steps: []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "b"}}},
	}
	lib["b"] = &schema.Playbook{
		Name:  "b",
		Steps: []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "a"}}},
	}
	exec, _ := newInvokeExec(t, lib)
	steps := []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "a"}}}

	_, err := exec.ExecuteSteps(context.Background(), steps, nil)
	if !fault.Is(err, fault.CycleDetected) {
		t.Fatalf("expected cycle_detected, got %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("cycle message should show the chain, got %q", err.Error())
	}
}

func TestInvokeEnforcesDepthLimit(t *testing.T) {
	// Each level invokes a distinct playbook so the cycle check never
	// fires; only the depth ceiling can stop the chain.
	lib := map[string]*schema.Playbook{}
	for i := 0; i < 6; i++ {
		name := string(rune('a' + i))
		next := string(rune('a' + i + 1))
		lib[name] = &schema.Playbook{
			Name:  name,
			Steps: []schema.Step{{Action: "invoke", With: map[string]any{"playbook": next}}},
		}
	}
	exec, _ := newInvokeExec(t, lib)
	exec.SetMaxDepth(3)
	steps := []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "a"}}}

	_, err := exec.ExecuteSteps(context.Background(), steps, nil)
	if !fault.Is(err, fault.DepthExceeded) {
		t.Fatalf("expected depth_exceeded, got %v", err)
	}
}

func TestInvokeEmptyChildOutput(t *testing.T) {
	lib := map[string]*schema.Playbook{
		"quiet": {
			Name:  "quiet",
			Steps: []schema.Step{{Action: "capture", With: map[string]any{schema.PrimaryKey: ""}}},
		},
	}
	exec, _ := newInvokeExec(t, lib)
	steps := []schema.Step{{Action: "invoke", With: map[string]any{"playbook": "quiet"}}}

	results, err := exec.ExecuteSteps(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if _, ok := results[0].Value.(map[string]any); results[0].Value != "" && !ok {
		t.Errorf("expected empty-string or empty-map output, got %v", results[0].Value)
	}
}
