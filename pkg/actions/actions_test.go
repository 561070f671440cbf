package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// captureAction records every value it is executed with.
type captureAction struct {
	values []any
}

func (c *captureAction) Name() string            { return "capture" }
func (c *captureAction) PrimaryProperty() string { return "value" }

func (c *captureAction) Execute(_ context.Context, cfg map[string]any) (*engine.Result, error) {
	v := cfg["value"]
	c.values = append(c.values, v)
	return &engine.Result{Code: "captured", Value: v}, nil
}

// boomAction always fails.
type boomAction struct{}

func (boomAction) Name() string { return "boom" }

func (boomAction) Execute(context.Context, map[string]any) (*engine.Result, error) {
	return nil, errors.New("boom")
}

func newTestExec(t *testing.T) (*engine.Executor, *captureAction) {
	t.Helper()
	exec := engine.New(nil)
	cap := &captureAction{}
	for _, a := range []engine.Action{NewBranch(exec), NewIterate(exec), cap, boomAction{}} {
		if err := exec.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.Name(), err)
		}
	}
	return exec, cap
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, false},
		{"empty string", "", false},
		{"false string", "false", false},
		{"zero string", "0", true},
		{"text", "deploy", true},
		{"zero int", 0, false},
		{"int", 7, true},
		{"zero float", 0.0, false},
		{"float", 0.5, true},
		{"map", map[string]any{}, true},
		{"slice", []any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truthy(tt.in); got != tt.want {
				t.Errorf("truthy(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStepListRejectsMalformedEntries(t *testing.T) {
	exec, _ := newTestExec(t)
	tests := []struct {
		name string
		raw  any
	}{
		{"not a list", "capture"},
		{"entry not a map", []any{"capture"}},
		{"missing action", []any{map[string]any{"name": "x"}}},
		{"unknown field", []any{map[string]any{"action": "capture", "when": "always"}}},
		{"unknown action", []any{map[string]any{"action": "nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := stepList("branch", "then", tt.raw, exec); err == nil {
				t.Fatal("expected error, got nil")
			} else if !fault.Is(err, fault.ConfigInvalid) {
				t.Errorf("expected config_invalid, got %v", err)
			}
		})
	}
}

func TestStepListScalarWithShorthand(t *testing.T) {
	exec, _ := newTestExec(t)
	steps, err := stepList("iterate", "steps", []any{
		map[string]any{"action": "capture", "with": "hello"},
	}, exec)
	if err != nil {
		t.Fatalf("stepList: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if len(steps[0].With) != 1 {
		t.Fatalf("expected shorthand config, got %v", steps[0].With)
	}
}
