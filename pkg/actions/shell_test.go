package actions

import (
	"context"
	"testing"
	"time"

	"github.com/catalystworks/catalyst/pkg/fault"
)

// fakeRunner records the last invocation and returns a canned result.
type fakeRunner struct {
	command string
	args    []string
	env     []string
	result  *ProcessResult
	err     error
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, env []string) (*ProcessResult, error) {
	f.command = command
	f.args = args
	f.env = env
	return f.result, f.err
}

func TestShellSuccessExposesOutput(t *testing.T) {
	runner := &fakeRunner{result: &ProcessResult{
		Stdout:   []byte("web1\n"),
		ExitCode: 0,
		Duration: 12 * time.Millisecond,
	}}
	s := NewShell(runner)
	res, err := s.Execute(context.Background(), map[string]any{
		"command": "hostname",
		"args":    []any{"-s"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if runner.command != "hostname" || len(runner.args) != 1 || runner.args[0] != "-s" {
		t.Errorf("runner got %q %v", runner.command, runner.args)
	}
	value := res.Value.(map[string]any)
	if value["stdout"] != "web1" {
		t.Errorf("stdout = %v, want web1 without trailing newline", value["stdout"])
	}
	if value["exit_code"] != 0 {
		t.Errorf("exit_code = %v", value["exit_code"])
	}
}

func TestShellNonzeroExitFails(t *testing.T) {
	runner := &fakeRunner{result: &ProcessResult{
		Stderr:   []byte("no such unit\n"),
		ExitCode: 4,
	}}
	s := NewShell(runner)
	res, err := s.Execute(context.Background(), map[string]any{"command": "systemctl"})
	if !fault.Is(err, fault.ExplicitFail) {
		t.Fatalf("expected explicit_fail, got %v", err)
	}
	// The result still carries the captured output for diagnostics.
	if res == nil {
		t.Fatal("expected result alongside the error")
	}
	if res.Value.(map[string]any)["exit_code"] != 4 {
		t.Errorf("exit_code = %v", res.Value.(map[string]any)["exit_code"])
	}
}

func TestShellAllowFailure(t *testing.T) {
	runner := &fakeRunner{result: &ProcessResult{ExitCode: 1}}
	s := NewShell(runner)
	res, err := s.Execute(context.Background(), map[string]any{
		"command":       "grep",
		"args":          []any{"pattern", "file.log"},
		"allow_failure": true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Code != "exit_1" {
		t.Errorf("code = %q, want exit_1", res.Code)
	}
}

func TestShellConfigErrors(t *testing.T) {
	s := NewShell(&fakeRunner{result: &ProcessResult{}})
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing command", map[string]any{}},
		{"args not a list", map[string]any{"command": "ls", "args": "-la"}},
		{"arg not a string", map[string]any{"command": "ls", "args": []any{1}}},
		{"env not a map", map[string]any{"command": "ls", "env": "PATH=/bin"}},
		{"bad timeout", map[string]any{"command": "ls", "timeout": "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Execute(context.Background(), tt.cfg); !fault.Is(err, fault.ConfigInvalid) {
				t.Errorf("expected config_invalid, got %v", err)
			}
		})
	}
}

func TestShellEnvFormatting(t *testing.T) {
	runner := &fakeRunner{result: &ProcessResult{}}
	s := NewShell(runner)
	if _, err := s.Execute(context.Background(), map[string]any{
		"command": "deploy",
		"env":     map[string]any{"REGION": "eu-west"},
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(runner.env) != 1 || runner.env[0] != "REGION=eu-west" {
		t.Errorf("env = %v", runner.env)
	}
}
