package actions

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// ProcessResult captures one command execution.
type ProcessResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// ProcessRunner runs external commands. Tests substitute a fake; the
// shell action defaults to ExecRunner.
type ProcessRunner interface {
	Run(ctx context.Context, command string, args []string, env []string) (*ProcessResult, error)
}

// ExecRunner runs commands via os/exec with context cancellation.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, command string, args []string, env []string) (*ProcessResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run command %q: %w", command, err)
		}
	}

	return &ProcessResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// Shell runs an external command and exposes its stdout, stderr and
// exit code to later steps. A nonzero exit fails the step unless
// allow_failure is set.
type Shell struct {
	runner ProcessRunner
}

// NewShell creates the shell action. runner may be nil for the real
// os/exec runner.
func NewShell(runner ProcessRunner) *Shell {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Shell{runner: runner}
}

func (s *Shell) Name() string { return "shell" }

// PrimaryProperty enables `with: hostname` shorthand.
func (s *Shell) PrimaryProperty() string { return "command" }

func (s *Shell) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	command, err := requireString(cfg, "command", "shell")
	if err != nil {
		return nil, err
	}

	var args []string
	if raw, ok := cfg["args"]; ok && raw != nil {
		list, isList := raw.([]any)
		if !isList {
			return nil, fault.New(fault.ConfigInvalid, "shell: \"args\" must be an array, got %T", raw)
		}
		args = make([]string, len(list))
		for i, v := range list {
			str, isStr := v.(string)
			if !isStr {
				return nil, fault.New(fault.ConfigInvalid, "shell: args[%d] must be a string, got %T", i, v)
			}
			args[i] = str
		}
	}

	var env []string
	if raw, ok := cfg["env"]; ok && raw != nil {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fault.New(fault.ConfigInvalid, "shell: \"env\" must be a mapping, got %T", raw)
		}
		for k, v := range m {
			env = append(env, fmt.Sprintf("%s=%v", k, v))
		}
	}

	allowFailure := false
	if raw, ok := cfg["allow_failure"]; ok {
		allowFailure = truthy(raw)
	}

	if raw, ok := cfg["timeout"]; ok && raw != nil {
		str, isStr := raw.(string)
		if !isStr {
			return nil, fault.New(fault.ConfigInvalid, "shell: \"timeout\" must be a duration string, got %T", raw)
		}
		d, perr := time.ParseDuration(str)
		if perr != nil {
			return nil, fault.New(fault.ConfigInvalid, "shell: invalid timeout %q: %v", str, perr)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	pr, err := s.runner.Run(ctx, command, args, env)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "shell: command %q could not start", command).
			WithGuidance("Check that the executable exists and is on PATH")
	}

	res := &engine.Result{
		Code:    fmt.Sprintf("exit_%d", pr.ExitCode),
		Message: fmt.Sprintf("%s exited with code %d in %s", command, pr.ExitCode, pr.Duration.Round(time.Millisecond)),
		Value: map[string]any{
			"stdout":    strings.TrimRight(string(pr.Stdout), "\n"),
			"stderr":    strings.TrimRight(string(pr.Stderr), "\n"),
			"exit_code": pr.ExitCode,
		},
	}
	if pr.ExitCode != 0 && !allowFailure {
		return res, fault.New(fault.ExplicitFail, "shell: %s exited with code %d", command, pr.ExitCode).
			WithMeta(map[string]any{"exit_code": pr.ExitCode, "stderr": strings.TrimRight(string(pr.Stderr), "\n")})
	}
	return res, nil
}
