package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

var failCodeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fail aborts the current run with a caller-chosen machine-readable
// code. It never returns a success result.
type Fail struct {
	warn io.Writer
}

// NewFail creates the fail action. Warnings about malformed codes go to
// warn; pass nil for stderr.
func NewFail(warn io.Writer) *Fail {
	if warn == nil {
		warn = os.Stderr
	}
	return &Fail{warn: warn}
}

func (f *Fail) Name() string { return "fail" }

// PrimaryProperty enables `with: quota_exceeded` shorthand.
func (f *Fail) PrimaryProperty() string { return "code" }

func (f *Fail) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	code, err := requireString(cfg, "code", "fail")
	if err != nil {
		return nil, err
	}
	if !failCodeRe.MatchString(code) {
		fmt.Fprintf(f.warn, "warning: fail code %q is not identifier-shaped; downstream matching may break\n", code)
	}

	message, err := optionalString(cfg, "message", "fail")
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Playbook failed"
	}
	guidance, err := optionalString(cfg, "guidance", "fail")
	if err != nil {
		return nil, err
	}
	if guidance == "" {
		guidance = "Check playbook execution logs for details"
	}

	var metadata map[string]any
	if raw, ok := cfg["metadata"]; ok && raw != nil {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fault.New(fault.ConfigInvalid, "fail: \"metadata\" must be a mapping, got %T", raw)
		}
		metadata = m
	}

	return nil, fault.New(fault.ExplicitFail, "%s", message).
		WithGuidance(guidance).
		WithMeta(map[string]any{"code": code, "metadata": metadata})
}
