// Package fault defines the typed error carried across engine boundaries.
// Every failure surfaced to an author has a stable code, a human-readable
// message, and actionable guidance text.
package fault

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code.
type Code string

const (
	ConfigInvalid       Code = "config_invalid"
	UnresolvedReference Code = "unresolved_reference"
	SandboxViolation    Code = "sandbox_violation"
	ExpressionTimeout   Code = "expression_timeout"
	NotFound            Code = "not_found"
	CycleDetected       Code = "cycle_detected"
	DepthExceeded       Code = "depth_exceeded"
	ValidationFailed    Code = "validation_failed"
	ExplicitFail        Code = "explicit_fail"
)

// Fault is the error type raised by the template engine, step executor,
// and actions. Action-specific faults pass through unchanged; everything
// the core raises itself is a *Fault.
type Fault struct {
	Code     Code
	Message  string
	Guidance string
	Meta     map[string]any
	cause    error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }

// New creates a fault with a formatted message.
func New(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault that wraps an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithGuidance attaches guidance text and returns the same fault.
func (f *Fault) WithGuidance(guidance string) *Fault {
	f.Guidance = guidance
	return f
}

// WithMeta attaches structured metadata and returns the same fault.
func (f *Fault) WithMeta(meta map[string]any) *Fault {
	f.Meta = meta
	return f
}

// CodeOf extracts the fault code from an error chain.
// Returns "" when err is nil or carries no *Fault.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// Is reports whether err carries the given fault code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
