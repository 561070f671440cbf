// Package template implements string interpolation and sandboxed
// expression evaluation for playbook configuration values.
//
// Two syntaxes are processed in a fixed order: `${{ expr }}` expression
// evaluation first, then `{{ path.to.value }}` plain substitution.
// Expressions run inside an expr-lang sandbox whose only bindings are a
// get(path) accessor and explicitly registered functions — the sandbox
// is allow-listed, not deny-listed. Registered secret values are masked
// from every output surface, including error text.
package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/catalystworks/catalyst/pkg/fault"
)

// DefaultEvalTimeout bounds a single expression evaluation.
const DefaultEvalTimeout = 10 * time.Second

var (
	exprRe  = regexp.MustCompile(`(?s)\$\{\{(.*?)\}\}`)
	plainRe = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Engine interpolates templates against a variable scope. Function and
// secret registries are per-instance state — callers construct one
// engine per execution context, never a process-wide singleton.
type Engine struct {
	funcs   map[string]any
	secrets map[string]string
	timeout time.Duration
}

// New creates an engine with the default evaluation timeout.
func New() *Engine {
	return &Engine{
		funcs:   make(map[string]any),
		secrets: make(map[string]string),
		timeout: DefaultEvalTimeout,
	}
}

// SetEvalTimeout overrides the expression evaluation ceiling.
func (e *Engine) SetEvalTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// RegisterFunction exposes fn to expression evaluation under name.
// fn must be a Go function; "get" and "ctx" are reserved.
func (e *Engine) RegisterFunction(name string, fn any) error {
	if !identRe.MatchString(name) {
		return fault.New(fault.ConfigInvalid, "invalid function name %q", name)
	}
	if name == "get" || name == "ctx" {
		return fault.New(fault.ConfigInvalid, "function name %q is reserved", name)
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return fault.New(fault.ConfigInvalid, "registered value for %q is not a function", name)
	}
	e.funcs[name] = fn
	return nil
}

// RegisterSecret records a secret value to redact from all output under
// the given symbolic name. The value itself is never exposed to
// expressions.
func (e *Engine) RegisterSecret(name, value string) {
	e.secrets[name] = value
}

// Interpolate renders a template string against ctx. Expressions are
// evaluated first, then plain substitutions; secrets are masked last.
func (e *Engine) Interpolate(tmpl string, ctx map[string]any) (string, error) {
	if err := rejectCallables(ctx); err != nil {
		return "", err
	}
	out, err := e.interpolate(tmpl, ctx)
	if err != nil {
		return "", e.maskErr(err)
	}
	return e.mask(out), nil
}

// InterpolateValue recursively interpolates every string leaf of a
// map/slice tree, preserving structure and non-string leaves. A string
// that consists of exactly one marker resolves type-preservingly, so
// `"${{ get('items') }}"` yields the referenced slice rather than its
// string form. The input tree is never mutated.
func (e *Engine) InterpolateValue(v any, ctx map[string]any) (any, error) {
	if err := rejectCallables(ctx); err != nil {
		return nil, err
	}
	out, err := e.interpolateValue(v, ctx)
	if err != nil {
		return nil, e.maskErr(err)
	}
	return out, nil
}

func (e *Engine) interpolateValue(v any, ctx map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if inner, ok := wholeMarker(val, exprRe); ok {
			res, err := e.eval(inner, ctx)
			if err != nil {
				return nil, err
			}
			return e.maskValue(res), nil
		}
		if inner, ok := wholeMarker(val, plainRe); ok {
			res, err := e.resolve(inner, ctx)
			if err != nil {
				return nil, err
			}
			return e.maskValue(res), nil
		}
		out, err := e.interpolate(val, ctx)
		if err != nil {
			return nil, err
		}
		return e.mask(out), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := e.interpolateValue(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := e.interpolateValue(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (e *Engine) interpolate(tmpl string, ctx map[string]any) (string, error) {
	out, err := replaceAll(tmpl, exprRe, func(inner string) (string, error) {
		res, err := e.eval(inner, ctx)
		if err != nil {
			return "", err
		}
		return stringify(res), nil
	})
	if err != nil {
		return "", err
	}
	return replaceAll(out, plainRe, func(inner string) (string, error) {
		res, err := e.resolve(inner, ctx)
		if err != nil {
			return "", err
		}
		return stringify(res), nil
	})
}

// resolve looks up a dotted path for plain substitution. Strict: an
// absent name is an unresolved-reference error, not an empty string.
func (e *Engine) resolve(path string, ctx map[string]any) (any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fault.New(fault.ConfigInvalid, "empty substitution reference").
			WithGuidance("Write {{ name }} or {{ name.nested.field }} with a non-empty path")
	}
	v, ok := lookupPath(ctx, path)
	if !ok {
		return nil, fault.New(fault.UnresolvedReference, "unresolved reference %q", path).
			WithGuidance("Define the variable before this step or check the path spelling")
	}
	return v, nil
}

// eval evaluates one expression inside the sandbox. The environment is
// exhaustively enumerated: get(path) plus registered functions. There is
// no host, no I/O, and no dynamic loading to reach.
func (e *Engine) eval(src string, ctx map[string]any) (any, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fault.New(fault.SandboxViolation, "empty expression")
	}
	if strings.Contains(src, "{{") || strings.Contains(src, "}}") {
		return nil, fault.New(fault.SandboxViolation, "substitution markers are not allowed inside expressions").
			WithGuidance("Use get(\"path\") instead of nesting {{ }} inside ${{ }}")
	}

	evalCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	env := map[string]any{
		"ctx": evalCtx,
		"get": func(path string) (any, error) {
			v, ok := lookupPath(ctx, path)
			if !ok {
				return nil, fault.New(fault.UnresolvedReference, "unresolved reference %q", path)
			}
			return v, nil
		},
	}
	for name, fn := range e.funcs {
		env[name] = fn
	}

	program, err := expr.Compile(src, expr.Env(env), expr.WithContext("ctx"))
	if err != nil {
		return nil, fault.Wrap(fault.SandboxViolation, err, "invalid expression %q", src).
			WithGuidance("Expressions must be a single complete expression; statements are not supported")
	}

	type evalOut struct {
		val any
		err error
	}
	done := make(chan evalOut, 1)
	go func() {
		v, runErr := expr.Run(program, env)
		done <- evalOut{v, runErr}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if evalCtx.Err() != nil {
				return nil, e.timeoutFault()
			}
			var f *fault.Fault
			if errors.As(out.err, &f) {
				return nil, f
			}
			return nil, fault.Wrap(fault.SandboxViolation, out.err, "evaluate expression %q", src)
		}
		return out.val, nil
	case <-evalCtx.Done():
		return nil, e.timeoutFault()
	}
}

func (e *Engine) timeoutFault() *fault.Fault {
	return fault.New(fault.ExpressionTimeout, "expression timed out after %s", e.timeout).
		WithGuidance("Simplify the expression or raise the evaluation timeout")
}

// mask replaces every literal occurrence of a registered secret value
// with a placeholder encoding its symbolic name. Runs after all
// substitution and evaluation.
func (e *Engine) mask(s string) string {
	for name, value := range e.secrets {
		if value == "" {
			continue
		}
		s = strings.ReplaceAll(s, value, "***"+name+"***")
	}
	return s
}

// maskValue masks every string leaf of a type-preserved result. Maps
// and slices are copied so the caller never aliases, or mutates,
// structures still held by the context.
func (e *Engine) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return e.mask(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = e.maskValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = e.maskValue(item)
		}
		return out
	default:
		return v
	}
}

// maskErr rebuilds an error whose text contains a secret. Fault codes,
// guidance, and metadata survive the rewrite.
func (e *Engine) maskErr(err error) error {
	if err == nil || len(e.secrets) == 0 {
		return err
	}
	if e.mask(err.Error()) == err.Error() {
		return err
	}
	var f *fault.Fault
	if errors.As(err, &f) {
		var nf *fault.Fault
		if cause := errors.Unwrap(f); cause != nil {
			nf = fault.Wrap(f.Code, errors.New(e.mask(cause.Error())), "%s", e.mask(f.Message))
		} else {
			nf = fault.New(f.Code, "%s", e.mask(f.Message))
		}
		return nf.WithGuidance(e.mask(f.Guidance)).WithMeta(f.Meta)
	}
	return errors.New(e.mask(err.Error()))
}

// Evaluate runs a single sandboxed expression against ctx and returns
// its value. Validation's custom rules and template interpolation share
// this evaluator, so both enforce the same sandbox.
func (e *Engine) Evaluate(src string, ctx map[string]any) (any, error) {
	if err := rejectCallables(ctx); err != nil {
		return nil, err
	}
	v, err := e.eval(src, ctx)
	if err != nil {
		return nil, e.maskErr(err)
	}
	return e.maskValue(v), nil
}

// MaskSecrets applies secret masking to arbitrary output text. Exposed
// for callers that surface action output produced outside interpolation.
func (e *Engine) MaskSecrets(s string) string { return e.mask(s) }

// rejectCallables refuses any context carrying function-typed values,
// before evaluation begins.
func rejectCallables(v any) error {
	return walkCallables(v, "")
}

func walkCallables(v any, path string) error {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			if err := walkCallables(item, joinPath(path, k)); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range val {
			if err := walkCallables(item, joinPath(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	default:
		if reflect.TypeOf(v).Kind() == reflect.Func {
			where := path
			if where == "" {
				where = "context"
			}
			return fault.New(fault.SandboxViolation, "functions are not allowed in context (at %s)", where)
		}
		return nil
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// lookupPath resolves a dotted path against the context. Map keys are
// plain data: names like __proto__ or constructor have no special
// meaning and cannot reach engine state.
func lookupPath(ctx map[string]any, path string) (any, bool) {
	var current any = ctx
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// wholeMarker reports whether s is exactly one marker of the given form
// and returns its inner text.
func wholeMarker(s string, re *regexp.Regexp) (string, bool) {
	trimmed := strings.TrimSpace(s)
	loc := re.FindStringSubmatchIndex(trimmed)
	if loc == nil || loc[0] != 0 || loc[1] != len(trimmed) {
		return "", false
	}
	return trimmed[loc[2]:loc[3]], true
}

func replaceAll(s string, re *regexp.Regexp, fn func(inner string) (string, error)) (string, error) {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		repl, err := fn(s[m[2]:m[3]])
		if err != nil {
			return "", err
		}
		b.WriteString(repl)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// stringify renders a resolved value for textual substitution.
// Structured values render as compact JSON.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
