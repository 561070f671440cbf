package template

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/catalystworks/catalyst/pkg/fault"
)

func TestInterpolateNoMarkersIsIdentity(t *testing.T) {
	e := New()
	inputs := []string{
		"",
		"plain text",
		"almost {a marker} but not",
		"single brace { and } pair",
	}
	for _, in := range inputs {
		out, err := e.Interpolate(in, nil)
		if err != nil {
			t.Errorf("Interpolate(%q): %v", in, err)
			continue
		}
		if out != in {
			t.Errorf("Interpolate(%q) = %q, want identity", in, out)
		}
	}
}

func TestInterpolatePlainSubstitution(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"service": "billing",
		"deploy":  map[string]any{"env": "prod", "hosts": []any{"web1", "web2"}},
		"count":   3,
		"ready":   true,
	}
	tests := []struct {
		tmpl string
		want string
	}{
		{"{{service}}", "billing"},
		{"{{ service }}", "billing"},
		{"{{deploy.env}}", "prod"},
		{"{{deploy.hosts.1}}", "web2"},
		{"rolling {{service}} to {{deploy.env}}", "rolling billing to prod"},
		{"count={{count}} ready={{ready}}", "count=3 ready=true"},
	}
	for _, tt := range tests {
		out, err := e.Interpolate(tt.tmpl, ctx)
		if err != nil {
			t.Errorf("Interpolate(%q): %v", tt.tmpl, err)
			continue
		}
		if out != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.tmpl, out, tt.want)
		}
	}
}

func TestInterpolateUnresolvedIsStrict(t *testing.T) {
	e := New()
	_, err := e.Interpolate("{{missing}}", map[string]any{"present": 1})
	if !fault.Is(err, fault.UnresolvedReference) {
		t.Fatalf("expected unresolved_reference, got %v", err)
	}
	_, err = e.Interpolate("{{present.deeper}}", map[string]any{"present": 1})
	if !fault.Is(err, fault.UnresolvedReference) {
		t.Errorf("scalar traversal should be unresolved, got %v", err)
	}
	_, err = e.Interpolate("{{ }}", nil)
	if !fault.Is(err, fault.ConfigInvalid) {
		t.Errorf("empty reference should be config_invalid, got %v", err)
	}
}

func TestInterpolateExpression(t *testing.T) {
	e := New()
	ctx := map[string]any{"replicas": 4, "env": "prod"}
	tests := []struct {
		tmpl string
		want string
	}{
		{`${{ 1 + 2 }}`, "3"},
		{`${{ get("replicas") * 2 }}`, "8"},
		{`${{ get("env") == "prod" ? "careful" : "fast" }}`, "careful"},
		{`${{ upper(get("env")) }}`, "PROD"},
	}
	if err := e.RegisterFunction("upper", strings.ToUpper); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	for _, tt := range tests {
		out, err := e.Interpolate(tt.tmpl, ctx)
		if err != nil {
			t.Errorf("Interpolate(%q): %v", tt.tmpl, err)
			continue
		}
		if out != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.tmpl, out, tt.want)
		}
	}
}

func TestExpressionsRunBeforePlainSubstitution(t *testing.T) {
	e := New()
	ctx := map[string]any{"n": 2, "label": "weight"}
	out, err := e.Interpolate(`{{label}}: ${{ get("n") * 10 }}`, ctx)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if out != "weight: 20" {
		t.Errorf("got %q", out)
	}
}

func TestNestedMarkerInsideExpressionIsSandboxViolation(t *testing.T) {
	e := New()
	ctx := map[string]any{"a": 1}
	for _, tmpl := range []string{
		`${{ {{a}} + 1 }}`,
		`${{ "}}" }}`,
	} {
		_, err := e.Interpolate(tmpl, ctx)
		if !fault.Is(err, fault.SandboxViolation) {
			t.Errorf("Interpolate(%q): expected sandbox_violation, got %v", tmpl, err)
		}
	}
}

func TestExpressionSyntaxErrorIsSandboxViolation(t *testing.T) {
	e := New()
	for _, tmpl := range []string{
		`${{ 1 + }}`,
		`${{ }}`,
		`${{ let x = 1 }}`,
	} {
		_, err := e.Interpolate(tmpl, nil)
		if !fault.Is(err, fault.SandboxViolation) {
			t.Errorf("Interpolate(%q): expected sandbox_violation, got %v", tmpl, err)
		}
	}
}

func TestSandboxHasNoAmbientBindings(t *testing.T) {
	e := New()
	// Nothing but get() and registered functions exists in the env.
	_, err := e.Interpolate(`${{ os.Getenv("HOME") }}`, nil)
	if !fault.Is(err, fault.SandboxViolation) {
		t.Errorf("expected sandbox_violation, got %v", err)
	}
}

func TestRegisterFunctionRules(t *testing.T) {
	e := New()
	if err := e.RegisterFunction("get", strings.ToUpper); err == nil {
		t.Error("reserved name get must be rejected")
	}
	if err := e.RegisterFunction("ctx", strings.ToUpper); err == nil {
		t.Error("reserved name ctx must be rejected")
	}
	if err := e.RegisterFunction("9bad", strings.ToUpper); err == nil {
		t.Error("non-identifier name must be rejected")
	}
	if err := e.RegisterFunction("value", 42); err == nil {
		t.Error("non-function must be rejected")
	}
}

func TestCallablesInContextRejected(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"nested": map[string]any{"fn": func() {}},
	}
	_, err := e.Interpolate("{{x}}", ctx)
	if !fault.Is(err, fault.SandboxViolation) {
		t.Fatalf("expected sandbox_violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "nested.fn") {
		t.Errorf("error should name the offending path, got %q", err.Error())
	}
}

func TestPrototypeishKeysAreInertData(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"__proto__":   "just data",
		"constructor": map[string]any{"prototype": "still data"},
	}
	out, err := e.Interpolate("{{__proto__}}/{{constructor.prototype}}", ctx)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if out != "just data/still data" {
		t.Errorf("got %q", out)
	}
	// Absent on a map with no such key: plain unresolved, nothing special.
	_, err = e.Interpolate("{{other.__proto__}}", map[string]any{"other": map[string]any{}})
	if !fault.Is(err, fault.UnresolvedReference) {
		t.Errorf("expected unresolved_reference, got %v", err)
	}
}

func TestExpressionTimeout(t *testing.T) {
	e := New()
	e.SetEvalTimeout(20 * time.Millisecond)
	if err := e.RegisterFunction("stall", func() int {
		time.Sleep(500 * time.Millisecond)
		return 1
	}); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	_, err := e.Interpolate(`${{ stall() }}`, nil)
	if !fault.Is(err, fault.ExpressionTimeout) {
		t.Fatalf("expected expression_timeout, got %v", err)
	}
}

func TestSecretMasking(t *testing.T) {
	e := New()
	e.RegisterSecret("api_key", "s3cr3t-value")
	ctx := map[string]any{"token": "s3cr3t-value"}

	out, err := e.Interpolate("auth: {{token}}", ctx)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if out != "auth: ***api_key***" {
		t.Errorf("got %q", out)
	}

	// Error text is masked too.
	_, err = e.Interpolate(`{{s3cr3t-value.missing}}`, ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "s3cr3t-value") {
		t.Errorf("secret leaked in error: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "***api_key***") {
		t.Errorf("expected placeholder in error, got %q", err.Error())
	}
	// Fault code survives the rewrite.
	if !fault.Is(err, fault.UnresolvedReference) {
		t.Errorf("fault code lost during masking: %v", err)
	}
}

func TestMaskingReachesNestedTypePreservedValues(t *testing.T) {
	e := New()
	e.RegisterSecret("api_key", "s3cr3t-value")
	ctx := map[string]any{
		"creds": map[string]any{
			"user":   "ops",
			"tokens": []any{"s3cr3t-value"},
		},
	}

	got, err := e.InterpolateValue(`{{creds}}`, ctx)
	if err != nil {
		t.Fatalf("InterpolateValue: %v", err)
	}
	want := map[string]any{
		"user":   "ops",
		"tokens": []any{"***api_key***"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// The result is a copy; the context structure keeps the raw value.
	if ctx["creds"].(map[string]any)["tokens"].([]any)[0] != "s3cr3t-value" {
		t.Error("masking must not mutate the context")
	}
}

func TestMaskSecretsOnArbitraryOutput(t *testing.T) {
	e := New()
	e.RegisterSecret("db_pass", "hunter2")
	if got := e.MaskSecrets("password=hunter2 ok"); got != "password=***db_pass*** ok" {
		t.Errorf("got %q", got)
	}
}

func TestInterpolateValueTypePreservation(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"hosts": []any{"web1", "web2"},
		"cfg":   map[string]any{"retries": 3},
		"n":     7,
		"on":    true,
	}
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"whole expr slice", `${{ get("hosts") }}`, []any{"web1", "web2"}},
		{"whole plain slice", `{{hosts}}`, []any{"web1", "web2"}},
		{"whole plain map", `{{cfg}}`, map[string]any{"retries": 3}},
		{"whole expr number", `${{ get("n") + 1 }}`, 8},
		{"whole plain bool", `{{on}}`, true},
		{"surrounding text stringifies", `hosts: {{hosts}}`, `hosts: ["web1","web2"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.InterpolateValue(tt.in, ctx)
			if err != nil {
				t.Fatalf("InterpolateValue: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestInterpolateValueRecursesWithoutMutating(t *testing.T) {
	e := New()
	ctx := map[string]any{"env": "prod", "n": 2}
	in := map[string]any{
		"cmd":  "deploy --env {{env}}",
		"args": []any{"${{ get(\"n\") }}", 10, nil},
		"keep": true,
	}

	got, err := e.InterpolateValue(in, ctx)
	if err != nil {
		t.Fatalf("InterpolateValue: %v", err)
	}
	want := map[string]any{
		"cmd":  "deploy --env prod",
		"args": []any{2, 10, nil},
		"keep": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Input tree untouched.
	if in["cmd"] != "deploy --env {{env}}" {
		t.Errorf("input mutated: %v", in["cmd"])
	}
}

func TestEvaluateSharedSandbox(t *testing.T) {
	e := New()
	got, err := e.Evaluate(`get("value") > 3`, map[string]any{"value": 5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != true {
		t.Errorf("got %v", got)
	}
	_, err = e.Evaluate(`{{value}}`, map[string]any{"value": 5})
	if !fault.Is(err, fault.SandboxViolation) {
		t.Errorf("expected sandbox_violation, got %v", err)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{false, "false"},
		{3, "3"},
		{2.5, "2.5"},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]any{1, "x"}, `[1,"x"]`},
	}
	for _, tt := range tests {
		if got := stringify(tt.in); got != tt.want {
			t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
