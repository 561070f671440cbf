// Package validate evaluates declarative value-validation rules.
// Rules are a tagged union dispatched by Type; each built-in rule
// enforces a type precondition before its own logic runs.
package validate

import (
	"fmt"
	"regexp"
)

// RuleType tags the rule union. The set is closed — an unknown tag is an
// explicit error path, not a silent pass.
type RuleType string

const (
	Regex        RuleType = "regex"
	StringLength RuleType = "string_length"
	NumberRange  RuleType = "number_range"
	Custom       RuleType = "custom"
)

// Built-in error codes.
const (
	CodeInvalidType      = "InvalidType"
	CodeRegexMismatch    = "RegexMismatch"
	CodeInvalidPattern   = "InvalidPattern"
	CodeLengthOutOfRange = "StringLengthOutOfRange"
	CodeNumberOutOfRange = "NumberOutOfRange"
	CodeCustomFailed     = "CustomRuleFailed"
	CodeCustomError      = "CustomRuleError"
	CodeUnknownRule      = "UnknownRuleType"
)

// Rule is one validation rule. Fields are populated based on Type.
// ErrorCode/ErrorMessage override the built-in defaults when the rule's
// own logic fails; type preconditions always report InvalidType.
type Rule struct {
	Type         RuleType `yaml:"type"                    json:"type"                    jsonschema:"required,enum=regex,enum=string_length,enum=number_range,enum=custom"`
	Pattern      string   `yaml:"pattern,omitempty"       json:"pattern,omitempty"`
	MinLength    *int     `yaml:"min_length,omitempty"    json:"min_length,omitempty"`
	MaxLength    *int     `yaml:"max_length,omitempty"    json:"max_length,omitempty"`
	Min          *float64 `yaml:"min,omitempty"           json:"min,omitempty"`
	Max          *float64 `yaml:"max,omitempty"           json:"max,omitempty"`
	Script       string   `yaml:"script,omitempty"        json:"script,omitempty"`
	ErrorCode    string   `yaml:"error_code,omitempty"    json:"error_code,omitempty"`
	ErrorMessage string   `yaml:"error_message,omitempty" json:"error_message,omitempty"`
}

// RuleError reports a failed rule with enough context to act on it.
type RuleError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Rule    RuleType `json:"rule"`
	Value   any      `json:"value"`
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s (rule %s, value %v)", e.Code, e.Message, e.Rule, e.Value)
}

// Result is the outcome of evaluating one or more rules against a value.
type Result struct {
	Valid bool       `json:"valid"`
	Error *RuleError `json:"error,omitempty"`
}

// ScriptEvaluator evaluates a custom rule's expression. The template
// engine's sandboxed evaluator satisfies this, so custom rules run under
// the same sandbox as template expressions.
type ScriptEvaluator interface {
	Evaluate(src string, ctx map[string]any) (any, error)
}

// Executor evaluates rules. A nil evaluator makes custom rules fail with
// CustomRuleError instead of panicking.
type Executor struct {
	eval ScriptEvaluator
}

// NewExecutor creates a rule executor backed by the given evaluator.
func NewExecutor(eval ScriptEvaluator) *Executor {
	return &Executor{eval: eval}
}

// Validate evaluates a single rule against a value.
func (x *Executor) Validate(value any, rule Rule) Result {
	switch rule.Type {
	case Regex:
		return x.validateRegex(value, rule)
	case StringLength:
		return x.validateStringLength(value, rule)
	case NumberRange:
		return x.validateNumberRange(value, rule)
	case Custom:
		return x.validateCustom(value, rule)
	default:
		return failure(rule, value, CodeUnknownRule, fmt.Sprintf("unknown rule type %q", rule.Type))
	}
}

// ValidateAll evaluates rules in order, returning the first failure or
// success if every rule passes.
func (x *Executor) ValidateAll(value any, rules []Rule) Result {
	for _, rule := range rules {
		if r := x.Validate(value, rule); !r.Valid {
			return r
		}
	}
	return Result{Valid: true}
}

func (x *Executor) validateRegex(value any, rule Rule) Result {
	s, ok := value.(string)
	if !ok {
		return invalidType(rule, value, "string")
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return failure(rule, value, CodeInvalidPattern, fmt.Sprintf("invalid pattern %q: %v", rule.Pattern, err))
	}
	if !re.MatchString(s) {
		return override(rule, value, CodeRegexMismatch, fmt.Sprintf("value does not match pattern %q", rule.Pattern))
	}
	return Result{Valid: true}
}

func (x *Executor) validateStringLength(value any, rule Rule) Result {
	s, ok := value.(string)
	if !ok {
		return invalidType(rule, value, "string")
	}
	n := len([]rune(s))
	if rule.MinLength != nil && n < *rule.MinLength {
		return override(rule, value, CodeLengthOutOfRange, fmt.Sprintf("length %d is below minimum %d", n, *rule.MinLength))
	}
	if rule.MaxLength != nil && n > *rule.MaxLength {
		return override(rule, value, CodeLengthOutOfRange, fmt.Sprintf("length %d exceeds maximum %d", n, *rule.MaxLength))
	}
	return Result{Valid: true}
}

func (x *Executor) validateNumberRange(value any, rule Rule) Result {
	n, ok := toNumber(value)
	if !ok {
		return invalidType(rule, value, "number")
	}
	if rule.Min != nil && n < *rule.Min {
		return override(rule, value, CodeNumberOutOfRange, fmt.Sprintf("value %v is below minimum %v", n, *rule.Min))
	}
	if rule.Max != nil && n > *rule.Max {
		return override(rule, value, CodeNumberOutOfRange, fmt.Sprintf("value %v exceeds maximum %v", n, *rule.Max))
	}
	return Result{Valid: true}
}

// validateCustom evaluates an author-supplied boolean expression with the
// candidate bound under get("value"). A script that errors or does not
// return a boolean is a validation failure, never an engine fault.
func (x *Executor) validateCustom(value any, rule Rule) Result {
	if rule.Script == "" {
		return failure(rule, value, CodeCustomError, "custom rule has no script")
	}
	if x.eval == nil {
		return failure(rule, value, CodeCustomError, "no script evaluator configured")
	}
	out, err := x.eval.Evaluate(rule.Script, map[string]any{"value": value})
	if err != nil {
		return failure(rule, value, CodeCustomError, fmt.Sprintf("script error: %v", err))
	}
	ok, isBool := out.(bool)
	if !isBool {
		return failure(rule, value, CodeCustomError, fmt.Sprintf("script returned %T, want bool", out))
	}
	if !ok {
		return override(rule, value, CodeCustomFailed, "custom rule failed")
	}
	return Result{Valid: true}
}

func invalidType(rule Rule, value any, want string) Result {
	return failure(rule, value, CodeInvalidType, fmt.Sprintf("expected %s, got %T", want, value))
}

// override builds a failure applying the rule's error code/message
// overrides when present.
func override(rule Rule, value any, code, message string) Result {
	if rule.ErrorCode != "" {
		code = rule.ErrorCode
	}
	if rule.ErrorMessage != "" {
		message = rule.ErrorMessage
	}
	return failure(rule, value, code, message)
}

func failure(rule Rule, value any, code, message string) Result {
	return Result{Error: &RuleError{Code: code, Message: message, Rule: rule.Type, Value: value}}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
