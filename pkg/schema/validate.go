package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/catalystworks/catalyst/pkg/validate"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[0].with")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

var inputNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateFile performs the full 3-phase validation pipeline on a playbook file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Playbook, []*ValidationError) {
	pb, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return pb, ValidatePlaybook(pb)
}

// ValidatePlaybook runs the semantic and domain phases on a loaded playbook.
func ValidatePlaybook(pb *Playbook) []*ValidationError {
	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(pb)...)
	allErrors = append(allErrors, ValidateDomain(pb)...)
	return allErrors
}

// validateSemantic validates the playbook against the generated JSON Schema.
func validateSemantic(pb *Playbook) []*ValidationError {
	data, err := json.Marshal(pb)
	if err != nil {
		return semanticFailure("marshal for schema validation", err)
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticFailure("generate schema", err)
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticFailure("unmarshal schema", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("playbook-v1.json", schemaDoc); err != nil {
		return semanticFailure("add schema resource", err)
	}
	sch, err := c.Compile("playbook-v1.json")
	if err != nil {
		return semanticFailure("compile schema", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticFailure("unmarshal document", err)
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func semanticFailure(what string, err error) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf("%s: %v", what, err),
		Severity: "error",
	}}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(pb *Playbook) []*ValidationError {
	var errs []*ValidationError

	if strings.TrimSpace(pb.Name) == "" {
		errs = append(errs, domainError("name", "playbook name must not be empty"))
	}
	if len(pb.Steps) == 0 {
		errs = append(errs, domainError("steps", "playbook must declare at least one step"))
	}

	errs = append(errs, validateStepList("steps", pb.Steps)...)
	errs = append(errs, validateStepList("catch", pb.Catch)...)
	errs = append(errs, validateStepList("finally", pb.Finally)...)

	seen := make(map[string]bool, len(pb.Inputs))
	for i, input := range pb.Inputs {
		loc := fmt.Sprintf("inputs[%d]", i)
		if input.Name == "" {
			errs = append(errs, domainError(loc+".name", "input name must not be empty"))
			continue
		}
		if !inputNameRe.MatchString(input.Name) {
			errs = append(errs, domainError(loc+".name", fmt.Sprintf("input name %q is not a valid identifier", input.Name)))
		}
		if seen[input.Name] {
			errs = append(errs, domainError(loc+".name", fmt.Sprintf("duplicate input %q", input.Name)))
		}
		seen[input.Name] = true
		for j, rule := range input.Validation {
			if msg := checkRuleShape(rule); msg != "" {
				errs = append(errs, domainError(fmt.Sprintf("%s.validation[%d]", loc, j), msg))
			}
		}
	}

	for i, trig := range pb.Triggers {
		if strings.TrimSpace(trig.Event) == "" {
			errs = append(errs, domainError(fmt.Sprintf("triggers[%d].event", i), "trigger event must not be empty"))
		}
	}

	return errs
}

func validateStepList(loc string, steps []Step) []*ValidationError {
	var errs []*ValidationError
	named := make(map[string]bool)
	for i, step := range steps {
		stepLoc := fmt.Sprintf("%s[%d]", loc, i)
		if strings.TrimSpace(step.Action) == "" {
			errs = append(errs, domainError(stepLoc+".action", "step action must not be empty"))
		}
		if step.Name != "" {
			if !inputNameRe.MatchString(step.Name) {
				errs = append(errs, domainError(stepLoc+".name", fmt.Sprintf("step name %q is not a valid identifier", step.Name)))
			}
			if named[step.Name] {
				errs = append(errs, domainError(stepLoc+".name", fmt.Sprintf("duplicate step name %q", step.Name)))
			}
			named[step.Name] = true
		}
	}
	return errs
}

// checkRuleShape verifies a validation rule declares the fields its type
// requires. Returns "" when the rule is well-formed.
func checkRuleShape(rule validate.Rule) string {
	switch rule.Type {
	case validate.Regex:
		if rule.Pattern == "" {
			return "regex rule requires pattern"
		}
	case validate.StringLength:
		if rule.MinLength == nil && rule.MaxLength == nil {
			return "string_length rule requires min_length or max_length"
		}
	case validate.NumberRange:
		if rule.Min == nil && rule.Max == nil {
			return "number_range rule requires min or max"
		}
	case validate.Custom:
		if rule.Script == "" {
			return "custom rule requires script"
		}
	default:
		return fmt.Sprintf("unknown rule type %q", rule.Type)
	}
	return ""
}

func domainError(path, message string) *ValidationError {
	return &ValidationError{Phase: "domain", Path: path, Message: message, Severity: "error"}
}
