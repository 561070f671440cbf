// Package schema defines the Go struct types for the playbook YAML
// document and provides strict parsing and validation.
package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/catalystworks/catalyst/pkg/validate"
)

// Playbook is the top-level document defining a declarative workflow.
// Immutable once loaded; owned by the caller for the duration of one run.
type Playbook struct {
	Name        string            `yaml:"name"                  json:"name"        jsonschema:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Owner       string            `yaml:"owner,omitempty"       json:"owner,omitempty"`
	Inputs      []InputDef        `yaml:"inputs,omitempty"      json:"inputs,omitempty"`
	Steps       []Step            `yaml:"steps"                 json:"steps"       jsonschema:"required"`
	Triggers    []Trigger         `yaml:"triggers,omitempty"    json:"triggers,omitempty"`
	Reviewers   []string          `yaml:"reviewers,omitempty"   json:"reviewers,omitempty"`
	Outputs     map[string]string `yaml:"outputs,omitempty"     json:"outputs,omitempty"`
	Catch       []Step            `yaml:"catch,omitempty"       json:"catch,omitempty"`
	Finally     []Step            `yaml:"finally,omitempty"     json:"finally,omitempty"`
}

// InputDef declares one input parameter of a playbook.
type InputDef struct {
	Name        string          `yaml:"name"                  json:"name" jsonschema:"required"`
	Type        string          `yaml:"type,omitempty"        json:"type,omitempty" jsonschema:"enum=string,enum=number,enum=boolean,enum=array,enum=object"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool            `yaml:"required,omitempty"    json:"required,omitempty"`
	Default     any             `yaml:"default,omitempty"     json:"default,omitempty"`
	Validation  []validate.Rule `yaml:"validation,omitempty"  json:"validation,omitempty"`
}

// Trigger names an external event that starts this playbook.
type Trigger struct {
	Event  string `yaml:"event"            json:"event" jsonschema:"required"`
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// PrimaryKey is the reserved configuration key a shorthand scalar `with`
// is stored under until the executor maps it to the action's primary
// property.
const PrimaryKey = "$value"

// Step is one action invocation. Name, when set, is the variable-scope
// key under which the step's result value becomes visible to later steps.
// With is a tree of strings, numbers, booleans, and nested objects and
// arrays — string leaves may be template strings. A scalar `with` is the
// shorthand single-value form, kept under PrimaryKey.
type Step struct {
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Action string         `yaml:"action"         json:"action" jsonschema:"required"`
	With   map[string]any `yaml:"with,omitempty" json:"with,omitempty"`
}

// UnmarshalYAML decodes a step, rejecting unknown keys and accepting the
// shorthand scalar form of `with`.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("step must be a mapping, got %s", nodeKind(node))
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "name":
			if err := val.Decode(&s.Name); err != nil {
				return fmt.Errorf("step name: %w", err)
			}
		case "action":
			if err := val.Decode(&s.Action); err != nil {
				return fmt.Errorf("step action: %w", err)
			}
		case "with":
			if val.Kind == yaml.MappingNode {
				if err := val.Decode(&s.With); err != nil {
					return fmt.Errorf("step with: %w", err)
				}
			} else {
				var scalar any
				if err := val.Decode(&scalar); err != nil {
					return fmt.Errorf("step with: %w", err)
				}
				s.With = map[string]any{PrimaryKey: scalar}
			}
		default:
			return fmt.Errorf("step: unknown field %q", key)
		}
	}
	return nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "document"
	}
}

// LoadFile reads and parses a playbook YAML file with strict
// unknown-field rejection.
func LoadFile(path string) (*Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playbook: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a playbook from an io.Reader with strict unknown-field
// rejection.
func Load(r io.Reader) (*Playbook, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pb Playbook
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode playbook: %w", err)
	}
	return &pb, nil
}
