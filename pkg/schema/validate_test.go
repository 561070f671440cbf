package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/catalystworks/catalyst/pkg/validate"
)

func minLen(n int) *int { return &n }

func validDomainPlaybook() *Playbook {
	return &Playbook{
		Name: "restart-service",
		Inputs: []InputDef{
			{Name: "service", Type: "string", Required: true, Validation: []validate.Rule{
				{Type: validate.Regex, Pattern: `^[a-z-]+$`},
			}},
		},
		Steps: []Step{
			{Name: "stop", Action: "shell", With: map[string]any{"command": "systemctl"}},
			{Name: "start", Action: "shell", With: map[string]any{"command": "systemctl"}},
		},
		Triggers: []Trigger{{Event: "alert.fired"}},
	}
}

func TestValidateDomainAcceptsWellFormed(t *testing.T) {
	if errs := ValidateDomain(validDomainPlaybook()); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidateDomainFindsProblems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Playbook)
		wantIn  string // substring of some error message
	}{
		{"empty name", func(pb *Playbook) { pb.Name = " " }, "name must not be empty"},
		{"no steps", func(pb *Playbook) { pb.Steps = nil }, "at least one step"},
		{"empty action", func(pb *Playbook) { pb.Steps[0].Action = "" }, "action must not be empty"},
		{"bad step name", func(pb *Playbook) { pb.Steps[0].Name = "has space" }, "not a valid identifier"},
		{"duplicate step name", func(pb *Playbook) { pb.Steps[1].Name = "stop" }, "duplicate step name"},
		{"bad input name", func(pb *Playbook) { pb.Inputs[0].Name = "1st" }, "not a valid identifier"},
		{"duplicate input", func(pb *Playbook) {
			pb.Inputs = append(pb.Inputs, InputDef{Name: "service"})
		}, "duplicate input"},
		{"regex without pattern", func(pb *Playbook) {
			pb.Inputs[0].Validation = []validate.Rule{{Type: validate.Regex}}
		}, "requires pattern"},
		{"string_length without bounds", func(pb *Playbook) {
			pb.Inputs[0].Validation = []validate.Rule{{Type: validate.StringLength}}
		}, "requires min_length or max_length"},
		{"number_range without bounds", func(pb *Playbook) {
			pb.Inputs[0].Validation = []validate.Rule{{Type: validate.NumberRange}}
		}, "requires min or max"},
		{"custom without script", func(pb *Playbook) {
			pb.Inputs[0].Validation = []validate.Rule{{Type: validate.Custom}}
		}, "requires script"},
		{"unknown rule type", func(pb *Playbook) {
			pb.Inputs[0].Validation = []validate.Rule{{Type: "fuzzy"}}
		}, "unknown rule type"},
		{"empty trigger event", func(pb *Playbook) { pb.Triggers[0].Event = "" }, "event must not be empty"},
		{"catch step broken", func(pb *Playbook) {
			pb.Catch = []Step{{Action: ""}}
		}, "action must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := validDomainPlaybook()
			tt.mutate(pb)
			errs := ValidateDomain(pb)
			if len(errs) == 0 {
				t.Fatal("expected errors, got none")
			}
			for _, e := range errs {
				if strings.Contains(e.Message, tt.wantIn) {
					return
				}
			}
			t.Errorf("no error containing %q in %v", tt.wantIn, errs)
		})
	}
}

func TestValidateStringLengthRuleWithOnlyMax(t *testing.T) {
	pb := validDomainPlaybook()
	pb.Inputs[0].Validation = []validate.Rule{{Type: validate.StringLength, MaxLength: minLen(10)}}
	if errs := ValidateDomain(pb); len(errs) != 0 {
		t.Errorf("max-only bound should be fine: %v", errs)
	}
}

func TestValidateFilePhases(t *testing.T) {
	dir := t.TempDir()

	t.Run("structural failure", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("name: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		pb, errs := ValidateFile(path)
		if pb != nil || len(errs) == 0 || errs[0].Phase != "structural" {
			t.Errorf("pb=%v errs=%v", pb, errs)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		doc := "name: ok\nsteps:\n  - action: log\n    with: hello\n"
		if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}
		pb, errs := ValidateFile(path)
		if pb == nil || len(errs) != 0 {
			t.Errorf("pb=%v errs=%v", pb, errs)
		}
	})

	t.Run("domain failure", func(t *testing.T) {
		path := filepath.Join(dir, "nosteps.yaml")
		if err := os.WriteFile(path, []byte("name: empty\nsteps: []\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, errs := ValidateFile(path)
		if len(errs) == 0 {
			t.Fatal("expected errors")
		}
		found := false
		for _, e := range errs {
			if e.Phase == "domain" && strings.Contains(e.Message, "at least one step") {
				found = true
			}
		}
		if !found {
			t.Errorf("missing domain error: %v", errs)
		}
	})
}
