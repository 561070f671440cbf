package diagram

import (
	"strings"
	"testing"

	"github.com/catalystworks/catalyst/pkg/schema"
)

func samplePlaybook() *schema.Playbook {
	return &schema.Playbook{
		Name: "restart-service",
		Steps: []schema.Step{
			{Name: "check", Action: "shell", With: map[string]any{"command": "systemctl"}},
			{
				Name:   "decide",
				Action: "branch",
				With: map[string]any{
					"condition": "{{ check.exit_code }}",
					"then": []any{
						map[string]any{"name": "restart", "action": "shell"},
						map[string]any{"action": "log"},
					},
				},
			},
			{Name: "report", Action: "log"},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	out, err := Generate(samplePlaybook(), FormatMermaid)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"flowchart TD",
		"START([Start]) --> S0",
		`S1{"decide"}`,
		`S1 -->|then| S1_then0`,
		"S1_then0 --> S1_then1",
		"S1 --> S2",
		"S2 --> DONE([Done])",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("mermaid output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateASCII(t *testing.T) {
	out, err := Generate(samplePlaybook(), FormatASCII)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Start: restart-service") {
		t.Errorf("ascii output missing start box:\n%s", out)
	}
	if !strings.Contains(out, "decide (branch)") {
		t.Errorf("ascii output missing step box:\n%s", out)
	}
	// every line of a box must be the same width
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	width := len(lines[0])
	for i, line := range lines {
		if strings.HasPrefix(line, "+") && len(line) != width {
			t.Errorf("line %d width %d, want %d: %q", i, len(line), width, line)
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	if _, err := Generate(nil, FormatMermaid); err == nil {
		t.Error("expected error for nil playbook")
	}
	if _, err := Generate(samplePlaybook(), Format("svg")); err == nil {
		t.Error("expected error for unsupported format")
	}
}
