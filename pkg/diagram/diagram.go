// Package diagram generates visual diagrams from parsed playbooks.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/catalystworks/catalyst/pkg/schema"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram string from a parsed playbook.
func Generate(pb *schema.Playbook, format Format) (string, error) {
	if pb == nil {
		return "", fmt.Errorf("nil playbook")
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(pb), nil
	case FormatASCII:
		return generateASCII(pb), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(pb *schema.Playbook) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(pb.Steps) == 0 {
		return b.String()
	}

	b.WriteString("    START([Start]) --> S0\n")
	for i, step := range pb.Steps {
		id := fmt.Sprintf("S%d", i)
		b.WriteString("    " + nodeDefinition(id, step) + "\n")
		writeNestedEdges(&b, id, step)
		if i < len(pb.Steps)-1 {
			fmt.Fprintf(&b, "    %s --> S%d\n", id, i+1)
		}
	}
	fmt.Fprintf(&b, "    S%d --> DONE([Done])\n", len(pb.Steps)-1)
	return b.String()
}

// writeNestedEdges renders the nested step lists of a control-flow
// step as labeled child chains hanging off the parent node.
func writeNestedEdges(b *strings.Builder, parentID string, step schema.Step) {
	for _, key := range []string{"then", "else", "steps"} {
		nested := nestedSteps(step, key)
		if len(nested) == 0 {
			continue
		}
		prev := parentID
		for j, child := range nested {
			id := fmt.Sprintf("%s_%s%d", parentID, key, j)
			fmt.Fprintf(b, "    %s\n", nodeDefinition(id, child))
			if j == 0 {
				fmt.Fprintf(b, "    %s -->|%s| %s\n", prev, key, id)
			} else {
				fmt.Fprintf(b, "    %s --> %s\n", prev, id)
			}
			prev = id
		}
	}
}

// nodeDefinition picks the node shape from the action kind: decisions
// for branch, subroutines for iterate and invoke, plain boxes otherwise.
func nodeDefinition(id string, step schema.Step) string {
	label := stepLabel(step)
	switch step.Action {
	case "branch":
		return fmt.Sprintf("%s{%q}", id, label)
	case "iterate", "invoke":
		return fmt.Sprintf("%s[[%q]]", id, label)
	case "fail":
		return fmt.Sprintf("%s[/%q/]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func stepLabel(step schema.Step) string {
	if step.Name != "" {
		return truncate(step.Name, 40)
	}
	return step.Action
}

// nestedSteps decodes a raw nested step list for display purposes.
func nestedSteps(step schema.Step, key string) []schema.Step {
	raw, ok := step.With[key].([]any)
	if !ok {
		return nil
	}
	out := make([]schema.Step, 0, len(raw))
	for _, entry := range raw {
		m, isMap := entry.(map[string]any)
		if !isMap {
			continue
		}
		action, _ := m["action"].(string)
		if action == "" {
			continue
		}
		name, _ := m["name"].(string)
		with, _ := m["with"].(map[string]any)
		out = append(out, schema.Step{Name: name, Action: action, With: with})
	}
	return out
}

func truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "…")
}

// --- ASCII ---

func generateASCII(pb *schema.Playbook) string {
	width := boxWidth(pb)
	var b strings.Builder
	writeBox(&b, "Start: "+pb.Name, width)
	for _, step := range pb.Steps {
		b.WriteString(center("|", width) + "\n")
		b.WriteString(center("v", width) + "\n")
		writeBox(&b, stepLabel(step)+" ("+step.Action+")", width)
	}
	return b.String()
}

func boxWidth(pb *schema.Playbook) int {
	w := runewidth.StringWidth("Start: " + pb.Name)
	for _, step := range pb.Steps {
		if sw := runewidth.StringWidth(stepLabel(step) + " (" + step.Action + ")"); sw > w {
			w = sw
		}
	}
	return w + 4
}

func writeBox(b *strings.Builder, label string, width int) {
	pad := width - 2 - runewidth.StringWidth(label)
	if pad < 0 {
		pad = 0
	}
	b.WriteString("+" + strings.Repeat("-", width-2) + "+\n")
	b.WriteString("|" + label + strings.Repeat(" ", pad) + "|\n")
	b.WriteString("+" + strings.Repeat("-", width-2) + "+\n")
}

func center(s string, width int) string {
	pad := (width - runewidth.StringWidth(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}
