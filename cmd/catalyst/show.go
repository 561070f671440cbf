package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/catalystworks/catalyst/pkg/diagram"
	"github.com/catalystworks/catalyst/pkg/schema"
)

var (
	showRaw     bool
	showDiagram string
)

var showCmd = &cobra.Command{
	Use:   "show [playbook.yaml]",
	Short: "Render a readable summary of a playbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	pb, errs := schema.ValidateFile(args[0])
	if len(errs) > 0 {
		return fmt.Errorf("playbook invalid: %s", errs[0])
	}

	if showDiagram != "" {
		out, err := diagram.Generate(pb, diagram.Format(showDiagram))
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	md := summarize(pb)
	if showRaw {
		fmt.Print(md)
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	fmt.Print(out)
	return nil
}

func summarize(pb *schema.Playbook) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", pb.Name)
	if pb.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", pb.Description)
	}
	if pb.Owner != "" {
		fmt.Fprintf(&sb, "**Owner:** %s\n\n", pb.Owner)
	}

	if len(pb.Inputs) > 0 {
		sb.WriteString("## Inputs\n\n")
		sb.WriteString("| Name | Type | Required | Default |\n")
		sb.WriteString("|------|------|----------|--------|\n")
		for _, in := range pb.Inputs {
			t := in.Type
			if t == "" {
				t = "string"
			}
			def := ""
			if in.Default != nil {
				def = fmt.Sprintf("`%v`", in.Default)
			}
			fmt.Fprintf(&sb, "| %s | %s | %v | %s |\n", in.Name, t, in.Required, def)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Steps\n\n")
	writeStepList(&sb, pb.Steps, 0)

	if len(pb.Catch) > 0 {
		sb.WriteString("\n## On failure\n\n")
		writeStepList(&sb, pb.Catch, 0)
	}
	if len(pb.Finally) > 0 {
		sb.WriteString("\n## Finally\n\n")
		writeStepList(&sb, pb.Finally, 0)
	}

	if len(pb.Outputs) > 0 {
		sb.WriteString("\n## Outputs\n\n")
		for name, expr := range pb.Outputs {
			fmt.Fprintf(&sb, "- **%s**: `%s`\n", name, expr)
		}
	}
	return sb.String()
}

func writeStepList(sb *strings.Builder, steps []schema.Step, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, step := range steps {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		fmt.Fprintf(sb, "%s%d. **%s** — `%s`\n", indent, i+1, label, step.Action)
		for _, key := range []string{"then", "else", "steps"} {
			nested, ok := step.With[key].([]any)
			if !ok {
				continue
			}
			fmt.Fprintf(sb, "%s   %s:\n", indent, key)
			if sub := decodeSteps(nested); len(sub) > 0 {
				writeStepList(sb, sub, depth+1)
			}
		}
	}
}

// decodeSteps converts a nested raw step list to typed steps for
// display; entries that do not look like steps are skipped.
func decodeSteps(raw []any) []schema.Step {
	out := make([]schema.Step, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
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
