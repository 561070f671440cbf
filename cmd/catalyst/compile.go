package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catalystworks/catalyst/pkg/ai"
	"github.com/catalystworks/catalyst/pkg/schema"
)

const compileSystemPrompt = `You convert operational documents into catalyst playbook YAML.
Output ONLY a YAML document, no prose and no code fences.
A playbook has: name, description, optional inputs (name/type/required/default),
and steps. Each step has an optional name, an action, and a "with" mapping.
Available actions: shell (command/args/env), http (url/method/headers/body),
log (message), branch (condition/then/else), iterate (in/item/index/steps),
invoke (playbook/inputs), fail (code/message/guidance), ai (prompt/system).
Templates: {{ var }} substitutes a scope variable, ${{ expr }} evaluates an
expression. Prefer named steps so later steps can reference their results.`

var compileOut string

var compileCmd = &cobra.Command{
	Use:   "compile [document.md]",
	Short: "Compile a Markdown document into a playbook using the configured AI provider",
	Long: `Compile an operational document (runbook prose, checklist, TSG) into a
schema-valid playbook YAML file.

Requires the CATALYST_AI_* environment variables (or a .env file):
  CATALYST_AI_ENDPOINT=https://<resource>.openai.azure.com
  CATALYST_AI_API_KEY=<your-key>
  CATALYST_AI_DEPLOYMENT=<deployment-name>`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func runCompile(cmd *cobra.Command, args []string) error {
	docPath := args[0]

	if !cmd.Flags().Changed("out") {
		base := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
		compileOut = filepath.Join(filepath.Dir(docPath), base+".playbook.yaml")
	}

	doc, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	client, err := ai.NewAzureClientFromEnv()
	if err != nil {
		return fmt.Errorf("AI setup: %w\n\nSet CATALYST_AI_ENDPOINT, CATALYST_AI_API_KEY and CATALYST_AI_DEPLOYMENT", err)
	}

	fmt.Printf("Compiling %s via %s...\n", docPath, client.ModelName())
	resp, err := client.Complete(context.Background(), &ai.Request{
		System: compileSystemPrompt,
		Prompt: string(doc),
	})
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	yamlText := stripFences(resp.Text)
	pb, err := schema.Load(strings.NewReader(yamlText))
	if err != nil {
		return fmt.Errorf("generated playbook does not parse: %w", err)
	}
	if errs := schema.ValidatePlaybook(pb); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Generated playbook failed validation:\n")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return fmt.Errorf("generated playbook failed validation with %d error(s)", len(errs))
	}

	if err := os.WriteFile(compileOut, []byte(yamlText), 0o644); err != nil {
		return fmt.Errorf("write playbook: %w", err)
	}
	fmt.Printf("✓ wrote %s (%d steps)\n", compileOut, len(pb.Steps))
	return nil
}

// stripFences removes a surrounding Markdown code fence when the model
// ignores the no-fence instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```yaml")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func init() {
	compileCmd.Flags().StringVar(&compileOut, "out", "playbook.yaml", "Output path for the generated playbook")
	rootCmd.AddCommand(compileCmd)
}
