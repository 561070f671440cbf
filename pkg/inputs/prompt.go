package inputs

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/catalystworks/catalyst/pkg/schema"
)

// ReadlinePrompter asks for input values on the terminal.
type ReadlinePrompter struct{}

// Prompt reads one line for the given input, re-asking while a required
// input stays empty. EOF and ^C abort resolution.
func (ReadlinePrompter) Prompt(def schema.InputDef) (string, error) {
	prompt := def.Name
	if def.Description != "" {
		prompt = fmt.Sprintf("%s (%s)", def.Name, def.Description)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt + ": ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return "", fmt.Errorf("input %q aborted", def.Name)
			}
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" && def.Required {
			fmt.Println("a value is required")
			continue
		}
		return line, nil
	}
}
