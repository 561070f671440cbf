package main

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catalystworks/catalyst/pkg/actions"
	"github.com/catalystworks/catalyst/pkg/ai"
	"github.com/catalystworks/catalyst/pkg/config"
	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/inputs"
	"github.com/catalystworks/catalyst/pkg/playbooks"
	"github.com/catalystworks/catalyst/pkg/schema"
	"github.com/catalystworks/catalyst/pkg/template"
	"github.com/catalystworks/catalyst/pkg/trace"
	"github.com/catalystworks/catalyst/pkg/tui"
)

var (
	runInputs   []string
	runTraceDir string
	runNoPrompt bool
	runTUI      bool
)

var runCmd = &cobra.Command{
	Use:   "run [playbook]",
	Short: "Run a playbook",
	Long: `Run a playbook by file path or bare name.

Bare names are probed against the search roots (current directory plus
CATALYST_PLAYBOOK_ROOTS) with .yaml and .yml extensions. Inputs come
from --input flags, declared defaults, then interactive prompts.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	identifier := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tmpl := template.New()
	tmpl.SetEvalTimeout(cfg.EvalTimeout)
	registerEnvSecrets(tmpl)
	if len(cfg.ProtocolRoots) > 0 {
		resolver := template.NewPathResolver(cfg.ProtocolRoots)
		if err := tmpl.RegisterFunction("resolve", resolver.Resolve); err != nil {
			return err
		}
	}

	exec := engine.New(tmpl)
	exec.SetMaxDepth(cfg.MaxDepth)

	roots := append([]string{"."}, cfg.PlaybookRoots...)
	registry := playbooks.NewRegistry(roots...)
	registry.Register("files", playbooks.FileProvider{})

	var provider ai.Provider
	if client, err := ai.NewAzureClientFromEnv(); err == nil {
		provider = client
	}
	if err := actions.RegisterBuiltins(exec, registry.Load, provider); err != nil {
		return err
	}

	pb, err := registry.Load(identifier)
	if err != nil {
		return err
	}
	warnMissingDependencies(exec, pb)

	supplied, err := parseInputFlags(runInputs, pb)
	if err != nil {
		return err
	}

	var prompter inputs.Prompter
	if !runNoPrompt {
		prompter = inputs.ReadlinePrompter{}
	}
	resolved, err := inputs.NewResolver(tmpl, prompter).Resolve(pb.Inputs, supplied)
	if err != nil {
		return maskedErr(tmpl, err)
	}

	runID := trace.NewRunID()
	traceDir := runTraceDir
	if traceDir == "" {
		traceDir = filepath.Join(".catalyst", "runs", runID)
	}
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	writer, err := trace.NewWriter(filepath.Join(traceDir, "events.jsonl"), runID)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer writer.Close()

	var outcome *engine.RunOutcome
	observed := 0
	traceStep := func(res engine.Result) {
		observed++
		if err := writer.Write(&res); err != nil {
			fmt.Fprintf(os.Stderr, "warning: trace write: %v\n", err)
		}
	}
	runCfg := engine.RunConfig{RunID: runID, Inputs: resolved}

	if runTUI {
		events := make(chan any, len(pb.Steps)+1)
		runCfg.Observe = func(i int, res engine.Result) {
			traceStep(res)
			events <- tui.StepEvent{Index: i, Result: res}
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			outcome = exec.Run(context.Background(), pb, runCfg)
			events <- tui.RunFinished{Err: outcome.Err}
			close(events)
		}()
		if err := tui.Run(pb.Name, pb.Steps, events); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		<-done
	} else {
		fmt.Printf("Run ID: %s\n", runID)
		runCfg.Observe = func(i int, res engine.Result) {
			traceStep(res)
			printStep(tmpl, res)
		}
		outcome = exec.Run(context.Background(), pb, runCfg)
	}

	// Catch and finally results are not observed; trace them too.
	for _, res := range outcome.Results[observed:] {
		if err := writer.Write(&res); err != nil {
			fmt.Fprintf(os.Stderr, "warning: trace write: %v\n", err)
		}
	}

	manifest := trace.BuildManifest(runID, pb.Name, resolved, outcome.Started, outcome.Ended, outcome.Results, outcome.Err)
	if err := trace.WriteManifest(manifest, traceDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write run manifest: %v\n", err)
	} else {
		fmt.Printf("  Manifest: %s\n", filepath.Join(traceDir, "run.yaml"))
	}

	if len(outcome.Outputs) > 0 {
		data, err := yaml.Marshal(outcome.Outputs)
		if err == nil {
			fmt.Printf("Outputs:\n%s", tmpl.MaskSecrets(string(data)))
		}
	}

	if outcome.Err != nil {
		return maskedErr(tmpl, outcome.Err)
	}
	fmt.Printf("✓ %s succeeded (%d steps, %s)\n", pb.Name, len(outcome.Results), outcome.Ended.Sub(outcome.Started).Round(time.Millisecond))
	return nil
}

// parseInputFlags turns --input name=value flags into the supplied-value
// map, coercing each value to its declared input type.
func parseInputFlags(flags []string, pb *schema.Playbook) (map[string]any, error) {
	types := make(map[string]string, len(pb.Inputs))
	for _, def := range pb.Inputs {
		types[def.Name] = def.Type
	}

	supplied := make(map[string]any, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --input %q: expected name=value", f)
		}
		if t, declared := types[name]; declared {
			v, err := inputs.Coerce(t, raw)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", name, err)
			}
			supplied[name] = v
		} else {
			// Left as a raw string; the resolver rejects undeclared names.
			supplied[name] = raw
		}
	}
	return supplied, nil
}

// registerEnvSecrets registers every CATALYST_SECRET_* environment
// variable so its value is masked in all run output.
func registerEnvSecrets(tmpl *template.Engine) {
	for name, val := range config.Secrets() {
		tmpl.RegisterSecret(name, val)
	}
}

// warnMissingDependencies preflights the declared dependencies of every
// action the playbook's top-level steps use.
func warnMissingDependencies(exec *engine.Executor, pb *schema.Playbook) {
	seen := map[string]bool{}
	for _, step := range pb.Steps {
		if seen[step.Action] {
			continue
		}
		seen[step.Action] = true
		action, ok := exec.Lookup(step.Action)
		if !ok {
			continue
		}
		dd, declares := action.(engine.DependencyDeclarer)
		if !declares {
			continue
		}
		for _, dep := range dd.Dependencies() {
			switch dep.Kind {
			case "env":
				if os.Getenv(dep.Name) == "" {
					fmt.Fprintf(os.Stderr, "warning: action %q needs %s set\n", step.Action, dep.Name)
				}
			case "cli":
				if _, err := osexec.LookPath(dep.Name); err != nil {
					fmt.Fprintf(os.Stderr, "warning: action %q needs %s on PATH\n", step.Action, dep.Name)
				}
			}
		}
	}
}

func printStep(tmpl *template.Engine, res engine.Result) {
	label := res.Step
	if label == "" {
		label = res.Action
	}
	if res.Err != nil {
		fmt.Printf("  ✗ %s: %s\n", label, tmpl.MaskSecrets(res.Err.Error()))
		return
	}
	line := fmt.Sprintf("  ✓ %s [%s]", label, res.Code)
	if res.Message != "" {
		line += " " + res.Message
	}
	fmt.Println(tmpl.MaskSecrets(line))
}

func maskedErr(tmpl *template.Engine, err error) error {
	return fmt.Errorf("%s", tmpl.MaskSecrets(err.Error()))
}
