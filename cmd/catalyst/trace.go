package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catalystworks/catalyst/pkg/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect recorded run traces",
}

var traceShowCmd = &cobra.Command{
	Use:   "show [run-dir]",
	Short: "Print the manifest and step events of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceShow,
}

func runTraceShow(cmd *cobra.Command, args []string) error {
	dir := args[0]

	manifestPath := filepath.Join(dir, "run.yaml")
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m trace.Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}
		glyph := "✓"
		if m.Outcome != "succeeded" {
			glyph = "✗"
		}
		fmt.Printf("%s %s (%s)\n", glyph, m.Playbook, m.Outcome)
		fmt.Printf("  Run ID:  %s\n", m.RunID)
		fmt.Printf("  Started: %s\n", m.StartedAt)
		fmt.Printf("  Ended:   %s\n", m.EndedAt)
		fmt.Printf("  Steps:   %d total, %d failed\n", m.StepsTotal, m.StepsFailed)
		if m.Error != "" {
			fmt.Printf("  Error:   %s\n", m.Error)
		}
	} else {
		fmt.Fprintf(os.Stderr, "warning: no run manifest at %s\n", manifestPath)
	}

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	events, err := trace.ReadEvents(f)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	fmt.Printf("\nEvents (%d):\n", len(events))
	for i, ev := range events {
		label := ev.Step
		if label == "" {
			label = ev.Action
		}
		if ev.Error != "" {
			fmt.Printf("  %d. ✗ %s [%s] %s\n", i+1, label, ev.FaultCode, ev.Error)
			continue
		}
		fmt.Printf("  %d. ✓ %s [%s] %s\n", i+1, label, ev.Code, ev.Message)
	}
	return nil
}

func init() {
	traceCmd.AddCommand(traceShowCmd)
	rootCmd.AddCommand(traceCmd)
}
