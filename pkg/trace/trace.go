// Package trace records playbook runs: a JSONL event stream of step
// results plus a run manifest written when the run ends.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Event is one line of the JSONL trace stream.
type Event struct {
	Type      string    `json:"type"` // step_result
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Step      string    `json:"step,omitempty"`
	Action    string    `json:"action"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Value     any       `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	FaultCode string    `json:"fault_code,omitempty"`
}

// Writer appends events to a JSONL trace file, flushing at step
// boundaries so a crashed run still leaves a usable trace.
type Writer struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewWriter creates a trace writer appending to path.
func NewWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &Writer{
		runID:  runID,
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
	}, nil
}

// Write appends one step result and flushes to disk.
func (w *Writer) Write(res *engine.Result) error {
	event := Event{
		Type:      "step_result",
		Timestamp: time.Now(),
		RunID:     w.runID,
		Step:      res.Step,
		Action:    res.Action,
		Code:      res.Code,
		Message:   res.Message,
		Value:     res.Value,
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
		if code := fault.CodeOf(res.Err); code != "" {
			event.FaultCode = string(code)
		}
	}
	if err := w.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (w *Writer) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Manifest summarises one completed (or failed) run.
type Manifest struct {
	RunID        string         `yaml:"run_id"             json:"run_id"`
	Playbook     string         `yaml:"playbook"           json:"playbook"`
	StartedAt    string         `yaml:"started_at"         json:"started_at"`
	EndedAt      string         `yaml:"ended_at"           json:"ended_at"`
	Outcome      string         `yaml:"outcome"            json:"outcome"` // succeeded, failed
	FaultCode    string         `yaml:"fault_code,omitempty" json:"fault_code,omitempty"`
	Error        string         `yaml:"error,omitempty"    json:"error,omitempty"`
	Inputs       map[string]any `yaml:"inputs,omitempty"   json:"inputs,omitempty"`
	StepsTotal   int            `yaml:"steps_total"        json:"steps_total"`
	StepsFailed  int            `yaml:"steps_failed"       json:"steps_failed"`
	ChildInvokes int            `yaml:"child_invokes,omitempty" json:"child_invokes,omitempty"`
}

// BuildManifest assembles a manifest from a run's results.
func BuildManifest(runID, playbook string, inputs map[string]any, started, ended time.Time, results []engine.Result, runErr error) *Manifest {
	m := &Manifest{
		RunID:     runID,
		Playbook:  playbook,
		StartedAt: started.UTC().Format(time.RFC3339),
		EndedAt:   ended.UTC().Format(time.RFC3339),
		Outcome:   "succeeded",
		Inputs:    inputs,
	}
	for _, res := range results {
		m.StepsTotal++
		if !res.OK() {
			m.StepsFailed++
		}
		if res.Action == "invoke" {
			m.ChildInvokes++
		}
	}
	if runErr != nil {
		m.Outcome = "failed"
		m.Error = runErr.Error()
		if code := fault.CodeOf(runErr); code != "" {
			m.FaultCode = string(code)
		}
	}
	return m
}

// WriteManifest writes the manifest as run.yaml in dir.
func WriteManifest(m *Manifest, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "run.yaml"), data, 0644)
}

// ReadEvents decodes a JSONL trace stream. Used by tests and tooling.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	dec := json.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return nil, fmt.Errorf("decode trace event: %w", err)
		}
		events = append(events, ev)
	}
}
