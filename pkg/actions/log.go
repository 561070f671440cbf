package actions

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/catalystworks/catalyst/pkg/engine"
)

// Log writes a message to the run output. Secret masking has already
// happened by the time the config reaches Execute.
type Log struct {
	out io.Writer
}

// NewLog creates the log action writing to out; pass nil for stdout.
func NewLog(out io.Writer) *Log {
	if out == nil {
		out = os.Stdout
	}
	return &Log{out: out}
}

func (l *Log) Name() string { return "log" }

// PrimaryProperty enables `with: deploying {{version}}` shorthand.
func (l *Log) PrimaryProperty() string { return "message" }

func (l *Log) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	message, err := requireString(cfg, "message", "log")
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(l.out, message)
	return &engine.Result{
		Code:    "logged",
		Message: message,
		Value:   message,
	}, nil
}
