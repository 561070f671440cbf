package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystworks/catalyst/pkg/ai"
	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// AI sends a prompt to the configured model provider and exposes the
// completion text to later steps.
type AI struct {
	provider ai.Provider
}

// NewAI creates the ai action around a model provider.
func NewAI(provider ai.Provider) *AI {
	return &AI{provider: provider}
}

func (a *AI) Name() string { return "ai" }

// PrimaryProperty enables `with: Summarize {{report}}` shorthand.
func (a *AI) PrimaryProperty() string { return "prompt" }

// Dependencies declares the environment the Azure provider needs.
func (a *AI) Dependencies() []engine.Dependency {
	return []engine.Dependency{
		{Kind: "env", Name: "CATALYST_AI_ENDPOINT"},
		{Kind: "env", Name: "CATALYST_AI_API_KEY"},
		{Kind: "env", Name: "CATALYST_AI_DEPLOYMENT"},
	}
}

func (a *AI) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	if a.provider == nil || !a.provider.IsAvailable() {
		return nil, fault.New(fault.ConfigInvalid, "ai: no model provider configured").
			WithGuidance("Set the CATALYST_AI_* environment variables")
	}

	prompt, err := requireString(cfg, "prompt", "ai")
	if err != nil {
		return nil, err
	}
	system, err := optionalString(cfg, "system", "ai")
	if err != nil {
		return nil, err
	}
	model, err := optionalString(cfg, "model", "ai")
	if err != nil {
		return nil, err
	}

	var timeout time.Duration
	if raw, err := optionalString(cfg, "timeout", "ai"); err != nil {
		return nil, err
	} else if raw != "" {
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			return nil, fault.New(fault.ConfigInvalid, "ai: invalid timeout %q: %v", raw, perr)
		}
		timeout = d
	}

	maxTokens := 0
	if raw, ok := cfg["max_output_tokens"]; ok && raw != nil {
		n, isInt := raw.(int)
		if !isInt || n <= 0 {
			return nil, fault.New(fault.ConfigInvalid, "ai: \"max_output_tokens\" must be a positive integer, got %v", raw)
		}
		maxTokens = n
	}

	resp, err := a.provider.Complete(ctx, &ai.Request{
		System:          system,
		Prompt:          prompt,
		Model:           model,
		MaxOutputTokens: maxTokens,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}

	return &engine.Result{
		Code:    "ai_done",
		Message: fmt.Sprintf("completion from %s (%d chars)", a.provider.ModelName(), len(resp.Text)),
		Value:   resp.Text,
	}, nil
}
