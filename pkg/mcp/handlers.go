package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/catalystworks/catalyst/pkg/actions"
	"github.com/catalystworks/catalyst/pkg/ai"
	"github.com/catalystworks/catalyst/pkg/config"
	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
	"github.com/catalystworks/catalyst/pkg/inputs"
	"github.com/catalystworks/catalyst/pkg/playbooks"
	"github.com/catalystworks/catalyst/pkg/schema"
	"github.com/catalystworks/catalyst/pkg/template"
	"github.com/catalystworks/catalyst/pkg/trace"
)

// HandleValidate implements the catalyst/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	pb, errs := schema.ValidateFile(path)
	if len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", pb.Name, len(pb.Steps))), nil
}

// HandleSchema implements the catalyst/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the catalyst/run MCP tool. Inputs are resolved
// non-interactively: a missing required input is an error rather than a
// prompt, since no terminal backs an MCP session.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	pb, errs := schema.ValidateFile(path)
	if len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}

	supplied := map[string]any{}
	if raw, ok := args["inputs"].(map[string]any); ok {
		supplied = raw
	}

	cfg, err := config.Load()
	if err != nil {
		return errorResult(err.Error()), nil
	}

	tmpl := template.New()
	tmpl.SetEvalTimeout(cfg.EvalTimeout)
	for name, val := range config.Secrets() {
		tmpl.RegisterSecret(name, val)
	}
	if len(cfg.ProtocolRoots) > 0 {
		resolver := template.NewPathResolver(cfg.ProtocolRoots)
		if err := tmpl.RegisterFunction("resolve", resolver.Resolve); err != nil {
			return errorResult(err.Error()), nil
		}
	}

	exec := engine.New(tmpl)
	exec.SetMaxDepth(cfg.MaxDepth)

	roots := append([]string{filepath.Dir(path)}, cfg.PlaybookRoots...)
	registry := playbooks.NewRegistry(roots...)
	registry.Register("files", playbooks.FileProvider{})

	var provider ai.Provider
	if client, err := ai.NewAzureClientFromEnv(); err == nil {
		provider = client
	}
	if err := actions.RegisterBuiltins(exec, registry.Load, provider); err != nil {
		return errorResult(err.Error()), nil
	}

	resolved, err := inputs.NewResolver(tmpl, nil).Resolve(pb.Inputs, supplied)
	if err != nil {
		return errorResult(fmt.Sprintf("input resolution: %s", tmpl.MaskSecrets(err.Error()))), nil
	}

	outcome := exec.Run(ctx, pb, engine.RunConfig{
		RunID:  trace.NewRunID(),
		Inputs: resolved,
	})

	response := map[string]any{
		"run_id":   outcome.RunID,
		"playbook": pb.Name,
		"status":   "succeeded",
		"duration": outcome.Ended.Sub(outcome.Started).String(),
		"steps":    summarize(outcome.Results),
	}
	runErr := outcome.Err
	if runErr != nil {
		response["status"] = "failed"
		response["error"] = tmpl.MaskSecrets(runErr.Error())
		if code := fault.CodeOf(runErr); code != "" {
			response["fault_code"] = string(code)
		}
	} else if len(outcome.Outputs) > 0 {
		response["outputs"] = outcome.Outputs
	} else if n := len(outcome.Results); n > 0 {
		response["output"] = outcome.Results[n-1].Value
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(tmpl.MaskSecrets(string(data)))},
		IsError: runErr != nil,
	}, nil
}

type stepSummary struct {
	Step   string `json:"step,omitempty"`
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

func summarize(results []engine.Result) []stepSummary {
	out := make([]stepSummary, len(results))
	for i, r := range results {
		out[i] = stepSummary{Step: r.Step, Action: r.Action, Code: r.Code}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func formatErrors(errs []*schema.ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
