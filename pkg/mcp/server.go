// Package mcp exposes catalyst playbook operations as MCP tools so AI
// agents can validate and run playbooks over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with catalyst tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"catalyst",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("catalyst/validate",
			mcp.WithDescription("Validate a catalyst playbook YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the playbook YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("catalyst/run",
			mcp.WithDescription("Run a catalyst playbook. Pass declared input values in the optional 'inputs' object argument."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the playbook YAML file")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("catalyst/schema",
			mcp.WithDescription("Export the catalyst playbook JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
