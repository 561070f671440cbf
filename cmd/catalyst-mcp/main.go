// Package main provides the catalyst-mcp binary — MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	cmcp "github.com/catalystworks/catalyst/pkg/mcp"
)

var version = "dev"

func main() {
	s := cmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
