// Package tools defines the shared [Tool] type used by the built-in tool
// packages. Each sub-package exports a constructor returning the tools it
// provides, ready for registration with the MCP host.
package tools

import (
	"context"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// Tool is an in-process tool: an LLM-facing schema plus its handler.
type Tool struct {
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args. A returned error is
	// reported to the model as a failed tool result. Implementations must be
	// safe for concurrent use.
	Handler func(ctx context.Context, args string) (string, error)
}
