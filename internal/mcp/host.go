// Package mcp defines the tool-invocation capability used by the reasoning
// agent: a Model Context Protocol host that connects to MCP servers
// (typically a browser-automation server spawned as a subprocess), exposes
// their tool catalogue as LLM tool definitions, and routes tool calls.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each MCP server.
//  2. Use [Host.AvailableTools] to enumerate tools for the LLM.
//  3. Use [Host.ExecuteTool] to run tools the model asks for.
//  4. Call [Host.Close] to terminate sessions and subprocesses.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name must be unique within a Host.
	Name string

	Transport Transport

	// Command is the executable and its arguments for TransportStdio,
	// e.g. "npx @playwright/mcp@latest --browser chrome".
	Command string

	// URL is the endpoint for TransportStreamableHTTP.
	URL string

	// Env holds extra environment variables for stdio subprocesses. The
	// parent environment is inherited.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's text output, ready to feed back to the model.
	Content string

	// IsError marks an application-level tool failure; Content holds the
	// message. Transport failures are reported through the error return.
	IsError bool

	DurationMs int64
}

// ToolStats summarises the observed behaviour of one tool.
type ToolStats struct {
	Name   string
	Server string
	Calls  int
	// ErrorRate is the fraction of failed calls in the recent window.
	ErrorRate float64
	P50Ms     int64
	P99Ms     int64
}

// Host manages MCP server sessions and routes tool calls.
type Host interface {
	// RegisterServer connects to the server described by cfg and imports its
	// tools. Registering a name again replaces the previous session.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// AvailableTools returns every registered tool sorted by name.
	AvailableTools() []llm.ToolDefinition

	// ExecuteTool calls the named tool with a JSON object argument string.
	// A non-nil result is returned for application-level errors; the error
	// return is reserved for unknown tools and transport failures.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Close shuts down all sessions. The Host must not be used afterwards.
	Close() error
}
