// Package mcphost provides a concrete implementation of the [mcp.Host] interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), keeps a
// concurrent-safe tool registry, and tracks per-tool latency and error rates
// over a rolling window.
//
// Typical usage:
//
//	h := mcphost.New(mcphost.WithMetrics(observe.DefaultMetrics()))
//
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "playwright",
//	    Transport: mcp.TransportStdio,
//	    Command:   "npx @playwright/mcp@latest",
//	})
//
//	tools := h.AvailableTools()
//	result, err := h.ExecuteTool(ctx, "browser_navigate", `{"url":"https://example.com"}`)
//
//	h.Close()
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/murmur/internal/mcp"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// defaultWindowSize is the default capacity of each tool's rolling window.
const defaultWindowSize = 100

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def          llm.ToolDefinition
	serverName   string
	measurements *rollingWindow

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host is a concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name
	closed  bool

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	metrics    *observe.Metrics
	windowSize int
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// Option configures a [Host].
type Option func(*Host)

// WithMetrics records tool call counts and durations on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithWindowSize sets how many recent calls per tool feed [Host.Stats].
func WithWindowSize(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.windowSize = n
		}
	}
}

// New creates and returns a ready-to-use Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "murmur-mcphost", Version: "1.0.0"},
			nil,
		),
		windowSize: defaultWindowSize,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the host. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [mcp.TransportStdio] cfg.Command is split on whitespace into
// executable and args. The subprocess outlives ctx; it is terminated by
// [Host.Close].
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		_ = session.Close()
		return fmt.Errorf("mcp host: register %q: host closed", cfg.Name)
	}

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}

	h.servers[cfg.Name] = serverConn{session: session}

	for _, t := range discovered {
		if prev, ok := h.tools[t.Name]; ok && prev.serverName != cfg.Name {
			slog.Warn("mcp host: tool name collision, later server wins",
				"tool", t.Name, "previous_server", prev.serverName, "server", cfg.Name)
		}
		h.tools[t.Name] = toolEntry{
			def: llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName:   cfg.Name,
			measurements: newRollingWindow(h.windowSize),
		}
	}

	slog.Info("mcp server registered", "server", cfg.Name, "transport", string(cfg.Transport), "tools", len(discovered))
	return nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// AvailableTools returns every registered tool sorted by name.
func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.mu.RLock()
	defs := make([]llm.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	h.mu.RUnlock()

	slices.SortFunc(defs, func(a, b llm.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// ExecuteTool calls the named tool with JSON-encoded args and returns the
// result.
//
// A non-nil *ToolResult is returned on success even when [mcp.ToolResult.IsError]
// is true (application-level error). A Go error is returned only for unknown
// tools and transport or protocol failures.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: tool %q not found", name)
	}

	ctx, span := observe.StartSpan(ctx, "mcp.tool",
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.server", entry.serverName),
		),
	)
	defer span.End()

	start := time.Now()

	var result *mcp.ToolResult
	var execErr error

	if entry.builtinFn != nil {
		result, execErr = executeBuiltin(ctx, entry, args)
	} else {
		result, execErr = h.executeMCPTool(ctx, entry, args)
	}

	elapsed := time.Since(start)
	isError := execErr != nil || (result != nil && result.IsError)
	entry.measurements.Record(elapsed.Milliseconds(), isError)

	status := "ok"
	if isError {
		status = "error"
		span.SetStatus(codes.Error, "tool failed")
	}
	if execErr != nil {
		span.RecordError(execErr)
	}
	if h.metrics != nil {
		h.metrics.RecordToolCall(ctx, name, status, elapsed)
	}

	if execErr != nil {
		return nil, execErr
	}
	result.DurationMs = elapsed.Milliseconds()
	return result, nil
}

// executeBuiltin calls the in-process handler for a builtin tool.
func executeBuiltin(ctx context.Context, entry toolEntry, args string) (*mcp.ToolResult, error) {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &mcp.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &mcp.ToolResult{Content: output}, nil
}

// executeMCPTool routes the call to the appropriate server session.
func (h *Host) executeMCPTool(ctx context.Context, entry toolEntry, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			// Malformed model output is reported back to the model, not the caller.
			return &mcp.ToolResult{
				Content: fmt.Sprintf("invalid arguments for tool %q: %v", entry.def.Name, err),
				IsError: true,
			}, nil
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w", entry.def.Name, err)
	}

	return &mcp.ToolResult{
		Content: joinText(callResult.Content),
		IsError: callResult.IsError,
	}, nil
}

// joinText concatenates the text items of a tool result, one per line.
func joinText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Stats reports the rolling-window statistics of every registered tool,
// sorted by name.
func (h *Host) Stats() []mcp.ToolStats {
	h.mu.RLock()
	out := make([]mcp.ToolStats, 0, len(h.tools))
	for name, e := range h.tools {
		out = append(out, mcp.ToolStats{
			Name:      name,
			Server:    e.serverName,
			Calls:     e.measurements.Count(),
			ErrorRate: e.measurements.ErrorRate(),
			P50Ms:     e.measurements.P50(),
			P99Ms:     e.measurements.P99(),
		})
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b mcp.ToolStats) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close shuts down all server connections and releases associated resources.
// After Close returns the Host must not be used again. Close is idempotent.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", name, err)
		}
		delete(h.servers, name)
	}

	h.tools = make(map[string]toolEntry)

	return firstErr
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
