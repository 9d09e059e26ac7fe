// Package mock provides a scripted [mcp.Host] for tests.
//
// Exported fields choose what each method returns; every invocation is
// recorded and can be inspected with [Host.Calls] and [Host.CallCount].
//
//	h := &mock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "navigated"}}
//	// ... run the agent against h ...
//	if h.CallCount("ExecuteTool") != 1 { ... }
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/murmur/internal/mcp"
	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// Call is one recorded invocation. Args omits the context.
type Call struct {
	Method string
	Args   []any
}

// Host is a scripted [mcp.Host]. The zero value registers every server,
// offers no tools and answers every tool call with an empty result.
type Host struct {
	RegisterServerErr    error
	AvailableToolsResult []llm.ToolDefinition

	// ExecuteToolFunc overrides ExecuteToolResult and ExecuteToolErr.
	ExecuteToolFunc   func(ctx context.Context, name, args string) (*mcp.ToolResult, error)
	ExecuteToolResult *mcp.ToolResult
	ExecuteToolErr    error

	CloseErr error

	mu      sync.Mutex
	calls   []Call
	servers []mcp.ServerConfig
}

var _ mcp.Host = (*Host)(nil)

func (h *Host) record(method string, args ...any) {
	h.mu.Lock()
	h.calls = append(h.calls, Call{Method: method, Args: args})
	h.mu.Unlock()
}

// Calls returns every recorded invocation in order.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// CallCount counts recorded invocations of method.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Registered returns the configs of successfully registered servers. A
// repeated name replaces the earlier entry, as the real host does.
func (h *Host) Registered() []mcp.ServerConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.servers)
}

// Reset forgets recorded calls and registered servers.
func (h *Host) Reset() {
	h.mu.Lock()
	h.calls, h.servers = nil, nil
	h.mu.Unlock()
}

func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.record("RegisterServer", cfg)
	if h.RegisterServerErr != nil {
		return h.RegisterServerErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.servers = slices.DeleteFunc(h.servers, func(s mcp.ServerConfig) bool { return s.Name == cfg.Name })
	h.servers = append(h.servers, cfg)
	return nil
}

func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.record("AvailableTools")
	out := slices.Clone(h.AvailableToolsResult)
	if out == nil {
		out = []llm.ToolDefinition{}
	}
	return out
}

func (h *Host) ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	h.record("ExecuteTool", name, args)
	switch {
	case h.ExecuteToolFunc != nil:
		return h.ExecuteToolFunc(ctx, name, args)
	case h.ExecuteToolErr != nil:
		return nil, h.ExecuteToolErr
	case h.ExecuteToolResult != nil:
		r := *h.ExecuteToolResult
		return &r, nil
	}
	return &mcp.ToolResult{}, nil
}

func (h *Host) Close() error {
	h.record("Close")
	return h.CloseErr
}
