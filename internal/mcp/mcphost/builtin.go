package mcphost

import (
	"fmt"

	"github.com/MrWong99/murmur/internal/mcp/tools"
)

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "builtin"

// RegisterBuiltin registers a tool implemented as a Go function. It is
// called in-process without any MCP round-trip but is otherwise treated
// like an external tool. A tool with the same name is replaced.
func (h *Host) RegisterBuiltin(tool tools.Tool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("mcp host: register builtin %q: host closed", tool.Definition.Name)
	}
	h.tools[tool.Definition.Name] = toolEntry{
		def:          tool.Definition,
		serverName:   builtinServerName,
		measurements: newRollingWindow(h.windowSize),
		builtinFn:    tool.Handler,
	}
	return nil
}
