package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/shell"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"editor_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"editor_new": {
		def:     newToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNew },
	},
	"editor_open": {
		def:     openToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOpen },
	},
	"editor_activate": {
		def:     activateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActivate },
	},
	"editor_close": {
		def:     closeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClose },
	},
	"editor_get_text": {
		def:     getTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetText },
	},
	"editor_set_text": {
		def:     setTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetText },
	},
	"editor_save": {
		def:     saveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSave },
	},
	"editor_save_all": {
		def:     saveAllToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveAll },
	},
	"editor_set_compare": {
		def:     setCompareToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetCompare },
	},
	"editor_clear_compare": {
		def:     clearCompareToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClearCompare },
	},
	"editor_set_mode": {
		def:     setModeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetMode },
	},
	"editor_set_cursor": {
		def:     setCursorToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetCursor },
	},
	"editor_diff": {
		def:     diffToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiff },
	},
	"editor_run_action": {
		def:     runActionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRunAction },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the editor tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(sh *shell.Shell, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"quill",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(sh)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(sh *shell.Shell, cfg *config.Config, version string) error {
	s := NewServer(sh, cfg, version)
	return server.ServeStdio(s)
}
