package mcp

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/logging"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"template", "session", "document"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"template_import": {
		def:     templateImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"template_list": {
		def:     templateListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"template_search": {
		def:     templateSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"template_preview": {
		def:     templatePreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePreview },
	},
	"template_detect": {
		def:     templateDetectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDetect },
	},
	"template_save_variables": {
		def:     templateSaveVariablesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveVariables },
	},
	"template_delete": {
		def:     templateDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"template_purge": {
		def:     templatePurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
	"session_open": {
		def:     sessionOpenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionOpen },
	},
	"session_select": {
		def:     sessionSelectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionSelect },
	},
	"session_add": {
		def:     sessionAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionAdd },
	},
	"session_edit": {
		def:     sessionEditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionEdit },
	},
	"session_delete": {
		def:     sessionDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionDelete },
	},
	"session_undo": {
		def:     sessionUndoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionUndo },
	},
	"session_redo": {
		def:     sessionRedoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRedo },
	},
	"session_variables": {
		def:     sessionVariablesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionVariables },
	},
	"session_render": {
		def:     sessionRenderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRender },
	},
	"session_save": {
		def:     sessionSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionSave },
	},
	"session_close": {
		def:     sessionCloseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionClose },
	},
	"document_generate": {
		def:     documentGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerate },
	},
	"document_history": {
		def:     documentHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
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

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "session_add" → "session").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// NewServer creates a new MCP server with Templar tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, logger *zap.Logger, version string) (*server.MCPServer, error) {
	h, err := NewHandlers(db, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newServer(h, cfg, version), nil
}

func newServer(h *Handlers, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"templar",
		version,
		server.WithToolCapabilities(true),
	)

	// Expand types first, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for _, name := range AllToolNames() {
		if disabled[name] {
			h.logger.Debug("tool disabled", zap.String("tool", name))
			continue
		}
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, logger *zap.Logger, version string) error {
	logger = logging.OrNop(logger)
	s, err := NewServer(db, cfg, logger, version)
	if err != nil {
		return err
	}
	logger.Info("mcp server starting", zap.String("transport", "stdio"), zap.String("version", version))
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
