package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// templateRefOptions addresses a stored template by id or by name.
func templateRefOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("id", mcp.Description("Template ID (ULID). Mutually exclusive with name.")),
		mcp.WithString("name", mcp.Description("Template name, matched case-insensitively. Mutually exclusive with id.")),
	}
}

// sessionOptions is the template_id every session tool requires.
func sessionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("template_id", mcp.Required(), mcp.Description("ID of the template whose session to use (see session_open).")),
	}
}

func newTool(name string, opts ...[]mcp.ToolOption) mcp.Tool {
	var all []mcp.ToolOption
	for _, o := range opts {
		all = append(all, o...)
	}
	return mcp.NewTool(name, all...)
}

func hints(readOnly, destructive, idempotent bool) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(readOnly),
		mcp.WithDestructiveHintAnnotation(destructive),
		mcp.WithIdempotentHintAnnotation(idempotent),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

var variableItems = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"key":          map[string]any{"type": "string", "description": "Substitution key, letters, digits and underscore"},
		"label":        map[string]any{"type": "string", "description": "Human-readable label"},
		"type":         map[string]any{"type": "string", "description": "text, number or date (default text)"},
		"text_content": map[string]any{"type": "string", "description": "Literal text the variable replaces"},
		"start_index":  map[string]any{"type": "number", "description": "Byte offset of the text in raw_text"},
		"end_index":    map[string]any{"type": "number", "description": "End byte offset (exclusive)"},
	},
	"required": []string{"key", "label", "text_content", "start_index", "end_index"},
}

var templateImportToolDef = newTool("template_import", []mcp.ToolOption{
	mcp.WithDescription("Import a .docx, .md or .txt template. Give either a path on disk or the content " +
		"with a filename. The file is converted to preview HTML and plain raw text."),
	mcp.WithString("path", mcp.Description("File to import; must be directly in ~/.templar/imports or an allowed path")),
	mcp.WithString("filename", mcp.Description("Original file name; required with content or content_base64, decides the format")),
	mcp.WithString("content", mcp.Description("Text content for .md and .txt templates")),
	mcp.WithString("content_base64", mcp.Description("Base64 content, required for .docx")),
	mcp.WithString("name", mcp.Description("Template name (default: file name without extension)")),
	mcp.WithString("mode", mcp.Description("On name collision: error (default) or replace")),
}, hints(false, false, false))

var templateListToolDef = newTool("template_list", []mcp.ToolOption{
	mcp.WithDescription("List stored templates, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted templates")),
}, hints(true, false, true))

var templateSearchToolDef = newTool("template_search", []mcp.ToolOption{
	mcp.WithDescription("Full-text search over template names and text, best match first. " +
		"Every word must match; end a word with * to match a prefix. " +
		"Snippets are HTML with matches in <b> tags."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Words to search for")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted templates")),
}, hints(true, false, true))

var templatePreviewToolDef = newTool("template_preview", []mcp.ToolOption{
	mcp.WithDescription("Fetch a template's preview HTML, raw text and saved variables, " +
		"with the variables highlighted and a lint report."),
}, templateRefOptions(), hints(true, false, true))

var templateDetectToolDef = newTool("template_detect", []mcp.ToolOption{
	mcp.WithDescription("Detect candidate fields (dates, names, numbers, signature lines) in a template " +
		"or in ad-hoc text. Each field carries a suggested key, label and confidence."),
	mcp.WithString("text", mcp.Description("Ad-hoc text to scan instead of a stored template")),
	mcp.WithBoolean("variables_only", mcp.Description("Keep only fields judged variable")),
	mcp.WithNumber("min_confidence", mcp.Description("Drop fields below this confidence (0 to 1)")),
}, templateRefOptions(), hints(true, false, true))

var templateSaveVariablesToolDef = newTool("template_save_variables", []mcp.ToolOption{
	mcp.WithDescription("Replace a template's saved variables in one call. expected_version must match the " +
		"stored version, otherwise CONFLICT is returned."),
	mcp.WithArray("variables", mcp.Required(), mcp.Description("The complete variable list"), mcp.Items(variableItems)),
	mcp.WithNumber("expected_version", mcp.Required(), mcp.Description("Version returned by template_preview")),
}, templateRefOptions(), hints(false, true, true))

var templateDeleteToolDef = newTool("template_delete", []mcp.ToolOption{
	mcp.WithDescription("Soft-delete a template. It disappears from lists but can be purged later."),
}, templateRefOptions(), hints(false, true, true))

var templatePurgeToolDef = newTool("template_purge", []mcp.ToolOption{
	mcp.WithDescription("Permanently delete soft-deleted templates with their variables and history."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge templates deleted more than this many days ago")),
}, hints(false, true, true))

var sessionOpenToolDef = newTool("session_open", []mcp.ToolOption{
	mcp.WithDescription("Open an editing session for a template, seeded with its saved variables. " +
		"An existing session for the template is discarded."),
}, templateRefOptions(), hints(false, false, false))

var sessionSelectToolDef = newTool("session_select", []mcp.ToolOption{
	mcp.WithDescription("Find the span of the first occurrence of text in the session's raw text."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to locate")),
}, sessionOptions(), hints(true, false, true))

var sessionAddToolDef = newTool("session_add", []mcp.ToolOption{
	mcp.WithDescription("Bind a text to a new variable. Without start and end, the first occurrence of text_content is used."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Substitution key, letters, digits and underscore")),
	mcp.WithString("label", mcp.Required(), mcp.Description("Human-readable label")),
	mcp.WithString("type", mcp.Description("text (default), number or date")),
	mcp.WithString("text_content", mcp.Required(), mcp.Description("Literal text the variable replaces")),
	mcp.WithNumber("start", mcp.Description("Byte offset of the text in raw_text")),
	mcp.WithNumber("end", mcp.Description("End byte offset (exclusive)")),
}, sessionOptions(), hints(false, false, false))

var sessionEditToolDef = newTool("session_edit", []mcp.ToolOption{
	mcp.WithDescription("Change the label and/or type of a variable. Key and text are fixed."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Variable key")),
	mcp.WithString("label", mcp.Description("New label")),
	mcp.WithString("type", mcp.Description("New type: text, number or date")),
}, sessionOptions(), hints(false, false, true))

var sessionDeleteToolDef = newTool("session_delete", []mcp.ToolOption{
	mcp.WithDescription("Remove a variable from the session."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Variable key")),
}, sessionOptions(), hints(false, true, false))

var sessionUndoToolDef = newTool("session_undo", []mcp.ToolOption{
	mcp.WithDescription("Step back one change. changed is false at the start of history."),
}, sessionOptions(), hints(false, false, false))

var sessionRedoToolDef = newTool("session_redo", []mcp.ToolOption{
	mcp.WithDescription("Step forward one undone change. changed is false at the end of history."),
}, sessionOptions(), hints(false, false, false))

var sessionVariablesToolDef = newTool("session_variables", []mcp.ToolOption{
	mcp.WithDescription("Return the session's current variables and undo state."),
}, sessionOptions(), hints(true, false, true))

var sessionRenderToolDef = newTool("session_render", []mcp.ToolOption{
	mcp.WithDescription("Render the template HTML with the session's variables highlighted."),
	mcp.WithString("mode", mcp.Description("select (default) or edit")),
	mcp.WithString("editing_key", mcp.Description("Key to mark as being edited")),
}, sessionOptions(), hints(true, false, true))

var sessionSaveToolDef = newTool("session_save", []mcp.ToolOption{
	mcp.WithDescription("Persist the session's variables. Fails with CONFLICT if they were saved elsewhere " +
		"since the session was opened; the session is left unchanged."),
}, sessionOptions(), hints(false, true, true))

var sessionCloseToolDef = newTool("session_close", []mcp.ToolOption{
	mcp.WithDescription("Discard the session without saving."),
}, sessionOptions(), hints(false, true, true))

var documentGenerateToolDef = newTool("document_generate", []mcp.ToolOption{
	mcp.WithDescription("Fill a template's saved variables with values and write the document. " +
		"Every variable needs a value; date values use YYYY-MM-DD."),
	mcp.WithObject("values", mcp.Required(), mcp.Description("Values by variable key, e.g. {\"nama\": \"Siti\"}")),
	mcp.WithString("path", mcp.Description("Output file (default ~/.templar/outputs/<name>-<timestamp>.<ext>)")),
}, templateRefOptions(), hints(false, false, false))

var documentHistoryToolDef = newTool("document_history", []mcp.ToolOption{
	mcp.WithDescription("List documents generated from a template, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max entries (default 20, max 100)")),
}, templateRefOptions(), hints(true, false, true))
