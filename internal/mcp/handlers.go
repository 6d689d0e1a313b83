package mcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/detect"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/logging"
	"github.com/siakad/templar/internal/ops"
	"github.com/siakad/templar/internal/render"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	sessions *binding.Manager
	matcher  *detect.Matcher
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance with its own session manager.
func NewHandlers(db *sql.DB, cfg *config.Config, logger *zap.Logger) (*Handlers, error) {
	logger = logging.OrNop(logger).Named("mcp")
	matcher, err := ops.NewMatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Handlers{
		db:       db,
		cfg:      cfg,
		sessions: binding.NewManager(),
		matcher:  matcher,
		logger:   logger,
	}, nil
}

// Request types for each tool

// TemplateRefRequest addresses a template by id or name.
type TemplateRefRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ImportRequest represents the arguments for template_import.
type ImportRequest struct {
	Path          string  `json:"path,omitempty"`
	Filename      string  `json:"filename,omitempty"`
	Content       *string `json:"content,omitempty"`
	ContentBase64 *string `json:"content_base64,omitempty"`
	Name          string  `json:"name,omitempty"`
	Mode          string  `json:"mode,omitempty"`
}

// ListRequest represents the arguments for template_list.
type ListRequest struct {
	Limit          int  `json:"limit,omitempty"`
	Offset         int  `json:"offset,omitempty"`
	IncludeDeleted bool `json:"include_deleted,omitempty"`
}

// SearchRequest represents the arguments for template_search.
type SearchRequest struct {
	Query          string `json:"query"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DetectRequest represents the arguments for template_detect.
type DetectRequest struct {
	TemplateRefRequest
	Text          string  `json:"text,omitempty"`
	VariablesOnly bool    `json:"variables_only,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// SaveVariablesRequest represents the arguments for template_save_variables.
type SaveVariablesRequest struct {
	TemplateRefRequest
	Variables       []binding.TemplateVariable `json:"variables"`
	ExpectedVersion int64                      `json:"expected_version"`
}

// PurgeRequest represents the arguments for template_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// SessionRequest carries the template_id every session tool needs.
type SessionRequest struct {
	TemplateID string `json:"template_id"`
}

// SessionSelectRequest represents the arguments for session_select.
type SessionSelectRequest struct {
	SessionRequest
	Text string `json:"text"`
}

// SessionAddRequest represents the arguments for session_add.
type SessionAddRequest struct {
	SessionRequest
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type,omitempty"`
	TextContent string `json:"text_content"`
	Start       int    `json:"start,omitempty"`
	End         int    `json:"end,omitempty"`
}

// SessionEditRequest represents the arguments for session_edit.
type SessionEditRequest struct {
	SessionRequest
	Key   string  `json:"key"`
	Label *string `json:"label,omitempty"`
	Type  *string `json:"type,omitempty"`
}

// SessionKeyRequest represents the arguments for session_delete.
type SessionKeyRequest struct {
	SessionRequest
	Key string `json:"key"`
}

// SessionRenderRequest represents the arguments for session_render.
type SessionRenderRequest struct {
	SessionRequest
	Mode       string `json:"mode,omitempty"`
	EditingKey string `json:"editing_key,omitempty"`
}

// GenerateRequest represents the arguments for document_generate.
type GenerateRequest struct {
	TemplateRefRequest
	Values map[string]string `json:"values"`
	Path   string            `json:"path,omitempty"`
}

// HistoryRequest represents the arguments for document_history.
type HistoryRequest struct {
	TemplateRefRequest
	Limit int `json:"limit,omitempty"`
}

// Handler implementations

// HandleImport handles the template_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	in := ops.ImportInput{
		Path:     input.Path,
		Filename: input.Filename,
		Name:     input.Name,
		Mode:     ops.ImportMode(input.Mode),
	}
	switch {
	case input.Content != nil && input.ContentBase64 != nil:
		return errorResult(errors.NewInvalidRequest("specify either content or content_base64, not both")), nil
	case input.Content != nil:
		in.Data = []byte(*input.Content)
	case input.ContentBase64 != nil:
		data, err := base64.StdEncoding.DecodeString(*input.ContentBase64)
		if err != nil {
			return errorResult(errors.NewInvalidRequest("content_base64 is not valid base64")), nil
		}
		in.Data = data
	}

	result, err := ops.Import(ctx, h.db, h.cfg, in)
	if err != nil {
		return h.fail("template_import", err), nil
	}
	h.logger.Info("template imported",
		zap.String("id", result.ID),
		zap.String("kind", string(result.SourceKind)),
		zap.Int("raw_chars", result.RawChars))
	return successResult(result)
}

// HandleList handles the template_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return h.fail("template_list", err), nil
	}
	return successResult(result)
}

// HandleSearch handles the template_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Search(ctx, h.db, ops.SearchInput{
		Query:          input.Query,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return h.fail("template_search", err), nil
	}
	return successResult(result)
}

// HandlePreview handles the template_preview tool call.
func (h *Handlers) HandlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Preview(ctx, h.db, ops.PreviewInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return h.fail("template_preview", err), nil
	}
	return successResult(result)
}

// HandleDetect handles the template_detect tool call.
func (h *Handlers) HandleDetect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DetectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Detect(ctx, h.db, h.matcher, ops.DetectInput{
		ID:            input.ID,
		Name:          input.Name,
		Text:          input.Text,
		VariablesOnly: input.VariablesOnly,
		MinConfidence: input.MinConfidence,
	})
	if err != nil {
		return h.fail("template_detect", err), nil
	}
	return successResult(result)
}

// HandleSaveVariables handles the template_save_variables tool call.
func (h *Handlers) HandleSaveVariables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveVariablesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SaveVariables(ctx, h.db, ops.SaveInput{
		ID:              input.ID,
		Name:            input.Name,
		Variables:       input.Variables,
		ExpectedVersion: input.ExpectedVersion,
	})
	if err != nil {
		return h.fail("template_save_variables", err), nil
	}
	return successResult(result)
}

// HandleDelete handles the template_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return h.fail("template_delete", err), nil
	}
	// A deleted template cannot be saved; drop its session.
	h.sessions.Close(result.ID)
	return successResult(result)
}

// HandlePurge handles the template_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return h.fail("template_purge", err), nil
	}
	return successResult(result)
}

// HandleSessionOpen handles the session_open tool call.
func (h *Handlers) HandleSessionOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.OpenSession(ctx, h.db, h.sessions, ops.SessionOpenInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return h.fail("session_open", err), nil
	}
	return successResult(result)
}

// HandleSessionSelect handles the session_select tool call.
func (h *Handlers) HandleSessionSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionSelectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionSelect(h.sessions, input.TemplateID, input.Text)
	if err != nil {
		return h.fail("session_select", err), nil
	}
	return successResult(result)
}

// HandleSessionAdd handles the session_add tool call.
func (h *Handlers) HandleSessionAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionAdd(h.sessions, input.TemplateID, binding.AddInput{
		Key:         input.Key,
		Label:       input.Label,
		Type:        binding.VarType(input.Type),
		TextContent: input.TextContent,
		Span:        binding.Span{Start: input.Start, End: input.End},
	})
	if err != nil {
		return h.fail("session_add", err), nil
	}
	return successResult(result)
}

// HandleSessionEdit handles the session_edit tool call.
func (h *Handlers) HandleSessionEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionEditRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	patch := binding.Patch{Label: input.Label}
	if input.Type != nil {
		typ := binding.VarType(*input.Type)
		patch.Type = &typ
	}
	result, err := ops.SessionEdit(h.sessions, input.TemplateID, input.Key, patch)
	if err != nil {
		return h.fail("session_edit", err), nil
	}
	return successResult(result)
}

// HandleSessionDelete handles the session_delete tool call.
func (h *Handlers) HandleSessionDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionKeyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionDelete(h.sessions, input.TemplateID, input.Key)
	if err != nil {
		return h.fail("session_delete", err), nil
	}
	return successResult(result)
}

// HandleSessionUndo handles the session_undo tool call.
func (h *Handlers) HandleSessionUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionUndo(h.sessions, input.TemplateID)
	if err != nil {
		return h.fail("session_undo", err), nil
	}
	return successResult(result)
}

// HandleSessionRedo handles the session_redo tool call.
func (h *Handlers) HandleSessionRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionRedo(h.sessions, input.TemplateID)
	if err != nil {
		return h.fail("session_redo", err), nil
	}
	return successResult(result)
}

// HandleSessionVariables handles the session_variables tool call.
func (h *Handlers) HandleSessionVariables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionVariables(h.sessions, input.TemplateID)
	if err != nil {
		return h.fail("session_variables", err), nil
	}
	return successResult(result)
}

// HandleSessionRender handles the session_render tool call.
func (h *Handlers) HandleSessionRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	mode := render.Mode(strings.ToLower(input.Mode))
	if mode != "" && mode != render.ModeSelect && mode != render.ModeEdit {
		return errorResult(errors.NewInvalidRequest("mode must be one of: select, edit")), nil
	}
	result, err := ops.SessionRender(h.sessions, input.TemplateID, render.Options{
		Mode:       mode,
		EditingKey: input.EditingKey,
	})
	if err != nil {
		return h.fail("session_render", err), nil
	}
	return successResult(result)
}

// HandleSessionSave handles the session_save tool call.
func (h *Handlers) HandleSessionSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SaveSession(ctx, h.db, h.sessions, input.TemplateID)
	if err != nil {
		return h.fail("session_save", err), nil
	}
	h.logger.Info("variables saved",
		zap.String("template_id", result.TemplateID),
		zap.Int64("version", result.Version),
		zap.Int("count", result.Count))
	return successResult(result)
}

// HandleSessionClose handles the session_close tool call.
func (h *Handlers) HandleSessionClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CloseSession(h.sessions, input.TemplateID)
	if err != nil {
		return h.fail("session_close", err), nil
	}
	return successResult(result)
}

// HandleGenerate handles the document_generate tool call.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Values == nil {
		return errorResult(errors.NewMissingField("values")), nil
	}

	result, err := ops.Generate(ctx, h.db, h.cfg, ops.GenerateInput{
		ID:     input.ID,
		Name:   input.Name,
		Values: input.Values,
		Path:   input.Path,
	})
	if err != nil {
		return h.fail("document_generate", err), nil
	}
	h.logger.Info("document generated",
		zap.String("template_id", result.TemplateID),
		zap.String("path", result.Path),
		zap.Int("bytes", result.Bytes))
	return successResult(result)
}

// HandleHistory handles the document_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.db, ops.HistoryInput{ID: input.ID, Name: input.Name, Limit: input.Limit})
	if err != nil {
		return h.fail("document_history", err), nil
	}
	return successResult(result)
}

// fail logs server-side failures and converts err to a tool error result.
func (h *Handlers) fail(tool string, err error) *mcp.CallToolResult {
	if tErr, ok := errors.As(err); !ok || tErr.Status >= 500 {
		h.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tErr, ok := errors.As(err); ok {
		// Keep wrapper context such as "variables[2]: " in front of the message
		message := tErr.Message
		if outer := err.Error(); outer != tErr.Error() {
			message = strings.TrimSuffix(outer, tErr.Error()) + message
		}
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": message,
			"status":  tErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if tErr.Code != errors.ErrInternal && tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
