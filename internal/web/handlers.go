package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/detect"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/ops"
	"github.com/siakad/templar/internal/render"
)

// maxJSONBody caps session API request bodies.
const maxJSONBody = 1 << 20

// valuePrefix marks generation form fields: value.<key>.
const valuePrefix = "value."

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	sessions *binding.Manager
	matcher  *detect.Matcher
	renderer *Renderer
	logger   *zap.Logger
}

// HandleList handles GET /templates.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := parseIntParam(r, "limit", ops.DefaultListLimit)
	offset := parseIntParam(r, "offset", 0)
	includeDeleted := parseBoolParam(r, "include_deleted")

	var (
		items      []ListItem
		pagination ops.Pagination
		result     any
	)
	if query != "" {
		found, err := ops.Search(r.Context(), h.db, ops.SearchInput{
			Query:          query,
			Limit:          limit,
			Offset:         offset,
			IncludeDeleted: includeDeleted,
		})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		for _, it := range found.Items {
			// Snippets are escaped by ops.Search; only <b> highlights remain.
			items = append(items, ListItem{Summary: it.Summary, Snippet: template.HTML(it.Snippet)})
		}
		pagination, result = found.Pagination, found
	} else {
		listed, err := ops.List(r.Context(), h.db, ops.ListInput{
			Limit:          limit,
			Offset:         offset,
			IncludeDeleted: includeDeleted,
		})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		for _, it := range listed.Items {
			items = append(items, ListItem{Summary: it})
		}
		pagination, result = listed.Pagination, listed
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Templates",
			Version: h.renderer.version,
			Nav:     "templates",
		},
		Items:      items,
		Pagination: pagination,
		Deleted:    includeDeleted,
		Query:      query,
	})
}

// HandleImport handles POST /templates: a multipart upload with a "file"
// part and optional "name" and "mode" fields.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	maxBytes := config.DefaultConfig().MaxTemplateBytes
	if h.cfg != nil && h.cfg.MaxTemplateBytes > 0 {
		maxBytes = h.cfg.MaxTemplateBytes
	}
	// Leave room for the multipart envelope; ops.Import enforces the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes)+maxJSONBody)

	if err := r.ParseMultipartForm(int64(maxBytes)); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid upload: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderer.renderError(w, r, errors.NewMissingField("file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("cannot read upload"))
		return
	}

	result, err := ops.Import(r.Context(), h.db, h.cfg, ops.ImportInput{
		Filename: header.Filename,
		Data:     data,
		Name:     r.FormValue("name"),
		Mode:     ops.ImportMode(r.FormValue("mode")),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info("template imported", zap.String("id", result.ID), zap.String("kind", string(result.SourceKind)))

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, result)
		return
	}
	http.Redirect(w, r, "/templates/"+result.ID, http.StatusSeeOther)
}

// HandleDetail handles GET /templates/{id}: the highlighted preview, the
// detected fields and the generation history.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	preview, err := ops.Preview(r.Context(), h.db, ops.PreviewInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, preview)
		return
	}

	detected, err := ops.Detect(r.Context(), h.db, h.matcher, ops.DetectInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	history, err := ops.History(r.Context(), h.db, ops.HistoryInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   preview.Name,
			Version: h.renderer.version,
			Nav:     "templates",
		},
		Template: preview,
		// Built from sanitized preview HTML
		Highlighted: template.HTML(preview.Highlighted),
		Fields:      detected.Fields,
		History:     history.Items,
	})
}

// HandleDetect handles GET /templates/{id}/detect.
func (h *Handlers) HandleDetect(w http.ResponseWriter, r *http.Request) {
	minConfidence := 0.0
	if s := r.URL.Query().Get("min_confidence"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("min_confidence must be a number"))
			return
		}
		minConfidence = f
	}

	result, err := ops.Detect(r.Context(), h.db, h.matcher, ops.DetectInput{
		ID:            r.PathValue("id"),
		VariablesOnly: parseBoolParam(r, "variables_only"),
		MinConfidence: minConfidence,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleGenerate handles POST /templates/{id}/generate. Values come from a
// JSON body {"values": {...}} or from form fields named value.<key>.
// The generated document is returned as a download.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	values := map[string]string{}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Values map[string]string `json:"values"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if body.Values != nil {
			values = body.Values
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		for name := range r.PostForm {
			if key, ok := strings.CutPrefix(name, valuePrefix); ok {
				values[key] = r.PostForm.Get(name)
			}
		}
	}

	result, err := ops.Generate(r.Context(), h.db, h.cfg, ops.GenerateInput{
		ID:     r.PathValue("id"),
		Values: values,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info("document generated",
		zap.String("template_id", result.TemplateID),
		zap.String("path", result.Path),
		zap.Int("bytes", result.Bytes))

	w.Header().Set("Content-Type", contentType(result.Format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Templar-Document-Id", result.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// HandleDelete handles DELETE /templates/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.sessions.Close(result.ID)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandlePurge handles POST /templates/purge.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/templates?include_deleted=true", http.StatusSeeOther)
}

// Session API. Every route answers in JSON.

// HandleSessionOpen handles POST /api/sessions/{id}.
func (h *Handlers) HandleSessionOpen(w http.ResponseWriter, r *http.Request) {
	result, err := ops.OpenSession(r.Context(), h.db, h.sessions, ops.SessionOpenInput{ID: r.PathValue("id")})
	h.respond(w, r, http.StatusCreated, result, err)
}

// HandleSessionState handles GET /api/sessions/{id}.
func (h *Handlers) HandleSessionState(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SessionVariables(h.sessions, r.PathValue("id"))
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionClose handles DELETE /api/sessions/{id}.
func (h *Handlers) HandleSessionClose(w http.ResponseWriter, r *http.Request) {
	result, err := ops.CloseSession(h.sessions, r.PathValue("id"))
	h.respond(w, r, http.StatusOK, result, err)
}

type selectBody struct {
	Text string `json:"text"`
}

// HandleSessionSelect handles POST /api/sessions/{id}/select.
func (h *Handlers) HandleSessionSelect(w http.ResponseWriter, r *http.Request) {
	var body selectBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.SessionSelect(h.sessions, r.PathValue("id"), body.Text)
	h.respond(w, r, http.StatusOK, result, err)
}

type addBody struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	TextContent string `json:"text_content"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// HandleSessionAdd handles POST /api/sessions/{id}/variables.
func (h *Handlers) HandleSessionAdd(w http.ResponseWriter, r *http.Request) {
	var body addBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.SessionAdd(h.sessions, r.PathValue("id"), binding.AddInput{
		Key:         body.Key,
		Label:       body.Label,
		Type:        binding.VarType(body.Type),
		TextContent: body.TextContent,
		Span:        binding.Span{Start: body.Start, End: body.End},
	})
	h.respond(w, r, http.StatusCreated, result, err)
}

type editBody struct {
	Label *string `json:"label"`
	Type  *string `json:"type"`
}

// HandleSessionEdit handles PATCH /api/sessions/{id}/variables/{key}.
func (h *Handlers) HandleSessionEdit(w http.ResponseWriter, r *http.Request) {
	var body editBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	patch := binding.Patch{Label: body.Label}
	if body.Type != nil {
		typ := binding.VarType(*body.Type)
		patch.Type = &typ
	}
	result, err := ops.SessionEdit(h.sessions, r.PathValue("id"), r.PathValue("key"), patch)
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionDelete handles DELETE /api/sessions/{id}/variables/{key}.
func (h *Handlers) HandleSessionDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SessionDelete(h.sessions, r.PathValue("id"), r.PathValue("key"))
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionUndo handles POST /api/sessions/{id}/undo.
func (h *Handlers) HandleSessionUndo(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SessionUndo(h.sessions, r.PathValue("id"))
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionRedo handles POST /api/sessions/{id}/redo.
func (h *Handlers) HandleSessionRedo(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SessionRedo(h.sessions, r.PathValue("id"))
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionRender handles GET /api/sessions/{id}/render?mode=&editing_key=.
func (h *Handlers) HandleSessionRender(w http.ResponseWriter, r *http.Request) {
	mode := render.Mode(r.URL.Query().Get("mode"))
	if mode != "" && mode != render.ModeSelect && mode != render.ModeEdit {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("mode must be one of: select, edit"))
		return
	}
	result, err := ops.SessionRender(h.sessions, r.PathValue("id"), render.Options{
		Mode:       mode,
		EditingKey: r.URL.Query().Get("editing_key"),
	})
	h.respond(w, r, http.StatusOK, result, err)
}

// HandleSessionSave handles POST /api/sessions/{id}/save.
func (h *Handlers) HandleSessionSave(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SaveSession(r.Context(), h.db, h.sessions, r.PathValue("id"))
	if err == nil {
		h.logger.Info("variables saved",
			zap.String("template_id", result.TemplateID),
			zap.Int64("version", result.Version))
	}
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, status, data)
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func contentType(format string) string {
	switch format {
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "markdown":
		return "text/markdown; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
