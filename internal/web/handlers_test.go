package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/ops"
)

const suratMD = "# SURAT KETERANGAN\n\n" +
	"Nomor: 123/UN1.FT/KM/2024\n\n" +
	"Yang bertanda tangan di bawah ini menerangkan bahwa Budi Santoso adalah mahasiswa " +
	"Program Studi Teknik Informatika.\n\n" +
	"Jakarta, 15 Januari 2024\n"

type testEnv struct {
	h   *Handlers
	mux http.Handler
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h, err := newHandlers(database, config.DefaultConfig(), zap.NewNop(), "test")
	if err != nil {
		t.Fatalf("newHandlers: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}
	return &testEnv{h: h, mux: securityHeaders(h.routes(staticSub))}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// api sends a JSON request to the session API and decodes the response.
func (e *testEnv) api(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := e.do(t, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: response is not JSON: %s", method, path, rec.Body.String())
	}
	return rec.Code, out
}

// seedTemplate imports suratMD and returns its ID.
func seedTemplate(t *testing.T, e *testEnv, name string) string {
	t.Helper()
	out, err := ops.Import(context.Background(), e.h.db, e.h.cfg, ops.ImportInput{
		Filename: "surat.md",
		Data:     []byte(suratMD),
		Name:     name,
	})
	if err != nil {
		t.Fatalf("seed template %q: %v", name, err)
	}
	return out.ID
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// --- Pages ---

func TestRoot_RedirectsToTemplates(t *testing.T) {
	e := setupTest(t)
	rec := e.do(t, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/templates" {
		t.Errorf("got %d %q, want redirect to /templates", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandleList_Page(t *testing.T) {
	e := setupTest(t)
	seedTemplate(t, e, "Surat Keterangan Aktif")

	rec := e.do(t, httptest.NewRequest("GET", "/templates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Surat Keterangan Aktif") {
		t.Error("list should show the template name")
	}
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("list should render the full layout")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestHandleList_Empty(t *testing.T) {
	e := setupTest(t)
	rec := e.do(t, httptest.NewRequest("GET", "/templates", nil))
	if !strings.Contains(rec.Body.String(), "No templates yet") {
		t.Error("expected empty state")
	}
}

func TestHandleList_JSON(t *testing.T) {
	e := setupTest(t)
	seedTemplate(t, e, "A")
	seedTemplate(t, e, "B")

	req := httptest.NewRequest("GET", "/templates?limit=1&limit=bad", nil)
	req.Header.Set("Accept", "application/json")
	rec := e.do(t, req)

	var out ops.ListOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) != 1 || !out.Pagination.HasMore {
		t.Errorf("items=%d has_more=%v, want 1/true", len(out.Items), out.Pagination.HasMore)
	}
}

func TestHandleList_Search(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat Keterangan Aktif")
	_, err := ops.Import(context.Background(), e.h.db, e.h.cfg, ops.ImportInput{
		Filename: "undangan.txt",
		Data:     []byte("Kepada Yth. Bapak Dekan"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	rec := e.do(t, httptest.NewRequest("GET", "/templates?q=mahasiswa", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "/templates/"+id) {
		t.Error("search page should link the match")
	}
	if strings.Contains(body, "undangan") {
		t.Error("search page should not list non-matching templates")
	}
	if !strings.Contains(body, "<b>mahasiswa</b>") {
		t.Error("search page should show the highlighted snippet")
	}

	req := httptest.NewRequest("GET", "/templates?q=dekan", nil)
	req.Header.Set("Accept", "application/json")
	rec = e.do(t, req)
	var out ops.SearchOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "undangan" || out.Sort != "relevance" {
		t.Errorf("search JSON = %+v", out)
	}

	rec = e.do(t, httptest.NewRequest("GET", "/templates?q=tidakada", nil))
	if !strings.Contains(rec.Body.String(), "No templates match") {
		t.Error("expected the no-match state")
	}
}

func TestHandleImport_Upload(t *testing.T) {
	e := setupTest(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Surat Aktif.md")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(suratMD))
	_ = mw.WriteField("mode", "error")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/templates", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(t, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/templates/") {
		t.Fatalf("Location = %q", loc)
	}

	rec = e.do(t, httptest.NewRequest("GET", loc, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Surat Aktif") {
		t.Errorf("detail page after import: %d", rec.Code)
	}
}

func TestHandleImport_MissingFile(t *testing.T) {
	e := setupTest(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "x")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/templates", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	rec := e.do(t, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusBadRequest || errorCode(out) != "MISSING_FIELD" {
		t.Errorf("got %d %v, want 400 MISSING_FIELD", rec.Code, out)
	}
}

func TestHandleDetail_Found(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")

	rec := e.do(t, httptest.NewRequest("GET", "/templates/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"SURAT KETERANGAN", `data-template-id="` + id + `"`, "Detected fields", "No saved variables."} {
		if !strings.Contains(body, want) {
			t.Errorf("detail page missing %q", want)
		}
	}
}

func TestHandleDetail_NotFound(t *testing.T) {
	e := setupTest(t)
	rec := e.do(t, httptest.NewRequest("GET", "/templates/01NOPE", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error-message") {
		t.Error("expected the error page")
	}
}

func TestHandleDetect_JSON(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")

	rec := e.do(t, httptest.NewRequest("GET", "/templates/"+id+"/detect?min_confidence=0.5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out ops.DetectOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, f := range out.Fields {
		if f.Confidence < 0.5 {
			t.Errorf("field %q below min_confidence: %v", f.Value, f.Confidence)
		}
	}

	rec = e.do(t, httptest.NewRequest("GET", "/templates/"+id+"/detect?min_confidence=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- Session API ---

func TestSessionAPI_Flow(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	base := "/api/sessions/" + id

	code, out := e.api(t, "GET", base, nil)
	if code != http.StatusNotFound || errorCode(out) != "NOT_FOUND" {
		t.Fatalf("state before open: %d %v", code, out)
	}

	code, out = e.api(t, "POST", base, nil)
	if code != http.StatusCreated || out["template_id"] != id {
		t.Fatalf("open: %d %v", code, out)
	}

	code, out = e.api(t, "POST", base+"/select", map[string]any{"text": "Budi Santoso"})
	if code != http.StatusOK {
		t.Fatalf("select: %d %v", code, out)
	}
	span := out["span"].(map[string]any)

	code, out = e.api(t, "POST", base+"/variables", map[string]any{
		"key": "nama", "label": "Nama", "text_content": "Budi Santoso",
		"start": span["start"], "end": span["end"],
	})
	if code != http.StatusCreated {
		t.Fatalf("add: %d %v", code, out)
	}

	code, out = e.api(t, "POST", base+"/variables", map[string]any{
		"key": "nama", "label": "Nama", "text_content": "Budi Santoso",
	})
	if code != http.StatusConflict || errorCode(out) != "DUPLICATE_KEY" {
		t.Errorf("duplicate add: %d %v", code, out)
	}

	code, out = e.api(t, "PATCH", base+"/variables/nama", map[string]any{"label": "Nama Mahasiswa"})
	if code != http.StatusOK || out["variable"].(map[string]any)["label"] != "Nama Mahasiswa" {
		t.Errorf("edit: %d %v", code, out)
	}

	code, out = e.api(t, "GET", base+"/render?mode=edit&editing_key=nama", nil)
	if code != http.StatusOK {
		t.Fatalf("render: %d %v", code, out)
	}
	html := out["html"].(string)
	if !strings.Contains(html, `data-key="nama"`) || !strings.Contains(html, "tv-editing") {
		t.Errorf("render missing highlight: %s", html)
	}

	code, _ = e.api(t, "GET", base+"/render?mode=bold", nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad render mode: %d, want 400", code)
	}

	code, out = e.api(t, "POST", base+"/undo", nil)
	if code != http.StatusOK || out["changed"] != true {
		t.Errorf("undo: %d %v", code, out)
	}
	code, out = e.api(t, "POST", base+"/redo", nil)
	if code != http.StatusOK || out["changed"] != true {
		t.Errorf("redo: %d %v", code, out)
	}

	code, out = e.api(t, "POST", base+"/save", nil)
	if code != http.StatusOK || out["version"].(float64) != 1 {
		t.Fatalf("save: %d %v", code, out)
	}

	code, out = e.api(t, "DELETE", base+"/variables/nama", nil)
	if code != http.StatusOK {
		t.Errorf("delete variable: %d %v", code, out)
	}

	code, out = e.api(t, "DELETE", base, nil)
	if code != http.StatusOK || out["closed"] != true {
		t.Errorf("close: %d %v", code, out)
	}

	// Saved variable shows up on the detail page
	rec := e.do(t, httptest.NewRequest("GET", "/templates/"+id, nil))
	if !strings.Contains(rec.Body.String(), `name="value.nama"`) {
		t.Error("detail page should offer a value field for the saved variable")
	}
}

func TestSessionAPI_BadJSON(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	e.api(t, "POST", "/api/sessions/"+id, nil)

	req := httptest.NewRequest("POST", "/api/sessions/"+id+"/select", strings.NewReader(`{"text": "x", "extra": 1}`))
	rec := e.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want JSON for API errors", ct)
	}
}

// --- Generate ---

func saveNama(t *testing.T, e *testEnv, id string) {
	t.Helper()
	base := "/api/sessions/" + id
	e.api(t, "POST", base, nil)
	if code, out := e.api(t, "POST", base+"/variables", map[string]any{
		"key": "nama", "label": "Nama", "text_content": "Budi Santoso",
	}); code != http.StatusCreated {
		t.Fatalf("add: %d %v", code, out)
	}
	if code, out := e.api(t, "POST", base+"/save", nil); code != http.StatusOK {
		t.Fatalf("save: %d %v", code, out)
	}
}

func TestHandleGenerate_Form(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	saveNama(t, e, id)

	form := url.Values{"value.nama": {"Siti Aminah"}, "ignored": {"x"}}
	req := httptest.NewRequest("POST", "/templates/"+id+"/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, ".md") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "bahwa Siti Aminah adalah") {
		t.Errorf("body = %s", rec.Body.String())
	}

	// Also written under ~/.templar/outputs
	home, _ := os.UserHomeDir()
	entries, err := os.ReadDir(filepath.Join(home, ".templar", "outputs"))
	if err != nil || len(entries) != 1 {
		t.Errorf("outputs dir entries = %d (%v), want 1", len(entries), err)
	}
}

func TestHandleGenerate_JSONMissingValue(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	saveNama(t, e, id)

	req := httptest.NewRequest("POST", "/templates/"+id+"/generate", strings.NewReader(`{"values": {}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := e.do(t, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusBadRequest || errorCode(out) != "INVALID_REQUEST" {
		t.Errorf("got %d %v, want 400 INVALID_REQUEST", rec.Code, out)
	}
}

// --- Delete / Purge ---

func TestHandleDelete_JSON(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	e.api(t, "POST", "/api/sessions/"+id, nil)

	req := httptest.NewRequest("DELETE", "/templates/"+id, nil)
	req.Header.Set("Accept", "application/json")
	rec := e.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	// The session went with the template
	if code, _ := e.api(t, "GET", "/api/sessions/"+id, nil); code != http.StatusNotFound {
		t.Errorf("session after delete: %d, want 404", code)
	}

	rec = e.do(t, httptest.NewRequest("DELETE", "/templates/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", rec.Code)
	}
}

func TestHandleDelete_DefaultRedirect(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")

	rec := e.do(t, httptest.NewRequest("DELETE", "/templates/"+id, nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/templates" {
		t.Errorf("got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandlePurge(t *testing.T) {
	e := setupTest(t)
	id := seedTemplate(t, e, "Surat")
	if _, err := ops.Delete(context.Background(), e.h.db, ops.DeleteInput{ID: id}); err != nil {
		t.Fatal(err)
	}

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/templates/purge", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return e.do(t, req)
	}

	if rec := post(url.Values{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing confirm: %d, want 400", rec.Code)
	}
	if rec := post(url.Values{"confirm": {"true"}, "older_than_days": {"abc"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad days: %d, want 400", rec.Code)
	}

	rec := post(url.Values{"confirm": {"true"}})
	var out ops.PurgeOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Purged != 1 {
		t.Errorf("purged = %d, want 1", out.Purged)
	}
}

// --- Helpers ---

func TestStaticAssets(t *testing.T) {
	e := setupTest(t)
	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		rec := e.do(t, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
		{"limit=-1", -1},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/templates?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestParseBoolParam(t *testing.T) {
	tests := map[string]bool{"": false, "x=true": true, "x=1": true, "x=yes": false}
	for q, want := range tests {
		r := httptest.NewRequest("GET", "/?"+q, nil)
		if got := parseBoolParam(r, "x"); got != want {
			t.Errorf("parseBoolParam(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestFormatChars(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1234: "1.234", 1234567: "1.234.567", -1234: "-1.234"}
	for in, want := range tests {
		if got := formatChars(in); got != want {
			t.Errorf("formatChars(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	if !strings.Contains(contentType("docx"), "wordprocessingml") {
		t.Error("docx content type")
	}
	if contentType("text") != "text/plain; charset=utf-8" {
		t.Error("text content type")
	}
}
