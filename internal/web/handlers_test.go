package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/logging"
	"github.com/hpungsan/quill/internal/shell"
)

type testServer struct {
	sh      *shell.Shell
	handler http.Handler
	baseDir string
}

func setupTest(t *testing.T) *testServer {
	t.Helper()
	baseDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.PersistDebounceMS = 60000
	sh, err := shell.Open(context.Background(), shell.Options{BaseDir: baseDir, Config: cfg})
	if err != nil {
		t.Fatalf("shell.Open: %v", err)
	}
	t.Cleanup(func() { sh.Close(context.Background()) })

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}
	h := &Handlers{shell: sh, renderer: NewRenderer(templateSub, "test", logging.Discard())}

	return &testServer{sh: sh, handler: securityHeaders(routes(h, staticSub)), baseDir: baseDir}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decodeJSON(t, rec)["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %s", rec.Body.String())
	}
	return errObj["code"].(string)
}

// --- editor page ---

func TestHandleEditor_ShowsTabsAndStatus(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("expected full layout")
	}
	if !strings.Contains(body, "Untitled") {
		t.Error("expected the untitled tab")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers")
	}
}

func TestHandleEditor_HtmxReturnsContentOnly(t *testing.T) {
	ts := setupTest(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("HX-Request", "true")
	rec := ts.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Error("htmx response should not contain full layout")
	}
}

func TestHandleEditor_MarkdownPreview(t *testing.T) {
	ts := setupTest(t)
	ts.sh.New(shell.NewInput{Name: "readme.md", Content: "# Title\n\n<script>alert(1)</script>"})

	body := ts.do(httptest.NewRequest("GET", "/", nil)).Body.String()
	if !strings.Contains(body, "<h1>Title</h1>") {
		t.Error("expected rendered markdown preview")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML must not reach the page")
	}
}

// --- documents ---

func TestHandleNew_JSON(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(jsonRequest("POST", "/documents", `{"name":"main.go","content":"package main"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	out := decodeJSON(t, rec)
	if out["language"] != "go" || out["active"] != true {
		t.Errorf("unexpected document %v", out)
	}
}

func TestHandleNew_FormRedirects(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(formRequest("/documents", url.Values{"name": {"notes.txt"}}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if n := len(ts.sh.List().Items); n != 2 {
		t.Errorf("documents = %d, want 2", n)
	}
}

func TestHandleSetText_PutAndGet(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID

	req := httptest.NewRequest("PUT", "/documents/"+id+"/content", strings.NewReader("line 1\nline 2"))
	req.Header.Set("Accept", "application/json")
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["dirty"] != true {
		t.Error("expected dirty document")
	}

	rec = ts.do(jsonRequest("GET", "/documents/"+id, ""))
	out := decodeJSON(t, rec)
	if out["content"] != "line 1\nline 2" {
		t.Errorf("content = %q", out["content"])
	}
}

func TestHandleSetText_FormPost(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID

	rec := ts.do(formRequest("/documents/"+id+"/content", url.Values{"content": {"from form"}}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	text, _ := ts.sh.Text(id)
	if text.Content != "from form" {
		t.Errorf("content = %q, want from form", text.Content)
	}
}

func TestHandleActivate_NotFound(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(jsonRequest("POST", "/documents/missing/activate", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
}

func TestHandleClose_LastLeavesUntitled(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID

	rec := ts.do(jsonRequest("POST", "/documents/"+id+"/close", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	items := decodeJSON(t, rec)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].(map[string]any)["id"] == id {
		t.Error("expected a fresh untitled document")
	}
}

func TestHandleOpen(t *testing.T) {
	ts := setupTest(t)
	path := filepath.Join(t.TempDir(), "script.py")
	if err := os.WriteFile(path, []byte("print(1)"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(jsonRequest("POST", "/documents/open", `{"path":"`+filepath.ToSlash(path)+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["language"] != "python" {
		t.Error("expected python document")
	}

	rec = ts.do(jsonRequest("POST", "/documents/open", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- saving ---

func TestHandleSave_AsPathThenInPlace(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID
	target := filepath.Join(t.TempDir(), "out.txt")
	if _, err := ts.sh.SetText(id, "first"); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(jsonRequest("POST", "/documents/"+id+"/save", `{"path":"`+filepath.ToSlash(target)+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["status"] != "saved" {
		t.Fatalf("unexpected outcome %s", rec.Body.String())
	}

	// The editor form posts its content with the save
	rec = ts.do(formRequest("/documents/"+id+"/save", url.Values{"content": {"second"}}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "second" {
		t.Errorf("file = %q, want second", b)
	}
}

func TestHandleSave_UnboundDownloads(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID
	if _, err := ts.sh.SetText(id, "draft"); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(jsonRequest("POST", "/documents/"+id+"/save", `{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	out := decodeJSON(t, rec)
	if out["status"] != "downloaded" {
		t.Fatalf("status = %v, want downloaded", out["status"])
	}
	if dir := filepath.Dir(out["path"].(string)); dir != filepath.Join(ts.baseDir, "downloads") {
		t.Errorf("download dir = %s", dir)
	}
}

func TestHandleSave_DownloadFilename(t *testing.T) {
	ts := setupTest(t)
	id := ts.sh.List().ActiveID
	if _, err := ts.sh.SetText(id, "draft"); err != nil {
		t.Fatal(err)
	}
	downloads := filepath.Join(ts.baseDir, "downloads")

	// An empty name declines the download
	rec := ts.do(jsonRequest("POST", "/documents/"+id+"/save", `{"filename":""}`))
	if rec.Code != 499 {
		t.Fatalf("status = %d, want 499: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "CANCELED" {
		t.Errorf("code = %s, want CANCELED", code)
	}
	if text, _ := ts.sh.Text(id); !text.Dirty {
		t.Error("declined download must leave the document dirty")
	}
	if entries, _ := os.ReadDir(downloads); len(entries) != 0 {
		t.Errorf("downloads = %d files, want none", len(entries))
	}

	rec = ts.do(formRequest("/documents/"+id+"/save", url.Values{"content": {"final"}, "filename": {"kept.txt"}}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303: %s", rec.Code, rec.Body.String())
	}
	b, err := os.ReadFile(filepath.Join(downloads, "kept.txt"))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(b) != "final" {
		t.Errorf("download = %q, want final", b)
	}
}

func TestHandleSaveAll(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(jsonRequest("POST", "/save-all", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	status := decodeJSON(t, rec)["status"].(map[string]any)
	if status["message"] != "0 documents saved" {
		t.Errorf("message = %v", status["message"])
	}
}

// --- view and compare ---

func TestHandleView_DiffForbidsLayoutToggle(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(jsonRequest("POST", "/view", `{"mode":"diff"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	state := decodeJSON(t, rec)["state"].(map[string]any)
	if state["mode"] != "diff" {
		t.Fatalf("mode = %v, want diff", state["mode"])
	}

	rec = ts.do(jsonRequest("POST", "/view", `{"toggle_layout":true}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_TRANSITION" {
		t.Errorf("code = %s", code)
	}

	rec = ts.do(jsonRequest("POST", "/view", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleView_FormLock(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(formRequest("/view", url.Values{"mode": {"split"}, "scroll_lock": {"true"}}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	st := ts.sh.ViewState().State
	if !st.Lock {
		t.Error("expected scroll lock engaged")
	}
}

func TestHandleCursor(t *testing.T) {
	ts := setupTest(t)
	ctx := context.Background()
	if _, err := ts.sh.SetText("", "hello world"); err != nil {
		t.Fatal(err)
	}
	_, err := ts.sh.AddPlugin(ctx, "wrap", `
editor.register_action("wrap", "Wrap", "", function()
  editor.replace_selection("[" .. editor.selection() .. "]")
end)
`)
	if err != nil {
		t.Fatalf("add plugin: %v", err)
	}

	rec := ts.do(jsonRequest("POST", "/view/cursor", `{"selection_start":0,"selection_end":5,"scroll_top":36}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	panes := decodeJSON(t, rec)["panes"].(map[string]any)
	if panes["scroll_top"] != float64(36) {
		t.Errorf("scroll_top = %v, want 36", panes["scroll_top"])
	}

	// The page restores the caret it was given
	if body := ts.do(httptest.NewRequest("GET", "/", nil)).Body.String(); !strings.Contains(body, `data-selection-end="5"`) {
		t.Error("expected the selection on the editor page")
	}

	if rec := ts.do(jsonRequest("POST", "/actions/wrap/run", "")); rec.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	if text, _ := ts.sh.Text(""); text.Content != "[hello] world" {
		t.Errorf("content = %q, want [hello] world", text.Content)
	}

	rec = ts.do(formRequest("/view/cursor", url.Values{"selection_start": {"two"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = ts.do(jsonRequest("POST", "/view/cursor", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCompareAndDiff(t *testing.T) {
	ts := setupTest(t)
	if _, err := ts.sh.SetText("", "a\nb\nc"); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(jsonRequest("POST", "/compare", `{"content":"a\nB\nc","name":"old.txt"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(jsonRequest("GET", "/diff", ""))
	hunks := decodeJSON(t, rec)["hunks"].([]any)
	if len(hunks) != 1 {
		t.Fatalf("hunks = %d, want 1", len(hunks))
	}

	body := ts.do(httptest.NewRequest("GET", "/diff", nil)).Body.String()
	if !strings.Contains(body, "old.txt") || !strings.Contains(body, "@@ -2,1 +2,1 @@") {
		t.Errorf("diff page missing hunk: %s", body)
	}

	rec = ts.do(jsonRequest("POST", "/compare/clear", ""))
	if decodeJSON(t, rec)["compare"].(map[string]any)["empty"] != true {
		t.Error("expected empty compare buffer")
	}

	rec = ts.do(jsonRequest("POST", "/compare", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- plugins ---

func TestHandleRunAction(t *testing.T) {
	ts := setupTest(t)
	ctx := context.Background()
	_, err := ts.sh.AddPlugin(ctx, "stamp", `
editor.register_action("stamp", "Stamp", "", function()
  editor.set_active_text(editor.active_text() .. "!")
end)
`)
	if err != nil {
		t.Fatalf("add plugin: %v", err)
	}

	if body := ts.do(httptest.NewRequest("GET", "/", nil)).Body.String(); !strings.Contains(body, "/actions/stamp/run") {
		t.Error("expected the action button on the editor page")
	}

	rec := ts.do(jsonRequest("POST", "/actions/stamp/run", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	text, _ := ts.sh.Text("")
	if text.Content != "!" {
		t.Errorf("content = %q, want !", text.Content)
	}

	rec = ts.do(jsonRequest("POST", "/actions/missing/run", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- error rendering ---

func TestErrorRendering_HtmxFragment(t *testing.T) {
	ts := setupTest(t)

	req := httptest.NewRequest("POST", "/documents/missing/activate", nil)
	req.Header.Set("HX-Request", "true")
	rec := ts.do(req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `class="error-message"`) {
		t.Error("expected error fragment")
	}
	if strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Error("htmx error should not contain full layout")
	}
}

func TestErrorRendering_FullErrorPage(t *testing.T) {
	ts := setupTest(t)

	rec := ts.do(httptest.NewRequest("GET", "/documents/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Error 404") || !strings.Contains(body, "NOT_FOUND") {
		t.Error("expected the error page")
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |"))
	if !strings.Contains(got, "<table>") {
		t.Errorf("expected a GFM table, got %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[string]int{
		"INVALID_REQUEST":    400,
		"NEEDS_PERMISSION":   403,
		"NOT_FOUND":          404,
		"INVALID_TRANSITION": 409,
		"PLUGIN_FAILED":      422,
		"PICKER_UNAVAILABLE": 501,
		"INTERNAL":           500,
	}
	for code, want := range tests {
		if got := httpStatus(errors.ErrorCode(code)); got != want {
			t.Errorf("httpStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
