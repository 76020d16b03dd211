package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/save"
	"github.com/hpungsan/quill/internal/shell"
	"github.com/hpungsan/quill/internal/view"
)

// maxBodyBytes bounds request bodies carrying document content.
const maxBodyBytes = 16 << 20

// Handlers contains HTTP route handlers for the browser shell.
type Handlers struct {
	shell    *shell.Shell
	renderer *Renderer
}

// HandleEditor handles GET /: the tab strip, the active document and the view.
func (h *Handlers) HandleEditor(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "editor", h.editorData())
}

func (h *Handlers) editorData() EditorPageData {
	list := h.shell.List()
	data := EditorPageData{
		PageData: PageData{
			Title:   "Quill",
			Version: h.renderer.version,
			Nav:     "editor",
		},
		Documents: list.Items,
		View:      h.shell.ViewState(),
		Status:    h.shell.Status(),
		Actions:   h.shell.Actions(),
	}
	if active, err := h.shell.Text(""); err == nil {
		data.Active = active
		data.Title = active.Name
		if active.Language == "markdown" {
			data.Preview = renderMarkdown(active.Content)
		}
	}
	if data.View.State.Mode == view.ModeDiff {
		data.Diff = h.shell.Diff()
	}
	return data
}

// HandleList handles GET /documents: the tab strip as JSON.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.shell.List())
}

// HandleNew handles POST /documents: create and activate a document.
func (h *Handlers) HandleNew(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Content  string `json:"content"`
		Language string `json:"language"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		input.Name = r.FormValue("name")
		input.Content = r.FormValue("content")
		input.Language = r.FormValue("language")
	}

	doc := h.shell.New(shell.NewInput{Name: input.Name, Content: input.Content, Language: input.Language})
	h.respond(w, r, http.StatusCreated, doc)
}

// HandleOpen handles POST /documents/open: open a file by path.
func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		input.Path = r.FormValue("path")
	}
	if input.Path == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path is required"))
		return
	}

	doc, err := h.shell.OpenPath(r.Context(), input.Path)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

// HandleText handles GET /documents/{id}: a document with its content.
func (h *Handlers) HandleText(w http.ResponseWriter, r *http.Request) {
	doc, err := h.shell.Text(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, doc)
}

// HandlePreview handles GET /documents/{id}/preview: markdown rendered as HTML.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	doc, err := h.shell.Text(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, string(renderMarkdown(doc.Content)))
}

// HandleSetText handles PUT or POST /documents/{id}/content. A PUT body is
// the raw content; a form post carries it in the "content" field.
func (h *Handlers) HandleSetText(w http.ResponseWriter, r *http.Request) {
	var content string
	switch {
	case r.Method == http.MethodPut:
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("content too large or unreadable"))
			return
		}
		content = string(b)
	case isJSON(r):
		var input struct {
			Content *string `json:"content"`
		}
		if err := decodeBody(r, &input); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if input.Content == nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("content is required"))
			return
		}
		content = *input.Content
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		content = r.FormValue("content")
	}

	doc, err := h.shell.SetText(r.PathValue("id"), content)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

// HandleActivate handles POST /documents/{id}/activate.
func (h *Handlers) HandleActivate(w http.ResponseWriter, r *http.Request) {
	doc, err := h.shell.Activate(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

// HandleClose handles POST /documents/{id}/close: close without saving.
func (h *Handlers) HandleClose(w http.ResponseWriter, r *http.Request) {
	list, err := h.shell.CloseDocument(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, list)
}

// HandleRename handles POST /documents/{id}/rename.
func (h *Handlers) HandleRename(w http.ResponseWriter, r *http.Request) {
	value, err := formOrJSON(r, "name")
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	doc, err := h.shell.Rename(r.PathValue("id"), value)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

// HandleLanguage handles POST /documents/{id}/language.
func (h *Handlers) HandleLanguage(w http.ResponseWriter, r *http.Request) {
	value, err := formOrJSON(r, "language")
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	doc, err := h.shell.SetLanguage(r.PathValue("id"), value)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

// HandleSave handles POST /documents/{id}/save. A "path" value saves as. A
// "filename" value names the download when the document falls back to one;
// an empty filename declines it. A form post from the editor pane applies its
// content before saving.
func (h *Handlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Path     string  `json:"path"`
		Filename *string `json:"filename"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		input.Path = r.FormValue("path")
		if _, ok := r.Form["filename"]; ok {
			name := r.FormValue("filename")
			input.Filename = &name
		}
		if _, ok := r.Form["content"]; ok {
			if _, err := h.shell.SetText(r.PathValue("id"), r.FormValue("content")); err != nil {
				h.renderer.renderError(w, r, err)
				return
			}
		}
	}

	ctx := r.Context()
	if input.Filename != nil {
		ctx = shell.WithFilename(ctx, *input.Filename)
	}
	var out save.Outcome
	if input.Path != "" {
		out = h.shell.SaveAs(ctx, r.PathValue("id"), input.Path)
	} else {
		out = h.shell.Save(ctx, r.PathValue("id"))
	}
	if !out.OK() && out.Status != save.StatusSkipped {
		h.renderer.renderStatus(w, r, h.shell.Status(), out)
		return
	}
	h.respond(w, r, http.StatusOK, out)
}

// HandleSaveAll handles POST /save-all.
func (h *Handlers) HandleSaveAll(w http.ResponseWriter, r *http.Request) {
	outs := h.shell.SaveAll(r.Context())
	h.respond(w, r, http.StatusOK, map[string]any{
		"outcomes": outs,
		"status":   h.shell.Status(),
	})
}

// HandleView handles POST /view. Accepted fields are mode, toggle_layout,
// scroll_lock and policy; mode applies first.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Mode         string `json:"mode"`
		ToggleLayout bool   `json:"toggle_layout"`
		ScrollLock   *bool  `json:"scroll_lock"`
		Policy       string `json:"policy"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		input.Mode = r.FormValue("mode")
		input.ToggleLayout = r.FormValue("toggle_layout") == "true"
		input.Policy = r.FormValue("policy")
		if v := r.FormValue("scroll_lock"); v != "" {
			on := v == "true" || v == "on" || v == "1"
			input.ScrollLock = &on
		}
	}

	steps := []func() error{}
	if input.Mode != "" {
		steps = append(steps, func() error { _, err := h.shell.SetMode(input.Mode); return err })
	}
	if input.ToggleLayout {
		steps = append(steps, func() error { _, err := h.shell.ToggleLayout(); return err })
	}
	if input.Policy != "" {
		steps = append(steps, func() error { _, err := h.shell.SetLockPolicy(input.Policy); return err })
	}
	if input.ScrollLock != nil {
		on := *input.ScrollLock
		steps = append(steps, func() error { _, err := h.shell.SetScrollLock(on); return err })
	}
	if len(steps) == 0 {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("no view change requested"))
		return
	}
	for _, step := range steps {
		if err := step(); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	h.respond(w, r, http.StatusOK, h.shell.ViewState())
}

// HandleCursor handles POST /view/cursor. The page sends the caret as
// selection_start and selection_end byte offsets, and the viewport as
// scroll_top in pixels.
func (h *Handlers) HandleCursor(w http.ResponseWriter, r *http.Request) {
	var input shell.CursorInput
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		var err error
		if input.SelectionStart, err = formInt(r, "selection_start"); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if input.SelectionEnd, err = formInt(r, "selection_end"); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if v := r.FormValue("scroll_top"); v != "" {
			top, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				h.renderer.renderError(w, r, errors.NewInvalidRequest("scroll_top must be a number"))
				return
			}
			input.ScrollTop = &top
		}
	}

	out, err := h.shell.SetCursor(input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, out)
}

// HandleCompare handles POST /compare: load the compare buffer from a path
// or from literal content.
func (h *Handlers) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
		Name    string  `json:"name"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !isJSON(r) {
		input.Path = r.FormValue("path")
		input.Name = r.FormValue("name")
		if _, ok := r.Form["content"]; ok {
			content := r.FormValue("content")
			input.Content = &content
		}
	}

	switch {
	case input.Path != "":
		out, err := h.shell.LoadCompare(r.Context(), input.Path)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		h.respond(w, r, http.StatusOK, out)
	case input.Content != nil:
		h.respond(w, r, http.StatusOK, h.shell.SetCompare(*input.Content, input.Name))
	default:
		h.renderer.renderError(w, r, errors.NewInvalidRequest("path or content is required"))
	}
}

// HandleClearCompare handles POST /compare/clear.
func (h *Handlers) HandleClearCompare(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.shell.ClearCompare())
}

// HandleDiff handles GET /diff: the diff summary page.
func (h *Handlers) HandleDiff(w http.ResponseWriter, r *http.Request) {
	diff := h.shell.Diff()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, diff)
		return
	}
	h.renderer.renderPage(w, r, "diff", DiffPageData{
		PageData: PageData{
			Title:   "Diff",
			Version: h.renderer.version,
			Nav:     "diff",
		},
		Diff:    diff,
		Compare: h.shell.ViewState().Compare,
	})
}

// HandleRunAction handles POST /actions/{id}/run.
func (h *Handlers) HandleRunAction(w http.ResponseWriter, r *http.Request) {
	if err := h.shell.RunAction(r.Context(), r.PathValue("id")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, h.shell.Status())
}

// respond writes data as JSON for API clients and sends browsers back to the
// editor page.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	if wantsJSON(r) {
		renderJSON(w, status, data)
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// isJSON reports whether the request body is JSON.
func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") || isJSON(r)
}

// decodeBody decodes a JSON body into v. Form bodies are parsed instead and
// left for the caller to read.
func decodeBody(r *http.Request, v any) error {
	if !isJSON(r) {
		if err := r.ParseForm(); err != nil {
			return errors.NewInvalidRequest("invalid form data")
		}
		return nil
	}
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// formInt reads an optional integer form field.
func formInt(r *http.Request, field string) (*int, error) {
	v := r.FormValue(field)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.NewInvalidRequest(field + " must be an integer")
	}
	return &n, nil
}

// formOrJSON reads one string field from a form or a JSON object body.
func formOrJSON(r *http.Request, field string) (string, error) {
	if !isJSON(r) {
		if err := r.ParseForm(); err != nil {
			return "", errors.NewInvalidRequest("invalid form data")
		}
		return r.FormValue(field), nil
	}
	var body map[string]string
	if err := decodeBody(r, &body); err != nil {
		return "", err
	}
	return body[field], nil
}
