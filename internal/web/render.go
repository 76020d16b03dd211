package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/plugin"
	"github.com/hpungsan/quill/internal/save"
	"github.com/hpungsan/quill/internal/shell"
	"github.com/hpungsan/quill/internal/view"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "editor" or "diff"
}

// EditorPageData is the template data for the editor page.
type EditorPageData struct {
	PageData
	Documents []shell.DocumentSummary
	Active    *shell.TextOutput
	View      *shell.ViewOutput
	Status    shell.Status
	Actions   []plugin.Action
	Preview   template.HTML
	Diff      *shell.DiffOutput
}

// DiffPageData is the template data for the diff page.
type DiffPageData struct {
	PageData
	Diff    *shell.DiffOutput
	Compare view.CompareInfo
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Code       string
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       logrus.FieldLogger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, log logrus.FieldLogger) *Renderer {
	funcMap := template.FuncMap{
		"add":    func(a, b int) int { return a + b },
		"joinLn": func(lines []string) string { return strings.Join(lines, "\n") },
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"editor": "editor.html",
		"diff":   "diff.html",
		"error":  "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       log,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.WithField("template", name).Error("template not found")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.WithError(err).WithField("template", name).Error("template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var qErr *errors.QuillError
	if !stderrors.As(err, &qErr) {
		qErr = errors.NewInternal(err)
	}
	message := qErr.Message
	if qErr.Code == errors.ErrInternal {
		r.log.WithError(err).Error("request failed")
		message = "an internal error occurred"
	}
	r.renderFailure(w, req, qErr.Status, qErr.Code, message)
}

// renderStatus renders a failed save outcome using the shell status line.
func (r *Renderer) renderStatus(w http.ResponseWriter, req *http.Request, st shell.Status, out save.Outcome) {
	code := st.Code
	if code == "" {
		code = errors.ErrInternal
	}
	r.renderFailure(w, req, httpStatus(code), code, out.Message)
}

func (r *Renderer) renderFailure(w http.ResponseWriter, req *http.Request, status int, code errors.ErrorCode, message string) {
	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Code:       string(code),
		Message:    message,
	})
}

// httpStatus maps an error code to the status its constructor uses.
func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidRequest:
		return http.StatusBadRequest
	case errors.ErrCanceled:
		return 499
	case errors.ErrNeedsPermission:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrInvalidTransition:
		return http.StatusConflict
	case errors.ErrUnserializable, errors.ErrPluginFailed:
		return http.StatusUnprocessableEntity
	case errors.ErrPickerUnavailable:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts markdown text to HTML. Raw HTML in the source is
// omitted by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
