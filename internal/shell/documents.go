package shell

import (
	"context"
	"fmt"

	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
)

// DocumentSummary describes an open document without its content.
type DocumentSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Dirty    bool   `json:"dirty"`
	Active   bool   `json:"active"`
	Bound    bool   `json:"bound"`
	Path     string `json:"path,omitempty"`
	Lines    int    `json:"lines"`
}

// ListOutput is the tab strip.
type ListOutput struct {
	Items    []DocumentSummary `json:"items"`
	ActiveID string            `json:"active_id"`
}

// NewInput contains parameters for the New operation.
type NewInput struct {
	Name     string
	Content  string
	Language string // empty: inferred from Name
}

// TextOutput is a document with its content.
type TextOutput struct {
	DocumentSummary
	Content string `json:"content"`
}

func summarize(d, active *document.Document) DocumentSummary {
	sum := DocumentSummary{
		ID:       d.ID(),
		Name:     d.Name(),
		Language: d.Language(),
		Dirty:    d.Dirty(),
		Active:   d == active,
		Lines:    d.Buffer().LineCount(),
	}
	if h := d.Handle(); h != nil {
		sum.Bound = true
		if f, ok := h.(*filehandle.File); ok {
			sum.Path = f.Path()
		}
	}
	return sum
}

// resolve returns the document with id, or the active document when id is empty.
func (s *Shell) resolve(id string) (*document.Document, error) {
	if id == "" {
		if d := s.session.Active(); d != nil {
			return d, nil
		}
		return nil, errors.NewNotFound("document", "active")
	}
	return s.session.Get(id)
}

func (s *Shell) summary(d *document.Document) *DocumentSummary {
	sum := summarize(d, s.session.Active())
	return &sum
}

// List returns the open documents in tab order.
func (s *Shell) List() *ListOutput {
	active := s.session.Active()
	out := &ListOutput{Items: []DocumentSummary{}}
	if active != nil {
		out.ActiveID = active.ID()
	}
	for _, d := range s.session.Documents() {
		out.Items = append(out.Items, summarize(d, active))
	}
	return out
}

// New creates a document and makes it active.
func (s *Shell) New(input NewInput) *DocumentSummary {
	d := s.session.CreateDocument(document.Options{
		Name:     input.Name,
		Content:  input.Content,
		Language: input.Language,
	})
	s.session.Activate(d.ID())
	_ = s.report("new", nil, fmt.Sprintf("created %s", d.Name()))
	return s.summary(d)
}

// OpenPath opens the file at path as a new active document.
func (s *Shell) OpenPath(ctx context.Context, path string) (*DocumentSummary, error) {
	h, err := filehandle.PathPicker{Path: path, Prompter: s.prompter}.PickOpen(ctx)
	if err != nil {
		return nil, s.report("open", err, "")
	}
	return s.OpenHandle(ctx, h)
}

// OpenHandle opens h as a new active document bound to it. A file that is
// already open activates its document instead.
func (s *Shell) OpenHandle(ctx context.Context, h filehandle.Handle) (*DocumentSummary, error) {
	if d := s.findFile(h); d != nil {
		s.session.Activate(d.ID())
		_ = s.report("open", nil, fmt.Sprintf("%s is already open", d.Name()))
		return s.summary(d), nil
	}
	d, err := s.session.Open(ctx, h)
	if err != nil {
		return nil, s.report("open", err, "")
	}
	_ = s.report("open", nil, fmt.Sprintf("opened %s", d.Name()))
	return s.summary(d), nil
}

// findFile returns the open document bound to the same file as h.
func (s *Shell) findFile(h filehandle.Handle) *document.Document {
	f, ok := h.(*filehandle.File)
	if !ok {
		return nil
	}
	for _, d := range s.session.Documents() {
		if bound, ok := d.Handle().(*filehandle.File); ok && bound.Path() == f.Path() {
			return d
		}
	}
	return nil
}

// Activate switches to id.
func (s *Shell) Activate(id string) (*DocumentSummary, error) {
	if !s.session.Activate(id) {
		return nil, s.report("activate", errors.NewNotFound("document", id), "")
	}
	d, err := s.session.Get(id)
	if err != nil {
		return nil, s.report("activate", err, "")
	}
	_ = s.report("activate", nil, d.Name())
	return s.summary(d), nil
}

// CloseDocument closes id and returns the remaining tabs. Unsaved changes
// are discarded; callers confirm before closing a dirty document.
func (s *Shell) CloseDocument(id string) (*ListOutput, error) {
	d, err := s.resolve(id)
	if err != nil {
		return nil, s.report("close", err, "")
	}
	name := d.Name()
	s.session.Close(d.ID())
	_ = s.report("close", nil, fmt.Sprintf("closed %s", name))
	return s.List(), nil
}

// Rename renames id. The name is adjusted if another tab already uses it.
func (s *Shell) Rename(id, name string) (*DocumentSummary, error) {
	d, err := s.resolve(id)
	if err != nil {
		return nil, s.report("rename", err, "")
	}
	if d, err = s.session.Rename(d.ID(), name); err != nil {
		return nil, s.report("rename", err, "")
	}
	_ = s.report("rename", nil, fmt.Sprintf("renamed to %s", d.Name()))
	return s.summary(d), nil
}

// SetLanguage reassigns the language of id.
func (s *Shell) SetLanguage(id, language string) (*DocumentSummary, error) {
	d, err := s.resolve(id)
	if err != nil {
		return nil, s.report("language", err, "")
	}
	if d, err = s.session.SetLanguage(d.ID(), language); err != nil {
		return nil, s.report("language", err, "")
	}
	_ = s.report("language", nil, fmt.Sprintf("%s is %s", d.Name(), d.Language()))
	return s.summary(d), nil
}

// Text returns the content of id.
func (s *Shell) Text(id string) (*TextOutput, error) {
	d, err := s.resolve(id)
	if err != nil {
		return nil, s.report("get text", err, "")
	}
	return &TextOutput{DocumentSummary: *s.summary(d), Content: d.Content()}, nil
}

// SetText replaces the content of id. This is an edit: the document becomes
// dirty and autosave is scheduled.
func (s *Shell) SetText(id, text string) (*DocumentSummary, error) {
	d, err := s.resolve(id)
	if err != nil {
		return nil, s.report("edit", err, "")
	}
	d.Buffer().SetValue(text)
	_ = s.report("edit", nil, fmt.Sprintf("edited %s", d.Name()))
	return s.summary(d), nil
}
