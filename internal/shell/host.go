package shell

import (
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/view"
)

// pluginHost is the capability object handed to plugins. Edits made through
// it go through the same buffers, views and listeners as user edits, and it
// never touches the status line of the action that is running.
type pluginHost struct {
	s *Shell
}

func (h pluginHost) ActiveText() (string, error) {
	d := h.s.session.Active()
	if d == nil {
		return "", errors.NewNotFound("document", "active")
	}
	return d.Content(), nil
}

func (h pluginHost) SetActiveText(text string) error {
	d := h.s.session.Active()
	if d == nil {
		return errors.NewNotFound("document", "active")
	}
	d.Buffer().SetValue(text)
	return nil
}

func (h pluginHost) Language() string {
	if d := h.s.session.Active(); d != nil {
		return d.Language()
	}
	return ""
}

func (h pluginHost) CompareText() string { return h.s.view.Compare().Content }

func (h pluginHost) IsDiffMode() bool { return h.s.view.IsDiffMode() }

func (h pluginHost) SetCompare(text, name string) { h.s.view.SetCompare(text, name) }

func (h pluginHost) ClearCompare() { h.s.view.ClearCompare() }

func (h pluginHost) SetMode(mode string) error {
	m, err := view.ParseMode(mode)
	if err != nil {
		return err
	}
	return h.s.view.SetMode(m)
}

func (h pluginHost) Selection() string { return h.s.view.ActiveEditor().SelectedText() }

func (h pluginHost) ReplaceSelection(text string) error {
	return h.s.view.ActiveEditor().ReplaceSelection(text)
}
