package shell

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/view"
	"github.com/hpungsan/quill/internal/widget"
)

// ViewOutput is the presentation state and the compare buffer.
type ViewOutput struct {
	State        view.State       `json:"state"`
	Delta        int              `json:"offset_delta"`
	Compare      view.CompareInfo `json:"compare"`
	CompareLabel string           `json:"compare_label"`
	Panes        PaneInfo         `json:"panes"`
}

// PaneInfo is the caret and scroll position of the panes. Selection offsets
// are bytes into the edited document.
type PaneInfo struct {
	Selection  widget.Selection `json:"selection"`
	ScrollTop  float64          `json:"scroll_top"`
	CompareTop float64          `json:"compare_scroll_top"`
}

// CursorInput moves the caret and viewport of the pane the user edits. Nil
// fields are left as they are; a start without an end places a caret.
type CursorInput struct {
	SelectionStart *int     `json:"selection_start"`
	SelectionEnd   *int     `json:"selection_end"`
	ScrollTop      *float64 `json:"scroll_top"`
}

// DiffOutput is the diff between the active document and the compare buffer.
type DiffOutput struct {
	Original string        `json:"original"`
	Modified string        `json:"modified"`
	Hunks    []widget.Hunk `json:"hunks"`
}

// ViewState returns the presentation state.
func (s *Shell) ViewState() *ViewOutput {
	e := s.view.ActiveEditor()
	s.smu.Lock()
	label := s.compareLabel
	s.smu.Unlock()
	return &ViewOutput{
		State:        s.view.State(),
		Delta:        s.view.Delta(),
		Compare:      s.view.Compare(),
		CompareLabel: label,
		Panes: PaneInfo{
			Selection:  e.Selection(),
			ScrollTop:  e.ScrollTop(),
			CompareTop: s.view.CompareEditor().ScrollTop(),
		},
	}
}

// SetCursor records where the user's caret and viewport are. Plugins read the
// selection from here, and a locked compare pane follows the scroll. Cursor
// moves are too frequent to replace the status line; only failures are
// reported.
func (s *Shell) SetCursor(input CursorInput) (*ViewOutput, error) {
	if input.SelectionStart == nil && input.SelectionEnd == nil && input.ScrollTop == nil {
		return nil, s.report("cursor", errors.NewInvalidRequest("selection_start, selection_end or scroll_top is required"), "")
	}
	if (input.SelectionStart != nil && *input.SelectionStart < 0) ||
		(input.SelectionEnd != nil && *input.SelectionEnd < 0) ||
		(input.ScrollTop != nil && *input.ScrollTop < 0) {
		return nil, s.report("cursor", errors.NewInvalidRequest("cursor positions must not be negative"), "")
	}

	e := s.view.ActiveEditor()
	if input.SelectionStart != nil || input.SelectionEnd != nil {
		sel := e.Selection()
		if input.SelectionStart != nil {
			sel.Start = *input.SelectionStart
			sel.End = sel.Start
		}
		if input.SelectionEnd != nil {
			sel.End = *input.SelectionEnd
		}
		e.SetSelection(sel)
	}
	if input.ScrollTop != nil {
		e.SetScrollTop(*input.ScrollTop)
	}
	return s.ViewState(), nil
}

// onCompareChange keeps the compare pane label in step with every compare
// mutation, including those made by plugins.
func (s *Shell) onCompareChange(info view.CompareInfo) {
	label := ""
	if !info.Empty {
		label = info.Name
		if f, ok := s.view.CompareHandle().(*filehandle.File); ok {
			label = f.Path()
		}
		if label == "" {
			label = "compare buffer"
		}
	}
	s.smu.Lock()
	s.compareLabel = label
	s.smu.Unlock()
	s.log.WithFields(logrus.Fields{"name": info.Name, "lines": info.Lines}).Debug("compare buffer changed")
}

// SetMode switches to "single", "split" or "diff".
func (s *Shell) SetMode(mode string) (*ViewOutput, error) {
	m, err := view.ParseMode(mode)
	if err != nil {
		return nil, s.report("mode", err, "")
	}
	if err := s.view.SetMode(m); err != nil {
		return nil, s.report("mode", err, "")
	}
	_ = s.report("mode", nil, fmt.Sprintf("%s view", m))
	return s.ViewState(), nil
}

// ToggleLayout flips between single and split.
func (s *Shell) ToggleLayout() (*ViewOutput, error) {
	if err := s.view.ToggleLayout(); err != nil {
		return nil, s.report("toggle layout", err, "")
	}
	_ = s.report("toggle layout", nil, fmt.Sprintf("%s layout", s.view.State().Layout))
	return s.ViewState(), nil
}

// SetScrollLock engages or releases scroll lock.
func (s *Shell) SetScrollLock(on bool) (*ViewOutput, error) {
	if err := s.view.SetScrollLock(on); err != nil {
		return nil, s.report("scroll lock", err, "")
	}
	msg := "scroll lock off"
	if on {
		msg = "scroll lock on"
	}
	_ = s.report("scroll lock", nil, msg)
	return s.ViewState(), nil
}

// SetLockPolicy selects "sync" or "offset" scroll lock.
func (s *Shell) SetLockPolicy(policy string) (*ViewOutput, error) {
	p, err := view.ParseLockPolicy(policy)
	if err != nil {
		return nil, s.report("lock policy", err, "")
	}
	if err := s.view.SetLockPolicy(p); err != nil {
		return nil, s.report("lock policy", err, "")
	}
	_ = s.report("lock policy", nil, fmt.Sprintf("%s scroll lock", p))
	return s.ViewState(), nil
}

// LoadCompare reads the file at path into the compare buffer.
func (s *Shell) LoadCompare(ctx context.Context, path string) (*ViewOutput, error) {
	h, err := filehandle.PathPicker{Path: path}.PickOpen(ctx)
	if err != nil {
		return nil, s.report("compare", err, "")
	}
	if err := s.view.LoadCompare(ctx, h); err != nil {
		return nil, s.report("compare", err, "")
	}
	_ = s.report("compare", nil, fmt.Sprintf("comparing with %s", h.Name()))
	return s.ViewState(), nil
}

// SetCompare replaces the compare buffer.
func (s *Shell) SetCompare(content, name string) *ViewOutput {
	s.view.SetCompare(content, name)
	_ = s.report("compare", nil, "compare buffer updated")
	return s.ViewState()
}

// ClearCompare empties the compare buffer.
func (s *Shell) ClearCompare() *ViewOutput {
	s.view.ClearCompare()
	_ = s.report("compare", nil, "compare buffer cleared")
	return s.ViewState()
}

// Diff compares the active document with the compare buffer.
func (s *Shell) Diff() *DiffOutput {
	out := &DiffOutput{Modified: s.view.Compare().Name, Hunks: s.view.DiffSummary()}
	if d := s.session.Active(); d != nil {
		out.Original = d.Name()
	}
	if out.Hunks == nil {
		out.Hunks = []widget.Hunk{}
	}
	return out
}
