package widget

import (
	"sync"
	"unicode/utf8"

	"github.com/hpungsan/quill/internal/errors"
)

// DefaultLineHeight is the headless line height in pixels.
const DefaultLineHeight = 18

// View is the headless Editor.
type View struct {
	mu         sync.Mutex
	model      Model
	scrollTop  float64
	lineHeight float64
	selection  Selection
	folds      []int
	readOnly   bool
	nextID     int
	scrollFns  map[int]func(float64)
}

// NewView returns an unbound editor view. A lineHeight <= 0 uses
// DefaultLineHeight.
func NewView(lineHeight float64) *View {
	if lineHeight <= 0 {
		lineHeight = DefaultLineHeight
	}
	return &View{lineHeight: lineHeight, scrollFns: make(map[int]func(float64))}
}

// SetModel binds m and resets the view state.
func (v *View) SetModel(m Model) {
	v.mu.Lock()
	v.model = m
	v.selection = Selection{}
	v.folds = nil
	changed := v.scrollTop != 0
	v.scrollTop = 0
	fns := v.scrollListeners()
	v.mu.Unlock()

	if changed {
		for _, fn := range fns {
			fn(0)
		}
	}
}

func (v *View) Model() Model {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model
}

// SaveViewState returns nil when no model is bound.
func (v *View) SaveViewState() *ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.model == nil {
		return nil
	}
	return &ViewState{
		Selection: v.selection,
		ScrollTop: v.scrollTop,
		Folds:     append([]int(nil), v.folds...),
	}
}

func (v *View) RestoreViewState(vs *ViewState) {
	if vs == nil {
		return
	}
	v.mu.Lock()
	v.selection = clampSelection(v.value(), vs.Selection)
	v.folds = append([]int(nil), vs.Folds...)
	v.mu.Unlock()
	v.SetScrollTop(vs.ScrollTop)
}

func (v *View) ScrollTop() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop
}

// SetScrollTop moves the viewport. Negative offsets clamp to zero.
func (v *View) SetScrollTop(top float64) {
	if top < 0 {
		top = 0
	}
	v.mu.Lock()
	if v.scrollTop == top {
		v.mu.Unlock()
		return
	}
	v.scrollTop = top
	fns := v.scrollListeners()
	v.mu.Unlock()

	for _, fn := range fns {
		fn(top)
	}
}

func (v *View) LineHeight() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lineHeight
}

func (v *View) Selection() Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clampSelection(v.value(), v.selection)
}

func (v *View) SetSelection(sel Selection) {
	v.mu.Lock()
	v.selection = clampSelection(v.value(), sel)
	v.mu.Unlock()
}

func (v *View) SelectedText() string {
	v.mu.Lock()
	m, sel := v.model, v.selection
	v.mu.Unlock()
	if m == nil {
		return ""
	}
	value := m.Value()
	sel = clampSelection(value, sel)
	return value[sel.Start:sel.End]
}

// ReplaceSelection replaces the selected range with text and collapses the
// selection to the end of the inserted text.
func (v *View) ReplaceSelection(text string) error {
	v.mu.Lock()
	if v.readOnly {
		v.mu.Unlock()
		return errors.NewInvalidRequest("editor is read-only")
	}
	m, sel := v.model, v.selection
	v.mu.Unlock()
	if m == nil {
		return errors.NewInvalidRequest("no model bound")
	}

	value := m.Value()
	sel = clampSelection(value, sel)
	m.SetValue(value[:sel.Start] + text + value[sel.End:])

	end := sel.Start + len(text)
	v.SetSelection(Selection{Start: end, End: end})
	return nil
}

func (v *View) SetReadOnly(readOnly bool) {
	v.mu.Lock()
	v.readOnly = readOnly
	v.mu.Unlock()
}

func (v *View) ReadOnly() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readOnly
}

func (v *View) OnDidScroll(fn func(top float64)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.scrollFns[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.scrollFns, id)
		v.mu.Unlock()
	}
}

// scrollListeners must be called with v.mu held.
func (v *View) scrollListeners() []func(float64) {
	fns := make([]func(float64), 0, len(v.scrollFns))
	for _, fn := range v.scrollFns {
		fns = append(fns, fn)
	}
	return fns
}

// value must be called with v.mu held.
func (v *View) value() string {
	if v.model == nil {
		return ""
	}
	return v.model.Value()
}

// clampSelection fits sel inside value. Offsets inside a multi-byte rune
// widen to the whole rune.
func clampSelection(value string, sel Selection) Selection {
	n := len(value)
	clamp := func(x int) int {
		if x < 0 {
			return 0
		}
		if x > n {
			return n
		}
		return x
	}
	start, end := clamp(sel.Start), clamp(sel.End)
	if start > end {
		start, end = end, start
	}
	for start > 0 && start < n && !utf8.RuneStart(value[start]) {
		start--
	}
	for end < n && !utf8.RuneStart(value[end]) {
		end++
	}
	return Selection{Start: start, End: end}
}
