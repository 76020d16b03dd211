// Package widget defines the contract of the text-editing widget the session
// engine drives, plus a headless implementation.
//
// The engine never reaches into a widget's internals. It creates models,
// binds them to editor views, reads and writes scroll offsets, and hands an
// (original, modified) pair to a diff view. Browser front ends implement the
// same interfaces over their real widget; the CLI, MCP server, web shell and
// tests use Headless.
package widget

// Selection is a byte range into a model's value. Start <= End.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ViewState is the ephemeral per-document editor state: cursor and selection,
// scroll offset and folded regions.
type ViewState struct {
	Selection Selection `json:"selection"`
	ScrollTop float64   `json:"scroll_top"`
	Folds     []int     `json:"folds,omitempty"`
}

// Model is a text buffer with a language.
type Model interface {
	Value() string
	SetValue(text string)
	Language() string
	SetLanguage(language string)
	LineCount() int
	// Version increases on every content change.
	Version() uint64
	// OnChange registers fn to run after each content change and returns a
	// function that removes it.
	OnChange(fn func()) (remove func())
	Dispose()
	IsDisposed() bool
}

// Editor is a view bound to at most one model. It borrows the model and
// never disposes it.
type Editor interface {
	SetModel(m Model)
	Model() Model
	SaveViewState() *ViewState
	RestoreViewState(vs *ViewState)
	// ScrollTop is the vertical scroll offset in pixels.
	ScrollTop() float64
	SetScrollTop(top float64)
	LineHeight() float64
	Selection() Selection
	SetSelection(sel Selection)
	SelectedText() string
	ReplaceSelection(text string) error
	SetReadOnly(readOnly bool)
	ReadOnly() bool
	// OnDidScroll registers fn to run after the scroll offset changes.
	OnDidScroll(fn func(top float64)) (remove func())
}

// DiffEditor shows a computed two-way diff of an (original, modified) pair.
type DiffEditor interface {
	SetModels(original, modified Model)
	Original() Model
	Modified() Model
	OriginalEditor() Editor
	ModifiedEditor() Editor
	Hunks() []Hunk
}

// Factory creates widget objects.
type Factory interface {
	NewModel(text, language string) Model
	NewEditor() Editor
	NewDiffEditor() DiffEditor
}

// Hunk is one changed region of a diff. Line numbers are 1-based; a zero
// count means the region is a pure insertion or deletion on that side.
type Hunk struct {
	OriginalStart int      `json:"original_start"`
	OriginalLines int      `json:"original_lines"`
	ModifiedStart int      `json:"modified_start"`
	ModifiedLines int      `json:"modified_lines"`
	Removed       []string `json:"removed,omitempty"`
	Added         []string `json:"added,omitempty"`
}
