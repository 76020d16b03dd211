package widget

import (
	"testing"

	"github.com/hpungsan/quill/internal/errors"
)

func TestTextModel_VersionAndListeners(t *testing.T) {
	m := NewTextModel("a", "plaintext")
	calls := 0
	remove := m.OnChange(func() { calls++ })

	m.SetValue("b")
	m.SetValue("b") // no change
	if m.Version() != 1 {
		t.Errorf("Version = %d, want 1", m.Version())
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	remove()
	m.SetValue("c")
	if calls != 1 {
		t.Errorf("calls = %d after remove, want 1", calls)
	}

	m.Dispose()
	m.SetValue("d")
	if m.Value() != "c" {
		t.Errorf("disposed model accepted a write: %q", m.Value())
	}
}

func TestLineCount(t *testing.T) {
	tests := map[string]int{"": 1, "a": 1, "a\n": 2, "a\nb\nc": 3}
	for in, want := range tests {
		if got := LineCount(in); got != want {
			t.Errorf("LineCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestView_ViewStateRoundTrip(t *testing.T) {
	v := NewView(0)
	if v.SaveViewState() != nil {
		t.Error("unbound view should have no view state")
	}

	m := NewTextModel("hello world", "plaintext")
	v.SetModel(m)
	v.SetSelection(Selection{Start: 6, End: 11})
	v.SetScrollTop(90)
	vs := v.SaveViewState()

	v.SetModel(NewTextModel("other", "plaintext"))
	if v.ScrollTop() != 0 {
		t.Errorf("ScrollTop = %v after rebind, want 0", v.ScrollTop())
	}

	v.SetModel(m)
	v.RestoreViewState(vs)
	if v.ScrollTop() != 90 {
		t.Errorf("ScrollTop = %v, want 90", v.ScrollTop())
	}
	if v.SelectedText() != "world" {
		t.Errorf("SelectedText = %q, want world", v.SelectedText())
	}
}

func TestView_ReplaceSelection(t *testing.T) {
	v := NewView(0)
	m := NewTextModel("hello world", "plaintext")
	v.SetModel(m)
	v.SetSelection(Selection{Start: 11, End: 6}) // reversed

	if err := v.ReplaceSelection("there"); err != nil {
		t.Fatalf("ReplaceSelection() error = %v", err)
	}
	if m.Value() != "hello there" {
		t.Errorf("Value = %q", m.Value())
	}
	if sel := v.Selection(); sel.Start != 11 || sel.End != 11 {
		t.Errorf("Selection = %+v, want collapsed at 11", sel)
	}

	v.SetReadOnly(true)
	if err := v.ReplaceSelection("x"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ReplaceSelection() on read-only error = %v", err)
	}
}

func TestView_SelectionFollowsBuffer(t *testing.T) {
	v := NewView(0)
	m := NewTextModel("héllo world", "plaintext")
	v.SetModel(m)

	// Byte 2 is inside é; the range widens to the whole rune
	v.SetSelection(Selection{Start: 2, End: 4})
	if got := v.SelectedText(); got != "él" {
		t.Errorf("SelectedText = %q, want él", got)
	}

	// A buffer that shrinks under the selection clamps instead of panicking
	v.SetSelection(Selection{Start: 7, End: 12})
	m.SetValue("hi")
	if got := v.SelectedText(); got != "" {
		t.Errorf("SelectedText after shrink = %q, want empty", got)
	}
	if err := v.ReplaceSelection("!"); err != nil {
		t.Fatalf("ReplaceSelection() error = %v", err)
	}
	if m.Value() != "hi!" {
		t.Errorf("Value = %q, want hi!", m.Value())
	}
}

func TestView_OnDidScroll(t *testing.T) {
	v := NewView(20)
	v.SetModel(NewTextModel("a\nb", "plaintext"))
	var got []float64
	v.OnDidScroll(func(top float64) { got = append(got, top) })

	v.SetScrollTop(40)
	v.SetScrollTop(40)
	v.SetScrollTop(-5)

	if len(got) != 2 || got[0] != 40 || got[1] != 0 {
		t.Errorf("scroll events = %v, want [40 0]", got)
	}
}

func TestLineHunks(t *testing.T) {
	hunks := LineHunks("a\nb\nc", "a\nx\nc")
	if len(hunks) != 1 {
		t.Fatalf("hunks = %+v, want 1", hunks)
	}
	h := hunks[0]
	if h.OriginalStart != 2 || h.OriginalLines != 1 || h.ModifiedStart != 2 || h.ModifiedLines != 1 {
		t.Errorf("hunk = %+v", h)
	}
	if len(h.Removed) != 1 || h.Removed[0] != "b" || len(h.Added) != 1 || h.Added[0] != "x" {
		t.Errorf("hunk lines = %v / %v", h.Removed, h.Added)
	}

	if LineHunks("same", "same") != nil {
		t.Error("identical texts should have no hunks")
	}

	hunks = LineHunks("a\nc", "a\nb1\nb2\nc")
	if len(hunks) != 1 || hunks[0].OriginalLines != 0 || hunks[0].ModifiedLines != 2 || hunks[0].ModifiedStart != 2 {
		t.Errorf("insertion hunks = %+v", hunks)
	}
}

func TestDiffView(t *testing.T) {
	d := NewDiffView(0)
	orig := NewTextModel("a\nb\nc", "plaintext")
	mod := NewTextModel("a\nx\nc", "plaintext")
	d.SetModels(orig, mod)

	if d.OriginalEditor().ReadOnly() {
		t.Error("original side must be editable")
	}
	if !d.ModifiedEditor().ReadOnly() {
		t.Error("modified side must be read-only")
	}
	if len(d.Hunks()) != 1 {
		t.Errorf("Hunks = %+v", d.Hunks())
	}
	if orig.Value() != "a\nb\nc" || mod.Value() != "a\nx\nc" {
		t.Error("binding a diff must not mutate either buffer")
	}
}
