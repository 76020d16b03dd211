package widget

import (
	"strings"
	"sync"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

// DiffView is the headless DiffEditor. The original side is editable and the
// modified side is read-only.
type DiffView struct {
	mu       sync.Mutex
	original *View
	modified *View
}

// NewDiffView returns an unbound diff view.
func NewDiffView(lineHeight float64) *DiffView {
	d := &DiffView{original: NewView(lineHeight), modified: NewView(lineHeight)}
	d.modified.SetReadOnly(true)
	return d
}

func (d *DiffView) SetModels(original, modified Model) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.original.SetModel(original)
	d.modified.SetModel(modified)
}

func (d *DiffView) Original() Model { return d.original.Model() }

func (d *DiffView) Modified() Model { return d.modified.Model() }

func (d *DiffView) OriginalEditor() Editor { return d.original }

func (d *DiffView) ModifiedEditor() Editor { return d.modified }

// Hunks diffs the bound pair line by line.
func (d *DiffView) Hunks() []Hunk {
	orig, mod := d.Original(), d.Modified()
	var a, b string
	if orig != nil {
		a = orig.Value()
	}
	if mod != nil {
		b = mod.Value()
	}
	return LineHunks(a, b)
}

// LineHunks returns the changed line regions between a and b.
func LineHunks(a, b string) []Hunk {
	if a == b {
		return nil
	}

	d := dmp.New()
	ca, cb, lines := d.DiffLinesToChars(a+"\n", b+"\n")
	diffs := d.DiffCharsToLines(d.DiffMain(ca, cb, false), lines)

	var hunks []Hunk
	var cur *Hunk
	origLn, modLn := 1, 1
	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}
	open := func() {
		if cur == nil {
			cur = &Hunk{OriginalStart: origLn, ModifiedStart: modLn}
		}
	}

	for _, df := range diffs {
		chunk := splitLines(df.Text)
		switch df.Type {
		case dmp.DiffEqual:
			flush()
			origLn += len(chunk)
			modLn += len(chunk)
		case dmp.DiffDelete:
			open()
			cur.OriginalLines += len(chunk)
			cur.Removed = append(cur.Removed, chunk...)
			origLn += len(chunk)
		case dmp.DiffInsert:
			open()
			cur.ModifiedLines += len(chunk)
			cur.Added = append(cur.Added, chunk...)
			modLn += len(chunk)
		}
	}
	flush()
	return hunks
}

// splitLines splits newline-terminated text into its lines.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}

// Headless is the Factory for headless widgets.
type Headless struct {
	LineHeight float64
}

func (h Headless) NewModel(text, language string) Model { return NewTextModel(text, language) }

func (h Headless) NewEditor() Editor { return NewView(h.LineHeight) }

func (h Headless) NewDiffEditor() DiffEditor { return NewDiffView(h.LineHeight) }
