// Package document defines the Document entity: one open buffer and the
// metadata the session tracks for it.
package document

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/widget"
)

// Document is one open tab. The buffer is owned here; editor views borrow it.
type Document struct {
	id string

	mu        sync.Mutex
	name      string
	language  string
	buffer    widget.Model
	handle    filehandle.Handle
	dirty     bool
	viewState *widget.ViewState
	unwatch   func()
	changed   func(*Document)
}

// Options describes a document to create. Zero values mean "not supplied".
type Options struct {
	ID       string
	Name     string
	Content  string
	Language string
	Handle   filehandle.Handle
	Dirty    bool
}

// New creates a document whose buffer comes from factory. The name is used
// as given; callers resolve uniqueness first. onChange, if set, runs after
// every buffer mutation.
func New(factory widget.Factory, opts Options, onChange func(*Document)) *Document {
	id := opts.ID
	if id == "" {
		id = NewID()
	}
	name := opts.Name
	if name == "" {
		name = Untitled
	}
	language := NormalizeLanguage(opts.Language, name)

	d := &Document{
		id:       id,
		name:     name,
		language: language,
		buffer:   factory.NewModel(opts.Content, language),
		handle:   opts.Handle,
		dirty:    opts.Dirty,
		changed:  onChange,
	}
	d.unwatch = d.buffer.OnChange(d.markDirty)
	return d
}

// NewID returns a new ULID string.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func (d *Document) markDirty() {
	d.mu.Lock()
	d.dirty = true
	fn := d.changed
	d.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

func (d *Document) ID() string { return d.id }

func (d *Document) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// SetName changes the display name only; uniqueness is the caller's job.
func (d *Document) SetName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

func (d *Document) Language() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.language
}

// SetLanguage reassigns the language. An empty language falls back to the
// language inferred from the name.
func (d *Document) SetLanguage(language string) {
	d.mu.Lock()
	d.language = NormalizeLanguage(language, d.name)
	lang := d.language
	d.mu.Unlock()
	d.buffer.SetLanguage(lang)
}

// Buffer returns the owned model. Do not dispose it; use Dispose.
func (d *Document) Buffer() widget.Model { return d.buffer }

func (d *Document) Content() string { return d.buffer.Value() }

// Version is the buffer version, used to detect edits racing a save.
func (d *Document) Version() uint64 { return d.buffer.Version() }

func (d *Document) Handle() filehandle.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

func (d *Document) SetHandle(h filehandle.Handle) {
	d.mu.Lock()
	d.handle = h
	d.mu.Unlock()
}

func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// MarkClean clears dirty if the buffer is still at version. It reports
// whether the flag was cleared.
func (d *Document) MarkClean(version uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffer.Version() != version {
		return false
	}
	d.dirty = false
	return true
}

func (d *Document) ViewState() *widget.ViewState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewState
}

func (d *Document) SetViewState(vs *widget.ViewState) {
	d.mu.Lock()
	d.viewState = vs
	d.mu.Unlock()
}

// Dispose releases the buffer. View state is dropped with it.
func (d *Document) Dispose() {
	d.mu.Lock()
	unwatch := d.unwatch
	d.unwatch = nil
	d.viewState = nil
	d.changed = nil
	d.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	d.buffer.Dispose()
}

// Snapshot is a consistent copy of a document's persistable fields.
type Snapshot struct {
	ID       string
	Name     string
	Language string
	Content  string
	Dirty    bool
	Handle   filehandle.Handle
	Version  uint64
}

// Snapshot copies the persistable fields.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Version before content: an edit landing in between leaves the snapshot
	// looking stale rather than current.
	version := d.buffer.Version()
	return Snapshot{
		ID:       d.id,
		Name:     d.name,
		Language: d.language,
		Content:  d.buffer.Value(),
		Dirty:    d.dirty,
		Handle:   d.handle,
		Version:  version,
	}
}
