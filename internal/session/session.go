// Package session owns the ordered collection of open documents and the
// active-document pointer, and keeps the durable store in step with them.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/debounce"
	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/widget"
)

// Store is the documents collection of the durable store.
type Store interface {
	PutDocument(ctx context.Context, rec *db.DocumentRecord) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context) ([]db.DocumentRecord, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// ActivePointer persists the active document id.
type ActivePointer interface {
	ActiveDocumentID() string
	SetActiveDocumentID(ctx context.Context, id string) error
}

// EventKind identifies a session event.
type EventKind int

const (
	EventCreated EventKind = iota
	EventActivated
	EventChanged
	EventRenamed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventActivated:
		return "activated"
	case EventChanged:
		return "changed"
	case EventRenamed:
		return "renamed"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to subscribers. Previous is set for EventActivated.
type Event struct {
	Kind     EventKind
	Document *document.Document
	Previous *document.Document
}

// Options configures a Manager.
type Options struct {
	Store    Store
	Pointer  ActivePointer
	Factory  widget.Factory
	Editor   widget.Editor
	Resolver filehandle.Resolver

	// PersistDelay is the coalescing window of PersistSoon.
	PersistDelay time.Duration
	Logger       logrus.FieldLogger
}

// Manager is the session. Structural operations (create, activate, close,
// restore) are serialized by opMu; mu guards the collection itself and is
// never held across widget calls, store I/O or listener callbacks.
type Manager struct {
	store    Store
	pointer  ActivePointer
	factory  widget.Factory
	editor   widget.Editor
	resolver filehandle.Resolver
	log      logrus.FieldLogger
	persist  *debounce.Debouncer

	opMu    sync.Mutex
	flushMu sync.Mutex

	mu     sync.Mutex
	docs   []*document.Document
	active *document.Document

	lmu       sync.Mutex
	nextLID   int
	listeners map[int]func(Event)
}

// New returns an empty session. Call Restore to load the previous session.
func New(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		pointer:   opts.Pointer,
		factory:   opts.Factory,
		editor:    opts.Editor,
		resolver:  opts.Resolver,
		log:       opts.Logger,
		listeners: make(map[int]func(Event)),
	}
	if m.factory == nil {
		m.factory = widget.Headless{}
	}
	if m.editor == nil {
		m.editor = m.factory.NewEditor()
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	m.persist = debounce.New(opts.PersistDelay, func() {
		if err := m.persistNow(context.Background()); err != nil {
			m.log.WithError(err).Warn("session persistence pass incomplete")
		}
	})
	return m
}

// Editor returns the primary editor view.
func (m *Manager) Editor() widget.Editor { return m.editor }

// Subscribe registers fn for session events and returns a function that
// removes it. Listeners run synchronously and must not call Activate, Close
// or CreateDocument.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextLID
	m.nextLID++
	m.listeners[id] = fn
	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

func (m *Manager) notify(ev Event) {
	m.lmu.Lock()
	fns := make([]func(Event), 0, len(m.listeners))
	// Registration order
	for i := 0; i < m.nextLID; i++ {
		if fn, ok := m.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.lmu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Documents returns the open documents in tab order.
func (m *Manager) Documents() []*document.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*document.Document(nil), m.docs...)
}

// Active returns the active document, or nil while the session is empty.
func (m *Manager) Active() *document.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Get returns the open document with id.
func (m *Manager) Get(id string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(id); i >= 0 {
		return m.docs[i], nil
	}
	return nil, errors.NewNotFound("document", id)
}

func (m *Manager) indexLocked(id string) int {
	for i, d := range m.docs {
		if d.ID() == id {
			return i
		}
	}
	return -1
}

// nameTakenLocked reports whether an open document other than except uses name.
func (m *Manager) nameTakenLocked(except *document.Document) func(string) bool {
	return func(name string) bool {
		for _, d := range m.docs {
			if d != except && d.Name() == name {
				return true
			}
		}
		return false
	}
}

// CreateDocument appends a new document and returns it. It never fails: a
// colliding name gets a numeric suffix and a missing language is inferred
// from the name. The document is not activated.
func (m *Manager) CreateDocument(opts document.Options) *document.Document {
	m.opMu.Lock()
	d := m.createLocked(opts)
	m.opMu.Unlock()

	m.notify(Event{Kind: EventCreated, Document: d})
	m.PersistSoon()
	return d
}

// createLocked must be called with opMu held.
func (m *Manager) createLocked(opts document.Options) *document.Document {
	m.mu.Lock()
	opts.Name = document.UniqueName(opts.Name, m.nameTakenLocked(nil))
	if opts.ID != "" && m.indexLocked(opts.ID) >= 0 {
		opts.ID = ""
	}
	d := document.New(m.factory, opts, m.documentChanged)
	m.docs = append(m.docs, d)
	m.mu.Unlock()
	return d
}

func (m *Manager) documentChanged(d *document.Document) {
	m.notify(Event{Kind: EventChanged, Document: d})
	m.PersistSoon()
}

// Activate makes id the active document. An unknown id is a no-op and
// reports false.
func (m *Manager) Activate(id string) bool {
	m.opMu.Lock()
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		m.opMu.Unlock()
		return false
	}
	target := m.docs[i]
	m.mu.Unlock()

	prev := m.switchToLocked(target, true)
	m.opMu.Unlock()

	m.notify(Event{Kind: EventActivated, Document: target, Previous: prev})
	m.PersistSoon()
	return true
}

// switchToLocked rebinds the primary editor to target and returns the
// previously active document. The outgoing view state is captured before the
// editor is rebound. Must be called with opMu held.
func (m *Manager) switchToLocked(target *document.Document, captureOutgoing bool) *document.Document {
	m.mu.Lock()
	prev := m.active
	m.mu.Unlock()

	if prev == target {
		return prev
	}
	if prev != nil && captureOutgoing {
		prev.SetViewState(m.editor.SaveViewState())
	}

	m.editor.SetModel(target.Buffer())
	m.editor.RestoreViewState(target.ViewState())

	m.mu.Lock()
	m.active = target
	m.mu.Unlock()
	return prev
}

// Close closes id and reports whether it was open. Closing the last
// document leaves a fresh untitled one. When the active document closes, its
// right neighbour becomes active, else the new rightmost. Listeners see the
// new active document before the closed buffer is disposed.
func (m *Manager) Close(id string) bool {
	m.opMu.Lock()

	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		m.opMu.Unlock()
		return false
	}
	closed := m.docs[i]
	wasActive := m.active == closed
	m.docs = append(m.docs[:i:i], m.docs[i+1:]...)
	remaining := len(m.docs)
	m.mu.Unlock()

	var events []Event
	var next *document.Document
	if remaining == 0 {
		next = m.createLocked(document.Options{})
		events = append(events, Event{Kind: EventCreated, Document: next})
	} else if wasActive {
		m.mu.Lock()
		if i < len(m.docs) {
			next = m.docs[i]
		} else {
			next = m.docs[len(m.docs)-1]
		}
		m.mu.Unlock()
	}

	if next != nil {
		prev := m.switchToLocked(next, false)
		events = append(events, Event{Kind: EventActivated, Document: next, Previous: prev})
	}
	m.opMu.Unlock()

	for _, ev := range events {
		m.notify(ev)
	}
	m.notify(Event{Kind: EventClosed, Document: closed})
	closed.Dispose()

	m.PersistSoon()
	return true
}

// Rename gives id a new display name, resolved for uniqueness. The language
// is re-inferred only when it was inferred from the old name.
func (m *Manager) Rename(id, name string) (*document.Document, error) {
	m.opMu.Lock()
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		m.opMu.Unlock()
		return nil, errors.NewNotFound("document", id)
	}
	d := m.docs[i]
	oldInferred := document.InferLanguage(d.Name()) == d.Language()
	d.SetName(document.UniqueName(name, m.nameTakenLocked(d)))
	m.mu.Unlock()
	m.opMu.Unlock()

	if oldInferred {
		d.SetLanguage(document.InferLanguage(d.Name()))
	}
	m.notify(Event{Kind: EventRenamed, Document: d})
	m.PersistSoon()
	return d, nil
}

// SetLanguage reassigns the language of id. Empty falls back to inference.
func (m *Manager) SetLanguage(id, language string) (*document.Document, error) {
	d, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	d.SetLanguage(language)
	m.notify(Event{Kind: EventRenamed, Document: d})
	m.PersistSoon()
	return d, nil
}

// Open reads h and opens it as a new active document bound to h.
func (m *Manager) Open(ctx context.Context, h filehandle.Handle) (*document.Document, error) {
	content, err := h.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCanceled("open")
	}
	d := m.CreateDocument(document.Options{Name: h.Name(), Content: content, Handle: h})
	m.Activate(d.ID())
	return d, nil
}

// PersistSoon schedules a coalesced persistence pass.
func (m *Manager) PersistSoon() {
	m.persist.Trigger()
}

// Flush drops any pending pass and persists now.
func (m *Manager) Flush(ctx context.Context) error {
	m.persist.Cancel()
	return m.persistNow(ctx)
}

// Shutdown flushes and stops scheduling further passes.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.Flush(ctx)
	m.persist.Stop()
	return err
}
