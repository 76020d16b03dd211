package widget

import (
	"strings"
	"sync"
)

// TextModel is the headless Model.
type TextModel struct {
	mu        sync.Mutex
	value     string
	language  string
	version   uint64
	disposed  bool
	nextID    int
	listeners map[int]func()
}

// NewTextModel returns a model holding text.
func NewTextModel(text, language string) *TextModel {
	return &TextModel{value: text, language: language, listeners: make(map[int]func())}
}

func (m *TextModel) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// SetValue replaces the content. Setting the current value is not a change.
func (m *TextModel) SetValue(text string) {
	m.mu.Lock()
	if m.disposed || m.value == text {
		m.mu.Unlock()
		return
	}
	m.value = text
	m.version++
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (m *TextModel) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

func (m *TextModel) SetLanguage(language string) {
	m.mu.Lock()
	m.language = language
	m.mu.Unlock()
}

func (m *TextModel) LineCount() int {
	return LineCount(m.Value())
}

func (m *TextModel) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *TextModel) OnChange(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *TextModel) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.listeners = make(map[int]func())
	m.mu.Unlock()
}

func (m *TextModel) IsDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// LineCount counts lines the way editors do: an empty text has one line.
func LineCount(text string) int {
	return strings.Count(text, "\n") + 1
}
