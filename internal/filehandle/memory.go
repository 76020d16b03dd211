package filehandle

import (
	"bytes"
	"context"
	"os"
	"sync"

	"github.com/hpungsan/quill/internal/errors"
)

// KindMemory is the kind of Memory handles. Memory handles never serialize.
const KindMemory = "memory"

// Memory is an in-process handle. It backs scratch bindings and tests, and
// deliberately does not implement Marshaler.
type Memory struct {
	name string

	mu             sync.Mutex
	content        string
	perm           Permission
	grantOnRequest bool
	requests       int
	commits        int
	writeErr       error
}

// NewMemory returns a memory handle holding content.
func NewMemory(name, content string, perm Permission) *Memory {
	return &Memory{name: name, content: content, perm: perm}
}

// SetGrantOnRequest controls the answer to the next RequestPermission calls.
func (m *Memory) SetGrantOnRequest(grant bool) {
	m.mu.Lock()
	m.grantOnRequest = grant
	m.mu.Unlock()
}

// SetPermission overrides the current permission state.
func (m *Memory) SetPermission(p Permission) {
	m.mu.Lock()
	m.perm = p
	m.mu.Unlock()
}

// FailWrites makes every later Write on a writable return err.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Content returns the last committed content.
func (m *Memory) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Requests returns how many times RequestPermission was called.
func (m *Memory) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Commits returns how many writables were committed.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Kind() string { return KindMemory }

func (m *Memory) Read(_ context.Context) (string, error) {
	return m.Content(), nil
}

func (m *Memory) QueryPermission(_ context.Context) Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm
}

func (m *Memory) RequestPermission(_ context.Context) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if m.perm == PermissionGranted {
		return m.perm, nil
	}
	if m.grantOnRequest {
		m.perm = PermissionGranted
	} else {
		m.perm = PermissionDenied
	}
	return m.perm, nil
}

func (m *Memory) CreateWritable(ctx context.Context) (Writable, error) {
	if m.QueryPermission(ctx) != PermissionGranted {
		return nil, errors.NewNeedsPermission(m.name, nil)
	}
	return &memoryWritable{owner: m}, nil
}

type memoryWritable struct {
	owner *Memory
	buf   bytes.Buffer
	done  bool
}

func (w *memoryWritable) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	w.owner.mu.Lock()
	err := w.owner.writeErr
	w.owner.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return w.buf.Write(p)
}

func (w *memoryWritable) Close() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true
	w.owner.mu.Lock()
	w.owner.content = w.buf.String()
	w.owner.commits++
	w.owner.mu.Unlock()
	return nil
}

func (w *memoryWritable) Abort() error {
	w.done = true
	return nil
}
