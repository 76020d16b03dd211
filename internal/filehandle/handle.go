// Package filehandle bridges documents to real files.
//
// A Handle is a capability to read and write one external file. Write access
// is gated by a permission state that may be unknown, granted or denied; the
// scoped Write helper queries (and, when the policy allows, requests) that
// permission before opening a Writable, and always commits or aborts the
// Writable before returning.
package filehandle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/quill/internal/errors"
)

// Permission is the write permission state of a handle.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Policy controls whether a write may surface an interactive permission prompt.
type Policy int

const (
	// PolicyPrompt allows RequestPermission when permission is not already granted.
	PolicyPrompt Policy = iota
	// PolicyNoPrompt never prompts; used by autosave.
	PolicyNoPrompt
)

// Handle is a capability to an external file. Documents hold a Handle but do
// not own the file.
type Handle interface {
	// Name is the display name of the file (base name, no directory).
	Name() string
	// Kind identifies the implementation for serialization ("file", "memory").
	Kind() string
	// Read returns the current content as text.
	Read(ctx context.Context) (string, error)
	// QueryPermission reports the current write permission without prompting.
	QueryPermission(ctx context.Context) Permission
	// RequestPermission asks the user for write permission.
	RequestPermission(ctx context.Context) (Permission, error)
	// CreateWritable opens a scoped writable stream. The caller must Close
	// (commit) or Abort it.
	CreateWritable(ctx context.Context) (Writable, error)
}

// Writable is a scoped write stream. Nothing is visible at the destination
// until Close succeeds.
type Writable interface {
	io.Writer
	// Close commits the written bytes.
	Close() error
	// Abort discards the written bytes and releases the stream.
	Abort() error
}

// Marshaler is implemented by handles that can be persisted.
type Marshaler interface {
	MarshalHandle() ([]byte, error)
}

// Resolver rebuilds handles from their persisted form.
type Resolver interface {
	Resolve(kind string, data json.RawMessage) (Handle, error)
}

// envelope is the persisted form of a handle.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes h. Handles that do not implement Marshaler return an
// UNSERIALIZABLE error; callers persist the document without its handle.
func Encode(h Handle) (string, error) {
	m, ok := h.(Marshaler)
	if !ok {
		return "", errors.NewUnserializable(h.Kind())
	}
	data, err := m.MarshalHandle()
	if err != nil {
		return "", errors.NewUnserializable(h.Kind())
	}
	b, err := json.Marshal(envelope{Kind: h.Kind(), Data: data})
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(b), nil
}

// Decode rebuilds a handle using r.
func Decode(r Resolver, s string) (Handle, error) {
	if r == nil {
		return nil, errors.NewInvalidRequest("no handle resolver configured")
	}
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid handle: %v", err))
	}
	return r.Resolve(env.Kind, env.Data)
}

// EnsurePermission returns nil when h may be written under policy.
// Under PolicyNoPrompt a non-granted handle is refused without prompting.
func EnsurePermission(ctx context.Context, h Handle, policy Policy) error {
	if h.QueryPermission(ctx) == PermissionGranted {
		return nil
	}
	if policy == PolicyNoPrompt {
		return errors.NewNeedsPermission(h.Name(), nil)
	}
	perm, err := h.RequestPermission(ctx)
	if err != nil {
		return errors.NewNeedsPermission(h.Name(), err)
	}
	if perm != PermissionGranted {
		return errors.NewNeedsPermission(h.Name(), nil)
	}
	return nil
}

// Write writes content to h under policy. The writable stream is committed on
// success and aborted on every other exit path after it was opened.
func Write(ctx context.Context, h Handle, content []byte, policy Policy) error {
	if err := EnsurePermission(ctx, h, policy); err != nil {
		return err
	}

	w, err := h.CreateWritable(ctx)
	if err != nil {
		return errors.NewNeedsPermission(h.Name(), err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = w.Abort()
		}
	}()

	if _, err := w.Write(content); err != nil {
		return errors.NewInternal(fmt.Errorf("write %s: %w", h.Name(), err))
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCanceled("write")
	}

	committed = true
	if err := w.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("commit %s: %w", h.Name(), err))
	}
	return nil
}
