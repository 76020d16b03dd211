package filehandle

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hpungsan/quill/internal/errors"
)

// Picker chooses files interactively. Implementations return an
// ErrCanceled-coded error when the user dismisses the dialog and an
// ErrPickerUnavailable-coded error when no dialog can be shown.
type Picker interface {
	PickSave(ctx context.Context, suggestedName string) (Handle, error)
	PickOpen(ctx context.Context) (Handle, error)
}

// PathPicker resolves picks against a fixed path, as supplied by a CLI flag or
// a request body. An empty path reads as a dismissed dialog.
type PathPicker struct {
	Path     string
	Prompter Prompter
}

// PickSave returns a granted handle for the configured path. When Path names
// an existing directory, the suggested name is placed inside it.
func (p PathPicker) PickSave(_ context.Context, suggestedName string) (Handle, error) {
	if p.Path == "" {
		return nil, errors.NewCanceled("save as")
	}
	path := p.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := SanitizeFilename(suggestedName)
		if name == "" {
			return nil, errors.NewCanceled("save as")
		}
		path = filepath.Join(path, name)
	}
	return NewFile(path, PermissionGranted, p.Prompter)
}

// PickOpen returns a granted handle for the configured path.
func (p PathPicker) PickOpen(_ context.Context) (Handle, error) {
	if p.Path == "" {
		return nil, errors.NewCanceled("open")
	}
	if _, err := os.Stat(p.Path); err != nil {
		return nil, errors.NewNotFound("file", p.Path)
	}
	return NewFile(p.Path, PermissionGranted, p.Prompter)
}

// NoPicker is used where no dialog can be shown (headless MCP, web shell).
type NoPicker struct {
	Reason string
}

func (n NoPicker) PickSave(context.Context, string) (Handle, error) {
	return nil, errors.NewPickerUnavailable(n.reason())
}

func (n NoPicker) PickOpen(context.Context) (Handle, error) {
	return nil, errors.NewPickerUnavailable(n.reason())
}

func (n NoPicker) reason() string {
	if n.Reason == "" {
		return "no interactive picker"
	}
	return n.Reason
}
