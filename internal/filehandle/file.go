package filehandle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hpungsan/quill/internal/errors"
)

// KindFile is the serialization kind of File handles.
const KindFile = "file"

// Prompter asks the user whether a file may be written.
type Prompter interface {
	ConfirmWrite(ctx context.Context, path string) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, path string) (bool, error)

// ConfirmWrite calls f.
func (f PrompterFunc) ConfirmWrite(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}

// File is a handle to a file on the local filesystem.
type File struct {
	path     string
	prompter Prompter

	mu   sync.Mutex
	perm Permission
}

// NewFile returns a handle for path with the given initial permission. Files
// chosen through a picker start granted; restored files start unknown.
func NewFile(path string, perm Permission, prompter Prompter) (*File, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	if containsTraversal(path) {
		return nil, errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	return &File{path: abs, perm: perm, prompter: prompter}, nil
}

// Path returns the absolute path of the file.
func (f *File) Path() string { return f.path }

func (f *File) Name() string { return filepath.Base(f.path) }

func (f *File) Kind() string { return KindFile }

func (f *File) Read(_ context.Context) (string, error) {
	file, err := openFileNoFollowRead(f.path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	buf := make([]byte, info.Size())
	if _, err := file.ReadAt(buf, 0); err != nil && info.Size() > 0 {
		return "", errors.NewInternal(err)
	}
	return string(buf), nil
}

func (f *File) QueryPermission(_ context.Context) Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perm
}

func (f *File) RequestPermission(ctx context.Context) (Permission, error) {
	f.mu.Lock()
	if f.perm == PermissionGranted {
		f.mu.Unlock()
		return PermissionGranted, nil
	}
	prompter := f.prompter
	f.mu.Unlock()

	if prompter == nil {
		f.setPermission(PermissionDenied)
		return PermissionDenied, nil
	}

	ok, err := prompter.ConfirmWrite(ctx, f.path)
	if err != nil {
		return f.QueryPermission(ctx), err
	}
	if !ok {
		f.setPermission(PermissionDenied)
		return PermissionDenied, nil
	}
	f.setPermission(PermissionGranted)
	return PermissionGranted, nil
}

func (f *File) setPermission(p Permission) {
	f.mu.Lock()
	f.perm = p
	f.mu.Unlock()
}

// CreateWritable opens a temp file next to the destination. Close renames it
// into place so a failed save never truncates the original.
func (f *File) CreateWritable(_ context.Context) (Writable, error) {
	if f.QueryPermission(context.Background()) != PermissionGranted {
		return nil, errors.NewNeedsPermission(f.Name(), nil)
	}
	if info, err := os.Lstat(f.path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("cannot write to symlink")
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := f.path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}
	return &fileWritable{file: file, tempPath: tempPath, dest: f.path}, nil
}

// MarshalHandle persists the path only; permission is re-queried after restore.
func (f *File) MarshalHandle() ([]byte, error) {
	return json.Marshal(struct {
		Path string `json:"path"`
	}{Path: f.path})
}

type fileWritable struct {
	file     *os.File
	tempPath string
	dest     string
	done     bool
}

func (w *fileWritable) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	return w.file.Write(p)
}

func (w *fileWritable) Close() error {
	if w.done {
		return os.ErrClosed
	}
	w.done = true

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tempPath)
		return err
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := w.file.Close(); err != nil {
		os.Remove(w.tempPath)
		return err
	}
	if err := os.Rename(w.tempPath, w.dest); err != nil {
		os.Remove(w.tempPath)
		return err
	}
	return nil
}

func (w *fileWritable) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.file.Close()
	return os.Remove(w.tempPath)
}

// FileResolver restores File handles. Restored handles start with unknown
// permission.
type FileResolver struct {
	Prompter Prompter
}

// Resolve implements Resolver.
func (r FileResolver) Resolve(kind string, data json.RawMessage) (Handle, error) {
	if kind != KindFile {
		return nil, errors.NewUnserializable(kind)
	}
	var payload struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid file handle: %v", err))
	}
	if payload.Path == "" {
		return nil, errors.NewInvalidRequest("file handle has no path")
	}
	return NewFile(payload.Path, PermissionUnknown, r.Prompter)
}
