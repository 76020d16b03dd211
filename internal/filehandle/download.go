package filehandle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/quill/internal/errors"
)

// maxDownloadDedupe bounds the "name (n).ext" search.
const maxDownloadDedupe = 1000

// Downloader writes buffer content to a user-visible location when no picker
// is available.
type Downloader interface {
	// Download asks for a file name, defaulting to suggested, and writes
	// content. It returns the written path. A declined or empty name is an
	// ErrCanceled-coded error and nothing is written.
	Download(ctx context.Context, suggested string, content []byte) (string, error)
}

// NamePrompter asks the user for a download file name.
type NamePrompter interface {
	PromptFilename(ctx context.Context, suggested string) (string, error)
}

// NamePrompterFunc adapts a function to NamePrompter.
type NamePrompterFunc func(ctx context.Context, suggested string) (string, error)

// PromptFilename calls f.
func (f NamePrompterFunc) PromptFilename(ctx context.Context, suggested string) (string, error) {
	return f(ctx, suggested)
}

// AcceptSuggested is a NamePrompter that always takes the suggested name.
var AcceptSuggested = NamePrompterFunc(func(_ context.Context, suggested string) (string, error) {
	return suggested, nil
})

// FixedName is a NamePrompter that always answers with the same name. An
// empty FixedName declines every download.
type FixedName string

// PromptFilename implements NamePrompter.
func (n FixedName) PromptFilename(context.Context, string) (string, error) {
	return string(n), nil
}

type namePrompterKey struct{}

// WithNamePrompter returns a copy of ctx in which downloads ask p for the
// file name instead of the downloader's own prompter.
func WithNamePrompter(ctx context.Context, p NamePrompter) context.Context {
	return context.WithValue(ctx, namePrompterKey{}, p)
}

func namePrompterFrom(ctx context.Context) NamePrompter {
	p, _ := ctx.Value(namePrompterKey{}).(NamePrompter)
	return p
}

// DirDownloader saves downloads into a single directory. Existing files are
// never overwritten; a colliding name gets a " (n)" suffix.
type DirDownloader struct {
	Dir    string
	Prompt NamePrompter
}

// Download implements Downloader.
func (d DirDownloader) Download(ctx context.Context, suggested string, content []byte) (string, error) {
	prompt := namePrompterFrom(ctx)
	if prompt == nil {
		prompt = d.Prompt
	}
	if prompt == nil {
		prompt = AcceptSuggested
	}
	raw, err := prompt.PromptFilename(ctx, suggested)
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return "", err
		}
		return "", errors.NewInternal(err)
	}
	name := SanitizeFilename(raw)
	if name == "" {
		return "", errors.NewCanceled("download")
	}
	if err := ctx.Err(); err != nil {
		return "", errors.NewCanceled("download")
	}

	if err := os.MkdirAll(d.Dir, 0700); err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to create downloads directory: %w", err))
	}

	dest, err := d.claim(name)
	if err != nil {
		return "", err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		os.Remove(dest)
		return "", errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := dest + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		os.Remove(dest)
		return "", errors.NewInternal(fmt.Errorf("failed to create download file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
			os.Remove(dest)
		}
	}()

	if _, err := file.Write(content); err != nil {
		return "", errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return "", errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		file = nil
		return "", errors.NewInternal(err)
	}
	file = nil

	// dest is our own empty placeholder, so the rename replaces nothing else.
	if err := os.Rename(tempPath, dest); err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to finalize download: %w", err))
	}
	success = true
	return dest, nil
}

// claim reserves a free name in d.Dir by creating an empty placeholder with
// O_EXCL. A name taken by a concurrent writer moves on to the next suffix.
func (d DirDownloader) claim(name string) (string, error) {
	for n := 1; n <= maxDownloadDedupe; n++ {
		candidate := filepath.Join(d.Dir, name)
		if n > 1 {
			candidate = filepath.Join(d.Dir, dedupeName(name, n))
		}
		f, err := openFileNoFollow(candidate, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
		if err == nil {
			f.Close()
			return candidate, nil
		}
		if !os.IsExist(err) && !errors.Is(err, errors.ErrInvalidRequest) {
			return "", errors.NewInternal(fmt.Errorf("failed to reserve download name: %w", err))
		}
	}
	return "", errors.NewInternal(fmt.Errorf("too many downloads named %s", name))
}
