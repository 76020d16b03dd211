package shell

import (
	"context"
	"fmt"

	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/save"
)

// Save saves id, or the active document when id is empty.
func (s *Shell) Save(ctx context.Context, id string) save.Outcome {
	d, err := s.resolve(id)
	if err != nil {
		_ = s.report("save", err, "")
		return save.Outcome{Status: save.StatusFailed, DocumentID: id, Message: StatusOf("save", err).Message}
	}
	return s.reportOutcome("save", s.saver.Save(ctx, d.ID()))
}

// SaveAs saves id to path. An empty path uses the configured picker, which
// falls back to a download when no dialog is available.
func (s *Shell) SaveAs(ctx context.Context, id, path string) save.Outcome {
	d, err := s.resolve(id)
	if err != nil {
		_ = s.report("save as", err, "")
		return save.Outcome{Status: save.StatusFailed, DocumentID: id, Message: StatusOf("save as", err).Message}
	}
	if path == "" {
		return s.reportOutcome("save as", s.saver.SaveAs(ctx, d.ID()))
	}
	picker := filehandle.PathPicker{Path: path, Prompter: s.prompter}
	return s.reportOutcome("save as", s.saver.SaveAsWith(ctx, d.ID(), picker))
}

// WithFilename returns a copy of ctx in which a download fallback uses name
// without asking. An empty name declines the download, which cancels the
// save and leaves the document dirty.
func WithFilename(ctx context.Context, name string) context.Context {
	return filehandle.WithNamePrompter(ctx, filehandle.FixedName(name))
}

// SaveAll saves every dirty document. The status line summarizes the run.
func (s *Shell) SaveAll(ctx context.Context) []save.Outcome {
	outs := s.saver.SaveAll(ctx)

	saved, failed := 0, 0
	var firstFailure save.Outcome
	for _, out := range outs {
		switch {
		case out.OK():
			saved++
		case out.Status != save.StatusSkipped:
			if failed == 0 {
				firstFailure = out
			}
			failed++
		}
	}
	if failed > 0 {
		s.reportOutcome("save all", firstFailure)
		return outs
	}
	s.setStatus(Status{Op: "save all", OK: true, Message: pluralize(saved, "document") + " saved"})
	return outs
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
