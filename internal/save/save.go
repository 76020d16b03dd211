// Package save implements the save protocol: save, save-as with a download
// fallback, save-all and autosave, on top of file handles.
package save

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/debounce"
	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/settings"
)

// Status is the result class of a save.
type Status string

const (
	StatusSaved           Status = "saved"
	StatusCanceled        Status = "canceled"
	StatusNeedsPermission Status = "needs-permission"
	StatusDownloaded      Status = "downloaded"
	StatusSkipped         Status = "skipped"
	StatusFailed          Status = "failed"
)

// Outcome reports one save attempt.
type Outcome struct {
	Status     Status `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message"`
}

// OK reports whether the document content reached durable storage.
func (o Outcome) OK() bool {
	return o.Status == StatusSaved || o.Status == StatusDownloaded
}

// Documents is the part of the session the coordinator drives.
type Documents interface {
	Get(id string) (*document.Document, error)
	Documents() []*document.Document
	Active() *document.Document
	Rename(id, name string) (*document.Document, error)
	PersistSoon()
}

// Preferences supplies the autosave and trim settings.
type Preferences interface {
	Values() settings.Values
}

// Options configures a Coordinator.
type Options struct {
	Documents     Documents
	Preferences   Preferences
	Picker        filehandle.Picker
	Downloader    filehandle.Downloader
	AutosaveDelay time.Duration
	Logger        logrus.FieldLogger
}

// Coordinator runs saves. One save runs at a time per session: user saves
// wait for the in-flight save, autosave gives up instead.
type Coordinator struct {
	docs       Documents
	prefs      Preferences
	picker     filehandle.Picker
	downloader filehandle.Downloader
	log        logrus.FieldLogger

	inFlight sync.Mutex
	autosave *debounce.Debouncer

	pendingMu sync.Mutex
	pendingID string
}

// New returns a coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		docs:       opts.Documents,
		prefs:      opts.Preferences,
		picker:     opts.Picker,
		downloader: opts.Downloader,
		log:        opts.Logger,
	}
	if c.picker == nil {
		c.picker = filehandle.NoPicker{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.autosave = debounce.New(opts.AutosaveDelay, func() {
		out := c.AutosaveNow(context.Background())
		c.log.WithFields(logrus.Fields{"op": "autosave", "status": out.Status, "doc_id": out.DocumentID}).Debug(out.Message)
	})
	return c
}

// SetPicker replaces the destination picker.
func (c *Coordinator) SetPicker(p filehandle.Picker) {
	c.inFlight.Lock()
	c.picker = p
	c.inFlight.Unlock()
}

// Save writes id to its bound file, prompting for permission if needed. An
// unbound document goes through SaveAs. A refused or failed write never
// falls through to SaveAs.
func (c *Coordinator) Save(ctx context.Context, id string) Outcome {
	d, err := c.docs.Get(id)
	if err != nil {
		return failed(id, "", err)
	}
	c.inFlight.Lock()
	defer c.inFlight.Unlock()
	return c.saveLocked(ctx, d)
}

func (c *Coordinator) saveLocked(ctx context.Context, d *document.Document) Outcome {
	h := d.Handle()
	if h == nil {
		return c.saveAsLocked(ctx, d, c.picker)
	}

	snap := d.Snapshot()
	if err := filehandle.Write(ctx, h, c.transform(snap.Content), filehandle.PolicyPrompt); err != nil {
		return c.writeFailed(snap, err)
	}
	return c.written(d, snap, "")
}

// SaveAs asks the picker for a destination, binds the document to it and
// writes. A dismissed picker changes nothing. An unavailable picker falls
// back to a download; declining to name the download is a cancel and the
// document stays dirty.
func (c *Coordinator) SaveAs(ctx context.Context, id string) Outcome {
	return c.SaveAsWith(ctx, id, nil)
}

// SaveAsWith runs SaveAs with picker, or the configured picker when nil.
func (c *Coordinator) SaveAsWith(ctx context.Context, id string, picker filehandle.Picker) Outcome {
	d, err := c.docs.Get(id)
	if err != nil {
		return failed(id, "", err)
	}
	c.inFlight.Lock()
	defer c.inFlight.Unlock()
	if picker == nil {
		picker = c.picker
	}
	return c.saveAsLocked(ctx, d, picker)
}

func (c *Coordinator) saveAsLocked(ctx context.Context, d *document.Document, picker filehandle.Picker) Outcome {
	snap := d.Snapshot()
	log := c.log.WithFields(logrus.Fields{"op": "save_as", "doc_id": snap.ID})

	h, err := picker.PickSave(ctx, snap.Name)
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return canceled(snap)
		}
		log.WithError(err).Info("picker unavailable, falling back to download")
		return c.downloadLocked(ctx, d, snap)
	}

	// The pick is the binding; a failed write below leaves it bound and dirty.
	d.SetHandle(h)
	if h.Name() != snap.Name {
		if _, err := c.docs.Rename(snap.ID, h.Name()); err != nil {
			log.WithError(err).Warn("failed to rename document after pick")
		}
	}
	c.docs.PersistSoon()

	if err := filehandle.Write(ctx, h, c.transform(snap.Content), filehandle.PolicyPrompt); err != nil {
		return c.writeFailed(snap, err)
	}
	snap.Name = d.Name()
	return c.written(d, snap, "")
}

func (c *Coordinator) downloadLocked(ctx context.Context, d *document.Document, snap document.Snapshot) Outcome {
	if c.downloader == nil {
		return failed(snap.ID, snap.Name, errors.NewPickerUnavailable("no download location configured"))
	}
	path, err := c.downloader.Download(ctx, snap.Name, c.transform(snap.Content))
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return canceled(snap)
		}
		c.log.WithError(err).WithField("doc_id", snap.ID).Error("download fallback failed")
		return failed(snap.ID, snap.Name, err)
	}
	out := c.written(d, snap, path)
	out.Status = StatusDownloaded
	out.Message = fmt.Sprintf("Downloaded %s to %s", snap.Name, path)
	return out
}

// SaveAll saves every dirty document in tab order. Documents are saved by
// reference; the active document never changes. One failure does not stop
// the rest.
func (c *Coordinator) SaveAll(ctx context.Context) []Outcome {
	c.inFlight.Lock()
	defer c.inFlight.Unlock()

	docs := c.docs.Documents()
	outcomes := make([]Outcome, 0, len(docs))
	for _, d := range docs {
		if !d.Dirty() {
			outcomes = append(outcomes, Outcome{
				Status:     StatusSkipped,
				DocumentID: d.ID(),
				Name:       d.Name(),
				Message:    d.Name() + " has no unsaved changes",
			})
			continue
		}
		outcomes = append(outcomes, c.saveLocked(ctx, d))
	}
	return outcomes
}

// EditOccurred schedules an autosave of document id. Only the active
// document autosaves, so an edit to any other document leaves the pending
// autosave untouched.
func (c *Coordinator) EditOccurred(id string) {
	if d := c.docs.Active(); d == nil || d.ID() != id {
		return
	}
	c.pendingMu.Lock()
	c.pendingID = id
	c.pendingMu.Unlock()
	c.autosave.Trigger()
}

// AutosaveNow runs the autosave check immediately. It only writes when
// autosave is on, the edited document is still active, bound and dirty, and
// no other save is in flight. It never prompts.
func (c *Coordinator) AutosaveNow(ctx context.Context) Outcome {
	c.pendingMu.Lock()
	id := c.pendingID
	c.pendingID = ""
	c.pendingMu.Unlock()

	skip := func(msg string) Outcome {
		return Outcome{Status: StatusSkipped, DocumentID: id, Message: msg}
	}

	if c.prefs == nil || !c.prefs.Values().Autosave {
		return skip("autosave is off")
	}
	d := c.docs.Active()
	if d == nil || d.ID() != id {
		return skip("edited document is no longer active")
	}
	h := d.Handle()
	if h == nil {
		return skip("document is not bound to a file")
	}
	if !d.Dirty() {
		return skip("no unsaved changes")
	}
	if !c.inFlight.TryLock() {
		return skip("a save is already in flight")
	}
	defer c.inFlight.Unlock()

	snap := d.Snapshot()
	if err := filehandle.Write(ctx, h, c.transform(snap.Content), filehandle.PolicyNoPrompt); err != nil {
		return c.writeFailed(snap, err)
	}
	return c.written(d, snap, "")
}

// Stop cancels any scheduled autosave.
func (c *Coordinator) Stop() {
	c.autosave.Stop()
}

// transform applies the write-time content rules. The buffer is untouched.
func (c *Coordinator) transform(content string) []byte {
	if c.prefs != nil && c.prefs.Values().TrimTrailing {
		content = document.TrimTrailingWhitespace(content)
	}
	return []byte(content)
}

// written clears dirty when the buffer still matches what was written.
func (c *Coordinator) written(d *document.Document, snap document.Snapshot, path string) Outcome {
	if !d.MarkClean(snap.Version) {
		c.log.WithField("doc_id", snap.ID).Debug("document edited during save, keeping it dirty")
	}
	c.docs.PersistSoon()
	return Outcome{
		Status:     StatusSaved,
		DocumentID: snap.ID,
		Name:       d.Name(),
		Path:       path,
		Message:    "Saved " + d.Name(),
	}
}

func (c *Coordinator) writeFailed(snap document.Snapshot, err error) Outcome {
	log := c.log.WithFields(logrus.Fields{"op": "save", "doc_id": snap.ID})
	switch errors.CodeOf(err) {
	case errors.ErrNeedsPermission:
		log.WithError(err).Info("write permission not granted")
		return Outcome{
			Status:     StatusNeedsPermission,
			DocumentID: snap.ID,
			Name:       snap.Name,
			Message:    fmt.Sprintf("Permission needed to write %s; save again to retry", snap.Name),
		}
	case errors.ErrCanceled:
		return canceled(snap)
	default:
		log.WithError(err).Error("save failed")
		return failed(snap.ID, snap.Name, err)
	}
}

func canceled(snap document.Snapshot) Outcome {
	return Outcome{Status: StatusCanceled, DocumentID: snap.ID, Name: snap.Name, Message: "Save canceled"}
}

func failed(id, name string, err error) Outcome {
	label := name
	if label == "" {
		label = id
	}
	return Outcome{
		Status:     StatusFailed,
		DocumentID: id,
		Name:       name,
		Message:    fmt.Sprintf("Failed to save %s: %v", label, err),
	}
}
