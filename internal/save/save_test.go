package save

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/logging"
	"github.com/hpungsan/quill/internal/session"
	"github.com/hpungsan/quill/internal/settings"
)

type prefs struct {
	mu sync.Mutex
	v  settings.Values
}

func (p *prefs) Values() settings.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v
}

func (p *prefs) set(fn func(v *settings.Values)) {
	p.mu.Lock()
	fn(&p.v)
	p.mu.Unlock()
}

type stubPicker struct {
	handle filehandle.Handle
	err    error
	calls  int
}

func (p *stubPicker) PickSave(context.Context, string) (filehandle.Handle, error) {
	p.calls++
	return p.handle, p.err
}

func (p *stubPicker) PickOpen(context.Context) (filehandle.Handle, error) {
	return p.handle, p.err
}

type env struct {
	m     *session.Manager
	c     *Coordinator
	prefs *prefs
	dl    string
}

func newEnv(t *testing.T, picker filehandle.Picker, prompt filehandle.NamePrompter) *env {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := session.New(session.Options{
		Store:        db.NewStore(database),
		PersistDelay: time.Hour,
		Logger:       logging.Discard(),
	})
	p := &prefs{v: settings.Values{}}
	dl := filepath.Join(t.TempDir(), "downloads")
	c := New(Options{
		Documents:     m,
		Preferences:   p,
		Picker:        picker,
		Downloader:    filehandle.DirDownloader{Dir: dl, Prompt: prompt},
		AutosaveDelay: time.Hour,
		Logger:        logging.Discard(),
	})
	return &env{m: m, c: c, prefs: p, dl: dl}
}

func (e *env) open(name, content string, h filehandle.Handle) *document.Document {
	d := e.m.CreateDocument(document.Options{Name: name, Content: content, Handle: h})
	e.m.Activate(d.ID())
	return d
}

func TestSave_BoundGranted(t *testing.T) {
	e := newEnv(t, nil, nil)
	h := filehandle.NewMemory("a.txt", "old", filehandle.PermissionGranted)
	d := e.open("a.txt", "old", h)
	d.Buffer().SetValue("new  \nline\t")
	e.prefs.set(func(v *settings.Values) { v.TrimTrailing = true })

	out := e.c.Save(context.Background(), d.ID())
	require.Equal(t, StatusSaved, out.Status, out.Message)
	require.False(t, d.Dirty())
	require.Equal(t, "new\nline", h.Content(), "trim applies to written bytes")
	require.Equal(t, "new  \nline\t", d.Content(), "trim never touches the buffer")
}

func TestSave_PermissionRefused(t *testing.T) {
	picker := &stubPicker{}
	e := newEnv(t, picker, nil)
	h := filehandle.NewMemory("a.txt", "old", filehandle.PermissionUnknown)
	d := e.open("a.txt", "old", h)
	d.Buffer().SetValue("new")

	out := e.c.Save(context.Background(), d.ID())
	require.Equal(t, StatusNeedsPermission, out.Status)
	require.True(t, d.Dirty())
	require.Equal(t, 1, h.Requests(), "interactive save may prompt")
	require.Equal(t, 0, picker.calls, "refusal must not fall through to save as")
	require.Equal(t, "old", h.Content())

	// Retry after granting
	h.SetGrantOnRequest(true)
	out = e.c.Save(context.Background(), d.ID())
	require.Equal(t, StatusSaved, out.Status)
	require.False(t, d.Dirty())
}

func TestSave_UnboundDelegatesToSaveAs(t *testing.T) {
	target := filehandle.NewMemory("picked.md", "", filehandle.PermissionGranted)
	picker := &stubPicker{handle: target}
	e := newEnv(t, picker, nil)
	d := e.open("scratch", "# title", nil)
	d.Buffer().SetValue("# title!")

	out := e.c.Save(context.Background(), d.ID())
	require.Equal(t, StatusSaved, out.Status, out.Message)
	require.Equal(t, 1, picker.calls)
	require.Equal(t, "# title!", target.Content())
	require.False(t, d.Dirty())
	require.Equal(t, target, d.Handle())
	require.Equal(t, "picked.md", d.Name())
	require.Equal(t, "markdown", d.Language())
}

func TestSaveAs_PickerCanceled(t *testing.T) {
	picker := &stubPicker{err: errors.NewCanceled("save as")}
	e := newEnv(t, picker, nil)
	d := e.open("scratch", "x", nil)
	d.Buffer().SetValue("y")

	out := e.c.SaveAs(context.Background(), d.ID())
	require.Equal(t, StatusCanceled, out.Status)
	require.True(t, d.Dirty())
	require.Nil(t, d.Handle())
	require.Equal(t, "scratch", d.Name())
	_, err := os.Stat(e.dl)
	require.True(t, os.IsNotExist(err), "cancel must not download")
}

func TestSaveAs_DownloadFallback(t *testing.T) {
	picker := &stubPicker{err: errors.NewPickerUnavailable("blocked")}
	e := newEnv(t, picker, nil)
	d := e.open("notes.md", "x", nil)
	d.Buffer().SetValue("body")

	out := e.c.SaveAs(context.Background(), d.ID())
	require.Equal(t, StatusDownloaded, out.Status, out.Message)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Equal(t, "body", string(data))
	require.Nil(t, d.Handle(), "a download does not bind the document")
}

func TestSaveAs_DownloadDeclined(t *testing.T) {
	picker := &stubPicker{err: errors.NewPickerUnavailable("unsupported")}
	decline := filehandle.NamePrompterFunc(func(context.Context, string) (string, error) { return "", nil })
	e := newEnv(t, picker, decline)
	d := e.open("notes.md", "x", nil)
	d.Buffer().SetValue("unsaved")

	out := e.c.SaveAs(context.Background(), d.ID())
	require.Equal(t, StatusCanceled, out.Status)
	require.True(t, d.Dirty())
	require.Equal(t, "unsaved", d.Content())
	_, err := os.Stat(e.dl)
	require.True(t, os.IsNotExist(err), "no artifact may be produced")
}

func TestSaveAs_WriteRefusedKeepsDirty(t *testing.T) {
	target := filehandle.NewMemory("t.txt", "", filehandle.PermissionDenied)
	e := newEnv(t, &stubPicker{handle: target}, nil)
	d := e.open("scratch", "x", nil)
	d.Buffer().SetValue("y")

	out := e.c.SaveAs(context.Background(), d.ID())
	require.Equal(t, StatusNeedsPermission, out.Status)
	require.True(t, d.Dirty())
	require.Equal(t, target, d.Handle(), "the pick binds even when the write is refused")
}

func TestSave_UnknownDocument(t *testing.T) {
	e := newEnv(t, nil, nil)
	out := e.c.Save(context.Background(), "missing")
	require.Equal(t, StatusFailed, out.Status)
}

func TestSaveAll_ByReferenceAndIsolated(t *testing.T) {
	e := newEnv(t, &stubPicker{err: errors.NewCanceled("save as")}, nil)
	good := filehandle.NewMemory("a.txt", "", filehandle.PermissionGranted)
	refused := filehandle.NewMemory("b.txt", "", filehandle.PermissionUnknown)

	a := e.open("a.txt", "", good)
	b := e.open("b.txt", "", refused)
	c := e.open("c.txt", "", good)
	unbound := e.open("d.txt", "", nil)
	clean := e.open("e.txt", "", nil)
	a.Buffer().SetValue("A")
	b.Buffer().SetValue("B")
	c.Buffer().SetValue("C")
	unbound.Buffer().SetValue("D")
	e.m.Activate(b.ID())

	var activations int
	e.m.Subscribe(func(ev session.Event) {
		if ev.Kind == session.EventActivated {
			activations++
		}
	})

	outs := e.c.SaveAll(context.Background())
	require.Len(t, outs, 5)
	require.Equal(t, StatusSaved, outs[0].Status)
	require.Equal(t, StatusNeedsPermission, outs[1].Status)
	require.Equal(t, StatusSaved, outs[2].Status, "earlier failure must not stop later saves")
	require.Equal(t, StatusCanceled, outs[3].Status)
	require.Equal(t, StatusSkipped, outs[4].Status)

	require.False(t, a.Dirty())
	require.True(t, b.Dirty())
	require.False(t, c.Dirty())
	require.True(t, unbound.Dirty())
	require.False(t, clean.Dirty())

	require.Equal(t, b.ID(), e.m.Active().ID())
	require.Zero(t, activations, "save all must not move the active pointer")
}

func TestAutosave_Guards(t *testing.T) {
	e := newEnv(t, nil, nil)
	h := filehandle.NewMemory("a.txt", "", filehandle.PermissionGranted)
	d := e.open("a.txt", "", h)
	other := e.open("b.txt", "", nil)
	e.m.Activate(d.ID())
	ctx := context.Background()

	d.Buffer().SetValue("edit")

	// Off
	e.c.EditOccurred(d.ID())
	require.Equal(t, StatusSkipped, e.c.AutosaveNow(ctx).Status)

	e.prefs.set(func(v *settings.Values) { v.Autosave = true })

	// No longer active
	e.c.EditOccurred(d.ID())
	e.m.Activate(other.ID())
	require.Equal(t, StatusSkipped, e.c.AutosaveNow(ctx).Status)
	e.m.Activate(d.ID())

	// Unbound
	other.Buffer().SetValue("x")
	e.m.Activate(other.ID())
	e.c.EditOccurred(other.ID())
	require.Equal(t, StatusSkipped, e.c.AutosaveNow(ctx).Status)
	e.m.Activate(d.ID())

	// In flight
	e.c.EditOccurred(d.ID())
	e.c.inFlight.Lock()
	require.Equal(t, StatusSkipped, e.c.AutosaveNow(ctx).Status)
	e.c.inFlight.Unlock()
	require.True(t, d.Dirty())

	// All guards pass
	e.c.EditOccurred(d.ID())
	out := e.c.AutosaveNow(ctx)
	require.Equal(t, StatusSaved, out.Status, out.Message)
	require.False(t, d.Dirty())
	require.Equal(t, "edit", h.Content())

	// Clean document is skipped
	e.c.EditOccurred(d.ID())
	require.Equal(t, StatusSkipped, e.c.AutosaveNow(ctx).Status)
}

func TestAutosave_BackgroundEditKeepsPending(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.prefs.set(func(v *settings.Values) { v.Autosave = true })
	h := filehandle.NewMemory("a.txt", "", filehandle.PermissionGranted)
	other := e.open("b.txt", "", nil)
	d := e.open("a.txt", "", h)
	ctx := context.Background()

	d.Buffer().SetValue("active edit")
	e.c.EditOccurred(d.ID())
	other.Buffer().SetValue("background edit")
	e.c.EditOccurred(other.ID())

	out := e.c.AutosaveNow(ctx)
	require.Equal(t, StatusSaved, out.Status, out.Message)
	require.Equal(t, d.ID(), out.DocumentID)
	require.Equal(t, "active edit", h.Content())
	require.True(t, other.Dirty())
}

func TestAutosave_NeverPrompts(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.prefs.set(func(v *settings.Values) { v.Autosave = true })

	for _, perm := range []filehandle.Permission{filehandle.PermissionUnknown, filehandle.PermissionDenied} {
		h := filehandle.NewMemory("a.txt", "disk", perm)
		h.SetGrantOnRequest(true)
		d := e.open("a.txt", "disk", h)
		d.Buffer().SetValue("edit")

		e.c.EditOccurred(d.ID())
		out := e.c.AutosaveNow(context.Background())
		require.Equal(t, StatusNeedsPermission, out.Status)
		require.Zero(t, h.Requests(), "autosave must not prompt")
		require.Equal(t, "disk", h.Content())
		require.True(t, d.Dirty())
	}
}

func TestAutosave_Debounced(t *testing.T) {
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := session.New(session.Options{Store: db.NewStore(database), PersistDelay: time.Hour, Logger: logging.Discard()})
	p := &prefs{v: settings.Values{Autosave: true}}
	c := New(Options{Documents: m, Preferences: p, AutosaveDelay: 20 * time.Millisecond, Logger: logging.Discard()})
	t.Cleanup(c.Stop)
	m.Subscribe(func(ev session.Event) {
		if ev.Kind == session.EventChanged {
			c.EditOccurred(ev.Document.ID())
		}
	})

	h := filehandle.NewMemory("a.txt", "", filehandle.PermissionGranted)
	d := m.CreateDocument(document.Options{Name: "a.txt", Handle: h})
	m.Activate(d.ID())
	for _, s := range []string{"a", "ab", "abc"} {
		d.Buffer().SetValue(s)
	}

	require.Eventually(t, func() bool { return !d.Dirty() }, time.Second, 5*time.Millisecond)
	require.Equal(t, "abc", h.Content())
	require.Equal(t, 1, h.Commits())
}

func TestSave_EditDuringSaveKeepsDirty(t *testing.T) {
	e := newEnv(t, nil, nil)
	h := &editingHandle{Memory: filehandle.NewMemory("a.txt", "", filehandle.PermissionGranted)}
	d := e.open("a.txt", "", h)
	h.doc = d
	d.Buffer().SetValue("first")

	out := e.c.Save(context.Background(), d.ID())
	require.Equal(t, StatusSaved, out.Status)
	require.Equal(t, "first", h.Content())
	require.True(t, d.Dirty(), "an edit that raced the write keeps the document dirty")
}

// editingHandle edits its document while the write is open.
type editingHandle struct {
	*filehandle.Memory
	doc *document.Document
}

func (h *editingHandle) CreateWritable(ctx context.Context) (filehandle.Writable, error) {
	w, err := h.Memory.CreateWritable(ctx)
	if err == nil && h.doc != nil {
		h.doc.Buffer().SetValue("second")
	}
	return w, err
}
