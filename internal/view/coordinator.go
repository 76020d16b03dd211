package view

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/document"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/session"
	"github.com/hpungsan/quill/internal/settings"
	"github.com/hpungsan/quill/internal/widget"
)

// jitterPx is the distance under which a forced compare scroll is skipped.
const jitterPx = 1.0

// Session is the part of the session manager the coordinator follows.
type Session interface {
	Active() *document.Document
	Editor() widget.Editor
	Subscribe(fn func(session.Event)) func()
}

// Preferences persists the presentation settings.
type Preferences interface {
	Values() settings.Values
	SetValue(ctx context.Context, key string, value any) error
}

// Options configures a Coordinator.
type Options struct {
	Session     Session
	Factory     widget.Factory
	Preferences Preferences
	Logger      logrus.FieldLogger
}

// CompareInfo describes the compare buffer.
type CompareInfo struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Content  string `json:"content"`
	Lines    int    `json:"lines"`
	Empty    bool   `json:"empty"`
}

// compareRequest is one queued compare mutation.
type compareRequest struct {
	content string
	name    string
	handle  filehandle.Handle
}

// Coordinator is the view context of one session.
type Coordinator struct {
	session Session
	prefs   Preferences
	log     logrus.FieldLogger

	primary       widget.Editor
	compareEditor widget.Editor
	diff          widget.DiffEditor
	compareModel  widget.Model

	mu     sync.Mutex
	state  State
	delta  int
	unsubs []func()

	// Compare mutations; guarded by cmu.
	cmu           sync.Mutex
	compareName   string
	compareHandle filehandle.Handle
	mutating      bool
	queued        *compareRequest
	nextLID       int
	listeners     map[int]func(CompareInfo)
}

// New returns a coordinator following opts.Session. Initial layout, lock
// and policy come from the preferences.
func New(opts Options) *Coordinator {
	factory := opts.Factory
	if factory == nil {
		factory = widget.Headless{}
	}
	c := &Coordinator{
		session:       opts.Session,
		prefs:         opts.Preferences,
		log:           opts.Logger,
		primary:       opts.Session.Editor(),
		compareEditor: factory.NewEditor(),
		diff:          factory.NewDiffEditor(),
		compareModel:  factory.NewModel("", document.PlainText),
		listeners:     make(map[int]func(CompareInfo)),
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.compareEditor.SetModel(c.compareModel)
	c.compareEditor.SetReadOnly(true)

	if c.prefs != nil {
		v := c.prefs.Values()
		c.state.Layout = ParseLayout(v.Layout)
		if c.state.Layout == LayoutSplit {
			c.state.Mode = ModeSplit
			c.state.Lock = v.ScrollLock
		}
		if p, err := ParseLockPolicy(v.ScrollLockPolicy); err == nil {
			c.state.Policy = p
		}
	}
	if c.state.Lock {
		c.delta = c.currentDelta()
	}

	c.unsubs = append(c.unsubs,
		opts.Session.Subscribe(c.onSessionEvent),
		c.primary.OnDidScroll(c.onPrimaryScroll),
	)
	return c
}

// Close detaches the coordinator from the session.
func (c *Coordinator) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// State returns the presentation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsDiffMode reports whether the diff view is showing.
func (c *Coordinator) IsDiffMode() bool { return c.State().Mode == ModeDiff }

// Delta is the captured offset-lock line delta.
func (c *Coordinator) Delta() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delta
}

// PrimaryEditor is the session's editor view.
func (c *Coordinator) PrimaryEditor() widget.Editor { return c.primary }

// CompareEditor is the read-only compare pane of split mode.
func (c *Coordinator) CompareEditor() widget.Editor { return c.compareEditor }

// DiffEditor is the diff view.
func (c *Coordinator) DiffEditor() widget.DiffEditor { return c.diff }

// ActiveEditor is the pane the user edits: the diff's original side in diff
// mode, otherwise the primary editor.
func (c *Coordinator) ActiveEditor() widget.Editor {
	if c.IsDiffMode() {
		return c.diff.OriginalEditor()
	}
	return c.primary
}

// SetMode switches the presentation mode.
func (c *Coordinator) SetMode(m Mode) error {
	return c.apply(Event{Kind: EventSetMode, Mode: m})
}

// ToggleLayout flips between single and split. Refused in diff mode.
func (c *Coordinator) ToggleLayout() error {
	return c.apply(Event{Kind: EventToggleLayout})
}

// SetScrollLock engages or releases scroll lock. Engaging captures a fresh
// offset delta from the panes' current positions.
func (c *Coordinator) SetScrollLock(on bool) error {
	return c.apply(Event{Kind: EventSetLock, Lock: on})
}

// SetLockPolicy changes the lock policy. If lock is engaged the delta is
// recaptured.
func (c *Coordinator) SetLockPolicy(p LockPolicy) error {
	return c.apply(Event{Kind: EventSetPolicy, Policy: p})
}

func (c *Coordinator) apply(ev Event) error {
	c.mu.Lock()
	prev := c.state
	next, err := Transition(prev, ev)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	engaged := next.Lock && (!prev.Lock || prev.Policy != next.Policy)
	c.mu.Unlock()

	if next.Mode == ModeDiff && prev.Mode != ModeDiff {
		c.bindDiff(c.session.Active())
	}
	if prev.Mode == ModeDiff && next.Mode != ModeDiff {
		// Presentation only: unbind so no closed buffer stays referenced.
		c.diff.SetModels(nil, nil)
	}
	if engaged {
		delta := c.currentDelta()
		c.mu.Lock()
		c.delta = delta
		c.mu.Unlock()
		c.followPrimary()
	}

	c.persist(prev, next)
	return nil
}

func (c *Coordinator) persist(prev, next State) {
	if c.prefs == nil {
		return
	}
	ctx := context.Background()
	write := func(key string, value any) {
		if err := c.prefs.SetValue(ctx, key, value); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("failed to persist view setting")
		}
	}
	if prev.Layout != next.Layout {
		write(settings.KeyLayout, next.Layout.String())
	}
	if prev.Lock != next.Lock {
		write(settings.KeyScrollLock, next.Lock)
	}
	if prev.Policy != next.Policy {
		write(settings.KeyScrollLockPolicy, next.Policy.String())
	}
}

func (c *Coordinator) onSessionEvent(ev session.Event) {
	if ev.Kind != session.EventActivated {
		return
	}
	if c.IsDiffMode() {
		c.bindDiff(ev.Document)
	}
}

// bindDiff binds (active buffer, compare buffer). Neither buffer changes.
func (c *Coordinator) bindDiff(active *document.Document) {
	var original widget.Model
	if active != nil {
		original = active.Buffer()
	}
	c.diff.SetModels(original, c.compareModel)
}

// DiffSummary returns the changed regions between the active document and
// the compare buffer.
func (c *Coordinator) DiffSummary() []widget.Hunk {
	if c.IsDiffMode() {
		return c.diff.Hunks()
	}
	active := ""
	if d := c.session.Active(); d != nil {
		active = d.Content()
	}
	return widget.LineHunks(active, c.compareModel.Value())
}

// topLine is the 1-based line at the top of e.
func topLine(e widget.Editor) int {
	lh := e.LineHeight()
	if lh <= 0 {
		return 1
	}
	return int(math.Floor(e.ScrollTop()/lh)) + 1
}

func (c *Coordinator) currentDelta() int {
	return topLine(c.compareEditor) - topLine(c.primary)
}

func (c *Coordinator) onPrimaryScroll(float64) {
	c.followPrimary()
}

// followPrimary forces the compare pane to track the primary pane when lock
// is engaged in split mode.
func (c *Coordinator) followPrimary() {
	c.mu.Lock()
	s, delta := c.state, c.delta
	c.mu.Unlock()
	if s.Mode != ModeSplit || !s.Lock {
		return
	}

	var target float64
	switch s.Policy {
	case LockOffset:
		line := topLine(c.primary) + delta
		if n := c.compareModel.LineCount(); line > n {
			line = n
		}
		if line < 1 {
			line = 1
		}
		target = float64(line-1) * c.compareEditor.LineHeight()
	default:
		// Same fraction of a line in both panes, whatever their line heights.
		plh := c.primary.LineHeight()
		if plh <= 0 {
			return
		}
		target = c.primary.ScrollTop() / plh * c.compareEditor.LineHeight()
	}

	if math.Abs(target-c.compareEditor.ScrollTop()) < jitterPx {
		return
	}
	c.compareEditor.SetScrollTop(target)
}
