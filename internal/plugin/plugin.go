// Package plugin hosts user plugins: stored Lua scripts that run in a
// sandboxed state of their own and reach the editor only through Host.
//
// A plugin is loaded by running its code once. While loading (or later, from
// inside an action) it may call editor.register_action to add entries to the
// action registry. Each load and each action invocation is bounded by the
// configured timeout; a failing plugin is reported and skipped without
// affecting the others.
package plugin

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/errors"
)

// DefaultTimeout bounds loads and action runs when Options.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// Store persists plugin records and the settings that hold plugin storage.
type Store interface {
	PutPlugin(ctx context.Context, p *db.PluginRecord) error
	GetPlugin(ctx context.Context, id string) (*db.PluginRecord, error)
	ListPlugins(ctx context.Context) ([]db.PluginRecord, error)
	DeletePlugin(ctx context.Context, id string) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Host is the editor capability object handed to plugins.
type Host interface {
	ActiveText() (string, error)
	SetActiveText(text string) error
	Language() string
	CompareText() string
	IsDiffMode() bool
	SetCompare(text, name string)
	ClearCompare()
	SetMode(mode string) error
	Selection() string
	ReplaceSelection(text string) error
}

// Action is a registered plugin action.
type Action struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	PluginID    string `json:"plugin_id"`
	PluginName  string `json:"plugin_name"`
}

// LoadResult reports the outcome of loading one plugin.
type LoadResult struct {
	Plugin db.PluginRecord
	Err    error
}

// Options configures a Manager.
type Options struct {
	Store   Store
	Host    Host
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

type action struct {
	Action
	rt *runtime
	fn *lua.LFunction
}

// Manager owns plugin records, their interpreters and the action registry.
type Manager struct {
	store   Store
	host    Host
	timeout time.Duration
	log     logrus.FieldLogger

	mu       sync.Mutex
	runtimes map[string]*runtime
	actions  map[string]*action
	order    []string
}

// New returns a manager with nothing loaded. Call LoadAll to start the
// enabled plugins.
func New(opts Options) *Manager {
	m := &Manager{
		store:    opts.Store,
		host:     opts.Host,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		runtimes: make(map[string]*runtime),
		actions:  make(map[string]*action),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	return m
}

// NewID generates a plugin id.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Add stores a new enabled plugin and loads it. When loading fails the
// record stays stored and the PLUGIN_FAILED error is returned with it.
func (m *Manager) Add(ctx context.Context, name, code string) (*db.PluginRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("plugin name is required")
	}
	rec := &db.PluginRecord{
		ID:      NewID(),
		Name:    name,
		Code:    code,
		Enabled: true,
		AddedAt: time.Now().Unix(),
	}
	if err := m.store.PutPlugin(ctx, rec); err != nil {
		return nil, err
	}
	return rec, m.load(ctx, *rec)
}

// List returns every stored plugin in the order added.
func (m *Manager) List(ctx context.Context) ([]db.PluginRecord, error) {
	return m.store.ListPlugins(ctx)
}

// Enable marks a plugin enabled and loads it.
func (m *Manager) Enable(ctx context.Context, id string) error {
	rec, err := m.store.GetPlugin(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Enabled {
		rec.Enabled = true
		if err := m.store.PutPlugin(ctx, rec); err != nil {
			return err
		}
	}
	return m.load(ctx, *rec)
}

// Disable marks a plugin disabled and unloads it with its actions.
func (m *Manager) Disable(ctx context.Context, id string) error {
	rec, err := m.store.GetPlugin(ctx, id)
	if err != nil {
		return err
	}
	if rec.Enabled {
		rec.Enabled = false
		if err := m.store.PutPlugin(ctx, rec); err != nil {
			return err
		}
	}
	m.unload(id)
	return nil
}

// Remove unloads a plugin and deletes it along with its storage.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.store.DeletePlugin(ctx, id); err != nil {
		return err
	}
	m.unload(id)
	return nil
}

// LoadAll loads every enabled plugin. A plugin that fails is logged and
// reported in the results; the others load regardless.
func (m *Manager) LoadAll(ctx context.Context) []LoadResult {
	recs, err := m.store.ListPlugins(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to list plugins")
		return nil
	}

	var results []LoadResult
	for _, rec := range recs {
		if !rec.Enabled {
			continue
		}
		err := m.load(ctx, rec)
		if err != nil {
			m.log.WithError(err).WithField("plugin", rec.Name).Warn("plugin failed to load")
		}
		results = append(results, LoadResult{Plugin: rec, Err: err})
	}
	return results
}

// Loaded reports whether the plugin is running.
func (m *Manager) Loaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runtimes[id]
	return ok
}

// Actions lists registered actions in registration order.
func (m *Manager) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Action, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.actions[id].Action)
	}
	return out
}

// RunAction invokes a registered action.
func (m *Manager) RunAction(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.actions[id]
	m.mu.Unlock()
	if !ok {
		return errors.NewNotFound("action", id)
	}

	err := a.rt.st.run(ctx, m.timeout, func(L *lua.LState) error {
		return L.CallByParam(lua.P{Fn: a.fn, NRet: 0, Protect: true})
	})
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"plugin": a.PluginName,
			"action": id,
		}).Warn("plugin action failed")
		return errors.NewPluginFailed(a.PluginName, err)
	}
	return nil
}

// Close unloads every plugin.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.unload(id)
	}
}

// load (re)starts rec in a fresh interpreter. On failure the interpreter is
// discarded along with any actions it registered.
func (m *Manager) load(ctx context.Context, rec db.PluginRecord) error {
	m.unload(rec.ID)

	rt := newRuntime(m, rec)
	err := rt.st.run(ctx, m.timeout, func(L *lua.LState) error {
		return L.DoString(rec.Code)
	})
	if err != nil {
		m.dropActions(rt)
		rt.st.close()
		return errors.NewPluginFailed(rec.Name, err)
	}

	m.mu.Lock()
	m.runtimes[rec.ID] = rt
	m.mu.Unlock()
	m.log.WithField("plugin", rec.Name).Debug("plugin loaded")
	return nil
}

func (m *Manager) unload(id string) {
	m.mu.Lock()
	rt, ok := m.runtimes[id]
	delete(m.runtimes, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.dropActions(rt)
	rt.st.close()
}

// registerAction adds or replaces an action. A replaced action keeps its
// position in the registry.
func (m *Manager) registerAction(a *action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.actions[a.ID]; !exists {
		m.order = append(m.order, a.ID)
	}
	m.actions[a.ID] = a
}

func (m *Manager) dropActions(rt *runtime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if m.actions[id].rt == rt {
			delete(m.actions, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}
