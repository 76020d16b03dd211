// Package shell is the composition root of an editing session. It opens the
// durable store, restores the previous session and wires the session,
// settings, save, view and plugin components together. Its exported methods
// are the operations the outer surfaces (CLI, MCP, web) call; each one
// records a Status line and leaves state unchanged on failure.
package shell

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/filehandle"
	"github.com/hpungsan/quill/internal/logging"
	"github.com/hpungsan/quill/internal/plugin"
	"github.com/hpungsan/quill/internal/save"
	"github.com/hpungsan/quill/internal/session"
	"github.com/hpungsan/quill/internal/settings"
	"github.com/hpungsan/quill/internal/view"
	"github.com/hpungsan/quill/internal/widget"
)

// Options configures Open.
type Options struct {
	// BaseDir holds quill.db and the default downloads directory.
	BaseDir string
	Config  *config.Config
	Logger  logrus.FieldLogger

	// Factory builds the editing widgets. Nil uses the headless widgets.
	Factory widget.Factory
	// Picker chooses save and open destinations. Nil means no dialog is
	// available and Save As falls back to a download.
	Picker filehandle.Picker
	// Prompter confirms writes to files whose permission is not yet granted.
	// Nil denies them.
	Prompter filehandle.Prompter
	// NamePrompt asks for a download file name. Nil accepts the suggestion.
	NamePrompt filehandle.NamePrompter
}

// Shell is one open editing session.
type Shell struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	database *sql.DB
	prompter filehandle.Prompter

	prefs   *settings.Store
	session *session.Manager
	saver   *save.Coordinator
	view    *view.Coordinator
	plugins *plugin.Manager

	unsubs    []func()
	closeOnce sync.Once
	closeErr  error

	smu          sync.Mutex
	status       Status
	compareLabel string
}

// Open restores the session stored under opts.BaseDir and loads the enabled
// plugins. Plugin failures are logged, never fatal.
func Open(ctx context.Context, opts Options) (*Shell, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	database, err := db.Init(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)
	store := db.NewStore(database)

	prefs := settings.New(store, settings.Defaults(cfg.Defaults), log)
	prefs.Load(ctx)

	factory := opts.Factory
	if factory == nil {
		factory = widget.Headless{}
	}

	sess := session.New(session.Options{
		Store:        store,
		Pointer:      prefs,
		Factory:      factory,
		Resolver:     filehandle.FileResolver{Prompter: opts.Prompter},
		PersistDelay: time.Duration(cfg.PersistDebounceMS) * time.Millisecond,
		Logger:       log.WithField("component", "session"),
	})
	sess.Restore(ctx)

	downloads := cfg.DownloadsDir
	if downloads == "" {
		downloads = filepath.Join(opts.BaseDir, "downloads")
	}
	namePrompt := opts.NamePrompt
	if namePrompt == nil {
		namePrompt = filehandle.AcceptSuggested
	}
	picker := opts.Picker
	if picker == nil {
		picker = filehandle.NoPicker{Reason: "no file dialog in this shell"}
	}

	s := &Shell{
		cfg:      cfg,
		log:      log,
		database: database,
		prompter: opts.Prompter,
		prefs:    prefs,
		session:  sess,
	}
	s.saver = save.New(save.Options{
		Documents:     sess,
		Preferences:   prefs,
		Picker:        picker,
		Downloader:    filehandle.DirDownloader{Dir: downloads, Prompt: namePrompt},
		AutosaveDelay: time.Duration(cfg.AutosaveDelayMS) * time.Millisecond,
		Logger:        log.WithField("component", "save"),
	})
	s.view = view.New(view.Options{
		Session:     sess,
		Factory:     factory,
		Preferences: prefs,
		Logger:      log.WithField("component", "view"),
	})
	s.plugins = plugin.New(plugin.Options{
		Store:   store,
		Host:    pluginHost{s: s},
		Timeout: time.Duration(cfg.PluginTimeoutMS) * time.Millisecond,
		Logger:  log.WithField("component", "plugin"),
	})

	s.unsubs = append(s.unsubs,
		sess.Subscribe(func(ev session.Event) {
			if ev.Kind == session.EventChanged {
				s.saver.EditOccurred(ev.Document.ID())
			}
		}),
		s.view.OnCompareChange(s.onCompareChange),
	)

	s.plugins.LoadAll(ctx)
	return s, nil
}

// Close stops background work, flushes the session and closes the store.
// Calling Close more than once returns the first result.
func (s *Shell) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		for _, fn := range s.unsubs {
			fn()
		}
		s.plugins.Close()
		s.view.Close()
		s.saver.Stop()
		err := s.session.Shutdown(ctx)
		if cerr := s.database.Close(); err == nil && cerr != nil {
			err = cerr
		}
		s.closeErr = err
	})
	return s.closeErr
}

// Flush persists the session now.
func (s *Shell) Flush(ctx context.Context) error {
	return s.report("flush", s.session.Flush(ctx), "session saved")
}

// Session returns the session manager.
func (s *Shell) Session() *session.Manager { return s.session }

// View returns the view coordinator.
func (s *Shell) View() *view.Coordinator { return s.view }

// Saver returns the save coordinator.
func (s *Shell) Saver() *save.Coordinator { return s.saver }

// Plugins returns the plugin manager.
func (s *Shell) Plugins() *plugin.Manager { return s.plugins }

// Preferences returns the settings store.
func (s *Shell) Preferences() *settings.Store { return s.prefs }

// Config returns the configuration the shell was opened with.
func (s *Shell) Config() *config.Config { return s.cfg }
