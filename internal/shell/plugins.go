package shell

import (
	"context"
	"fmt"

	"github.com/hpungsan/quill/internal/db"
	"github.com/hpungsan/quill/internal/plugin"
)

// PluginOutput is a stored plugin with its load state. Code is omitted.
type PluginOutput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Loaded  bool   `json:"loaded"`
	AddedAt int64  `json:"added_at"`
}

func (s *Shell) pluginOutput(p db.PluginRecord) PluginOutput {
	return PluginOutput{
		ID:      p.ID,
		Name:    p.Name,
		Enabled: p.Enabled,
		Loaded:  s.plugins.Loaded(p.ID),
		AddedAt: p.AddedAt,
	}
}

// AddPlugin stores and loads a plugin. A plugin that fails to load is kept
// so it can be fixed or removed; the failure is returned.
func (s *Shell) AddPlugin(ctx context.Context, name, code string) (*PluginOutput, error) {
	rec, err := s.plugins.Add(ctx, name, code)
	if rec == nil {
		return nil, s.report("plugin add", err, "")
	}
	out := s.pluginOutput(*rec)
	if err != nil {
		return &out, s.report("plugin add", err, "")
	}
	_ = s.report("plugin add", nil, fmt.Sprintf("added plugin %s", rec.Name))
	return &out, nil
}

// ListPlugins returns every stored plugin.
func (s *Shell) ListPlugins(ctx context.Context) ([]PluginOutput, error) {
	recs, err := s.plugins.List(ctx)
	if err != nil {
		return nil, s.report("plugin list", err, "")
	}
	out := make([]PluginOutput, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.pluginOutput(rec))
	}
	return out, nil
}

// EnablePlugin enables and loads id.
func (s *Shell) EnablePlugin(ctx context.Context, id string) error {
	return s.report("plugin enable", s.plugins.Enable(ctx, id), "plugin enabled")
}

// DisablePlugin disables and unloads id.
func (s *Shell) DisablePlugin(ctx context.Context, id string) error {
	return s.report("plugin disable", s.plugins.Disable(ctx, id), "plugin disabled")
}

// RemovePlugin deletes id and its storage.
func (s *Shell) RemovePlugin(ctx context.Context, id string) error {
	return s.report("plugin remove", s.plugins.Remove(ctx, id), "plugin removed")
}

// Actions lists the registered plugin actions.
func (s *Shell) Actions() []plugin.Action {
	return s.plugins.Actions()
}

// RunAction invokes a plugin action.
func (s *Shell) RunAction(ctx context.Context, id string) error {
	return s.report("action", s.plugins.RunAction(ctx, id), fmt.Sprintf("ran %s", id))
}
