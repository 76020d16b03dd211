package shell

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/settings"
)

// Settings returns every preference by key.
func (s *Shell) Settings() map[string]any {
	out := make(map[string]any)
	for _, key := range settings.Keys() {
		if v, err := s.prefs.Get(key); err == nil {
			out[key] = v
		}
	}
	return out
}

// SetSetting writes one preference from its JSON value. The view keys are
// applied through the view so its state and the stored value never differ.
func (s *Shell) SetSetting(ctx context.Context, key string, raw json.RawMessage) (any, error) {
	var err error
	switch key {
	case settings.KeyLayout:
		var layout string
		if err = json.Unmarshal(raw, &layout); err == nil {
			_, err = s.SetMode(layout)
		}
	case settings.KeyScrollLock:
		var on bool
		if err = json.Unmarshal(raw, &on); err == nil {
			_, err = s.SetScrollLock(on)
		}
	case settings.KeyScrollLockPolicy:
		var policy string
		if err = json.Unmarshal(raw, &policy); err == nil {
			_, err = s.SetLockPolicy(policy)
		}
	default:
		err = s.prefs.Set(ctx, key, raw)
	}
	if err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			err = errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", key, err))
		} else if _, ok := err.(*json.SyntaxError); ok {
			err = errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", key, err))
		}
		return nil, s.report("settings", err, "")
	}

	v, err := s.prefs.Get(key)
	if err != nil {
		return nil, s.report("settings", err, "")
	}
	_ = s.report("settings", nil, fmt.Sprintf("%s = %v", key, v))
	return v, nil
}
