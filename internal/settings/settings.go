// Package settings holds the user's scalar preferences and the active
// document pointer. Every value is stored JSON-encoded under its own key in
// the settings collection and written through on every change.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/errors"
)

// Setting keys.
const (
	KeyWordWrap         = "wordWrap"
	KeyFontSize         = "fontSize"
	KeyTabWidth         = "tabWidth"
	KeyAutosave         = "autosave"
	KeyTheme            = "theme"
	KeyTrimTrailing     = "trimTrailingWhitespace"
	KeyScrollLock       = "scrollLock"
	KeyScrollLockPolicy = "scrollLockPolicy"
	KeyLayout           = "layout"
	KeyActiveDocument   = "activeDocumentId"
)

// KV is the slice of the durable store settings need.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Values is a snapshot of every preference.
type Values struct {
	WordWrap         bool   `json:"wordWrap"`
	FontSize         int    `json:"fontSize"`
	TabWidth         int    `json:"tabWidth"`
	Autosave         bool   `json:"autosave"`
	Theme            string `json:"theme"`
	TrimTrailing     bool   `json:"trimTrailingWhitespace"`
	ScrollLock       bool   `json:"scrollLock"`
	ScrollLockPolicy string `json:"scrollLockPolicy"`
	Layout           string `json:"layout"`
}

// Defaults builds the initial values from configuration.
func Defaults(d config.SettingsDefaults) Values {
	v := Values{
		WordWrap:         d.WordWrap,
		FontSize:         d.FontSize,
		TabWidth:         d.TabWidth,
		Autosave:         d.Autosave,
		Theme:            d.Theme,
		TrimTrailing:     d.TrimTrailing,
		ScrollLockPolicy: d.ScrollLock,
		Layout:           "single",
	}
	if v.FontSize <= 0 {
		v.FontSize = 14
	}
	if v.TabWidth <= 0 {
		v.TabWidth = 4
	}
	if v.Theme == "" {
		v.Theme = "dark"
	}
	if v.ScrollLockPolicy != "offset" {
		v.ScrollLockPolicy = "sync"
	}
	return v
}

// field binds a key to its slot in Values.
type field struct {
	get func(v *Values) any
	set func(v *Values, raw []byte) error
}

func boolField(p func(v *Values) *bool) field {
	return field{
		get: func(v *Values) any { return *p(v) },
		set: func(v *Values, raw []byte) error { return json.Unmarshal(raw, p(v)) },
	}
}

func intField(p func(v *Values) *int, lo, hi int) field {
	return field{
		get: func(v *Values) any { return *p(v) },
		set: func(v *Values, raw []byte) error {
			var n int
			if err := json.Unmarshal(raw, &n); err != nil {
				return err
			}
			if n < lo || n > hi {
				return fmt.Errorf("must be between %d and %d", lo, hi)
			}
			*p(v) = n
			return nil
		},
	}
}

func enumField(p func(v *Values) *string, allowed ...string) field {
	return field{
		get: func(v *Values) any { return *p(v) },
		set: func(v *Values, raw []byte) error {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			if len(allowed) == 0 {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("must not be empty")
				}
				*p(v) = s
				return nil
			}
			for _, a := range allowed {
				if s == a {
					*p(v) = s
					return nil
				}
			}
			return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
		},
	}
}

var fields = map[string]field{
	KeyWordWrap:         boolField(func(v *Values) *bool { return &v.WordWrap }),
	KeyFontSize:         intField(func(v *Values) *int { return &v.FontSize }, 6, 72),
	KeyTabWidth:         intField(func(v *Values) *int { return &v.TabWidth }, 1, 16),
	KeyAutosave:         boolField(func(v *Values) *bool { return &v.Autosave }),
	KeyTheme:            enumField(func(v *Values) *string { return &v.Theme }),
	KeyTrimTrailing:     boolField(func(v *Values) *bool { return &v.TrimTrailing }),
	KeyScrollLock:       boolField(func(v *Values) *bool { return &v.ScrollLock }),
	KeyScrollLockPolicy: enumField(func(v *Values) *string { return &v.ScrollLockPolicy }, "sync", "offset"),
	KeyLayout:           enumField(func(v *Values) *string { return &v.Layout }, "single", "split"),
}

// Keys returns the preference keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store is the write-through settings cache.
type Store struct {
	kv  KV
	log logrus.FieldLogger

	mu     sync.Mutex
	values Values
	active string
}

// New returns a store seeded with defaults. Call Load to read persisted values.
func New(kv KV, defaults Values, log logrus.FieldLogger) *Store {
	return &Store{kv: kv, values: defaults, log: log}
}

// Load reads every persisted preference. Unreadable or invalid values are
// logged and the default kept; Load never fails the caller.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, f := range fields {
		raw, ok, err := s.kv.GetSetting(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("failed to read setting")
			continue
		}
		if !ok {
			continue
		}
		next := s.values
		if err := f.set(&next, []byte(raw)); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("ignoring invalid stored setting")
			continue
		}
		s.values = next
	}

	raw, ok, err := s.kv.GetSetting(ctx, KeyActiveDocument)
	if err != nil {
		s.log.WithError(err).Warn("failed to read active document pointer")
		return
	}
	if ok {
		var id string
		if json.Unmarshal([]byte(raw), &id) == nil {
			s.active = id
		}
	}
}

// Values returns a snapshot of every preference.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// Get returns the value of key.
func (s *Store) Get(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, errors.NewNotFound("setting", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.get(&s.values), nil
}

// Set validates raw (JSON) for key, stores it and updates the cache. The
// cache is only updated once the write succeeded.
func (s *Store) Set(ctx context.Context, key string, raw json.RawMessage) error {
	f, ok := fields[key]
	if !ok {
		return errors.NewNotFound("setting", key)
	}

	s.mu.Lock()
	next := s.values
	s.mu.Unlock()

	if err := f.set(&next, raw); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", key, err))
	}
	encoded, err := json.Marshal(f.get(&next))
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := s.kv.SetSetting(ctx, key, string(encoded)); err != nil {
		return err
	}

	s.mu.Lock()
	if err := f.set(&s.values, encoded); err != nil {
		s.mu.Unlock()
		return errors.NewInternal(err)
	}
	s.mu.Unlock()
	return nil
}

// SetValue marshals value and calls Set.
func (s *Store) SetValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", key, err))
	}
	return s.Set(ctx, key, raw)
}

// ActiveDocumentID returns the persisted active document pointer.
func (s *Store) ActiveDocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveDocumentID writes the active document pointer.
func (s *Store) SetActiveDocumentID(ctx context.Context, id string) error {
	encoded, err := json.Marshal(id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := s.kv.SetSetting(ctx, KeyActiveDocument, string(encoded)); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	return nil
}
