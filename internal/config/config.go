package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// PersistDebounceMS is the window in which session snapshot requests are coalesced.
	PersistDebounceMS int `json:"persist_debounce_ms"`

	// AutosaveDelayMS is the delay between the last edit and an autosave attempt.
	AutosaveDelayMS int `json:"autosave_delay_ms"`

	// PluginTimeoutMS bounds a single plugin load or action invocation.
	PluginTimeoutMS int `json:"plugin_timeout_ms"`

	// DownloadsDir receives buffers saved through the download fallback.
	// Empty means <baseDir>/downloads.
	DownloadsDir string `json:"downloads_dir,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format,omitempty"`

	// Defaults seeds the scalar settings the first time a profile starts.
	Defaults SettingsDefaults `json:"defaults"`
}

// SettingsDefaults holds the initial values of user preferences.
type SettingsDefaults struct {
	WordWrap     bool   `json:"word_wrap,omitempty"`
	FontSize     int    `json:"font_size,omitempty"`
	TabWidth     int    `json:"tab_width,omitempty"`
	Autosave     bool   `json:"autosave,omitempty"`
	Theme        string `json:"theme,omitempty"`
	TrimTrailing bool   `json:"trim_trailing_whitespace,omitempty"`
	ScrollLock   string `json:"scroll_lock,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PersistDebounceMS: 400,
		AutosaveDelayMS:   1000,
		PluginTimeoutMS:   2000,
		LogLevel:          "info",
		LogFormat:         "text",
		Defaults: SettingsDefaults{
			FontSize:   14,
			TabWidth:   4,
			Theme:      "dark",
			ScrollLock: "sync",
		},
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.quill.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.quill) and repo (.quill) directories.
// Repo config is found by walking upward from startDir to find the nearest .quill/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .quill/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".quill", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.PersistDebounceMS = firstNonZero(overlay.PersistDebounceMS, base.PersistDebounceMS)
	result.AutosaveDelayMS = firstNonZero(overlay.AutosaveDelayMS, base.AutosaveDelayMS)
	result.PluginTimeoutMS = firstNonZero(overlay.PluginTimeoutMS, base.PluginTimeoutMS)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.DownloadsDir = firstNonEmpty(overlay.DownloadsDir, base.DownloadsDir)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.LogFormat = firstNonEmpty(overlay.LogFormat, base.LogFormat)

	result.Defaults = SettingsDefaults{
		// Booleans: overlay wins if true, else base
		WordWrap:     base.Defaults.WordWrap || overlay.Defaults.WordWrap,
		Autosave:     base.Defaults.Autosave || overlay.Defaults.Autosave,
		TrimTrailing: base.Defaults.TrimTrailing || overlay.Defaults.TrimTrailing,
		FontSize:     firstNonZero(overlay.Defaults.FontSize, base.Defaults.FontSize),
		TabWidth:     firstNonZero(overlay.Defaults.TabWidth, base.Defaults.TabWidth),
		Theme:        firstNonEmpty(overlay.Defaults.Theme, base.Defaults.Theme),
		ScrollLock:   firstNonEmpty(overlay.Defaults.ScrollLock, base.Defaults.ScrollLock),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
