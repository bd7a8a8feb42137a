package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bryanchriswhite/WallSync/internal/compositor"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// WallpaperEntry is one wallpaper in the rotation. In YAML it is either a
// bare path or a mapping with per-wallpaper fill options.
type WallpaperEntry struct {
	Path       string `json:"path" yaml:"path"`
	Mode       string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Background string `json:"background,omitempty" yaml:"background,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (e *WallpaperEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Path = value.Value
		return nil
	}
	type plain WallpaperEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = WallpaperEntry(p)
	return nil
}

// MarshalYAML writes entries without overrides as bare paths.
func (e WallpaperEntry) MarshalYAML() (interface{}, error) {
	if e.Mode == "" && e.Background == "" {
		return e.Path, nil
	}
	type plain WallpaperEntry
	return plain(e), nil
}

// Config represents the application configuration
type Config struct {
	Display   string `json:"display" yaml:"display"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty"`

	// Defaults for wallpapers that carry no override.
	Mode       string `json:"mode" yaml:"mode"`
	Background string `json:"background" yaml:"background"`

	WorkspaceProperty      string `json:"workspace_property" yaml:"workspace_property"`
	FallbackCurrentDesktop bool   `json:"fallback_current_desktop" yaml:"fallback_current_desktop"`

	WatchFiles     bool `json:"watch_files" yaml:"watch_files"`
	FrameCacheSize int  `json:"frame_cache_size" yaml:"frame_cache_size"`

	Wallpapers []WallpaperEntry `json:"wallpapers" yaml:"wallpapers"`
}

// Validate checks the values that are parsed later, so a typo fails at
// startup rather than on the first workspace switch.
func (c *Config) Validate() error {
	var errs []error
	if _, err := compositor.ParseMode(c.Mode); err != nil {
		errs = append(errs, fmt.Errorf("mode: %w", err))
	}
	if _, err := compositor.ParseColor(c.Background); err != nil {
		errs = append(errs, fmt.Errorf("background: %w", err))
	}
	if c.FrameCacheSize < 0 {
		errs = append(errs, fmt.Errorf("frame_cache_size: must not be negative, got %d", c.FrameCacheSize))
	}
	for i, w := range c.Wallpapers {
		if w.Path == "" {
			errs = append(errs, fmt.Errorf("wallpapers[%d]: empty path", i))
		}
		if _, err := compositor.ParseMode(w.Mode); err != nil {
			errs = append(errs, fmt.Errorf("wallpapers[%d].mode: %w", i, err))
		}
		if _, err := compositor.ParseColor(w.Background); err != nil {
			errs = append(errs, fmt.Errorf("wallpapers[%d].background: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $XDG_CONFIG_HOME/wallsync/config.yaml, falling back
// to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "wallsync", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when it is empty. The
// file is never written; a missing file yields the defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// An explicitly named file has to exist.
		if configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config file not found, using defaults")
		m.config = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("wallpapers", len(m.config.Wallpapers)).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		LogLevel:               "info",
		Mode:                   compositor.ModeStretch.String(),
		Background:             "#000000",
		WorkspaceProperty:      "OWALLPAPERD_WORKSPACES",
		FallbackCurrentDesktop: true,
		WatchFiles:             true,
		FrameCacheSize:         8,
		Wallpapers:             []WallpaperEntry{},
	}
}

// load reads the configuration from disk. Keys absent from the file keep
// their default values.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Wallpapers == nil {
		cfg.Wallpapers = []WallpaperEntry{}
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	cfg.Wallpapers = slices.Clone(m.config.Wallpapers)
	return &cfg
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// ApplyOverrides copies every key that is set in v (from flags or WALLSYNC_*
// environment variables) over the file values.
func (m *Manager) ApplyOverrides(v *viper.Viper) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.config
	if v.IsSet("display") {
		cfg.Display = v.GetString("display")
	}
	if v.IsSet("log_level") && v.GetString("log_level") != "" {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_pretty") {
		cfg.LogPretty = v.GetBool("log_pretty")
	}
	if v.IsSet("mode") && v.GetString("mode") != "" {
		cfg.Mode = v.GetString("mode")
	}
	if v.IsSet("background") && v.GetString("background") != "" {
		cfg.Background = v.GetString("background")
	}
	if v.IsSet("workspace_property") && v.GetString("workspace_property") != "" {
		cfg.WorkspaceProperty = v.GetString("workspace_property")
	}
	if v.IsSet("fallback_current_desktop") {
		cfg.FallbackCurrentDesktop = v.GetBool("fallback_current_desktop")
	}
	if v.IsSet("watch_files") {
		cfg.WatchFiles = v.GetBool("watch_files")
	}
	if v.IsSet("frame_cache_size") {
		cfg.FrameCacheSize = v.GetInt("frame_cache_size")
	}
}
