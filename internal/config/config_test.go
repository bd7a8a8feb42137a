package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func Test_DefaultPathHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/wallsync/config.yaml", path)

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")
	path, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/someone/.config/wallsync/config.yaml", path)
}

func Test_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), m.Get())

	// Nothing is written back.
	_, err = os.Stat(m.GetConfigPath())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func Test_MissingExplicitFileFails(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func Test_LoadMixedWallpaperEntries(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
mode: fit
wallpapers:
  - ~/Pictures/a.jpg
  - path: /srv/b.png
    mode: tile
    background: "#102030"
`)

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.Get()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "fit", cfg.Mode)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 8, cfg.FrameCacheSize)
	assert.True(t, cfg.WatchFiles)
	assert.Equal(t, []WallpaperEntry{
		{Path: "~/Pictures/a.jpg"},
		{Path: "/srv/b.png", Mode: "tile", Background: "#102030"},
	}, cfg.Wallpapers)
	assert.NoError(t, cfg.Validate())
}

func Test_BadYAML(t *testing.T) {
	path := writeConfig(t, "wallpapers: [unterminated")
	_, err := NewManager(path)
	assert.Error(t, err)
}

func Test_WallpaperEntryMarshalsCompactly(t *testing.T) {
	in := []WallpaperEntry{
		{Path: "/a.jpg"},
		{Path: "/b.jpg", Mode: "center"},
	}
	out, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(out), "- /a.jpg\n")

	var back []WallpaperEntry
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, in, back)
}

func Test_Validate(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "zoom"
	cfg.Background = "#12"
	cfg.FrameCacheSize = -1
	cfg.Wallpapers = []WallpaperEntry{{Path: ""}, {Path: "/x.png", Mode: "sideways"}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"mode:", "background:", "frame_cache_size", "wallpapers[0]: empty path", "wallpapers[1].mode"} {
		assert.Contains(t, err.Error(), want)
	}
}

func Test_ApplyOverrides(t *testing.T) {
	path := writeConfig(t, "mode: center\nwatch_files: true\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	v := viper.New()
	v.Set("mode", "tile")
	v.Set("watch_files", false)
	v.Set("display", ":1")
	m.ApplyOverrides(v)

	cfg := m.Get()
	assert.Equal(t, "tile", cfg.Mode)
	assert.False(t, cfg.WatchFiles)
	assert.Equal(t, ":1", cfg.Display)
	// Unset keys are left alone.
	assert.Equal(t, "info", cfg.LogLevel)
}

func Test_ApplyOverridesFromEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WALLSYNC_LOG_LEVEL", "warn")

	v := viper.New()
	v.SetEnvPrefix("wallsync")
	v.AutomaticEnv()

	m, err := NewManager("")
	require.NoError(t, err)
	m.ApplyOverrides(v)
	assert.Equal(t, "warn", m.Get().LogLevel)
}

func Test_GetReturnsCopy(t *testing.T) {
	path := writeConfig(t, "wallpapers: [/a.jpg]\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Wallpapers[0].Path = "/changed.jpg"
	assert.Equal(t, "/a.jpg", m.Get().Wallpapers[0].Path)
}
