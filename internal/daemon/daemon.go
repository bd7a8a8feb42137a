// Package daemon keeps each monitor's wallpaper in step with its active
// workspace. It owns the wallpaper list and is the control surface callers
// use while the sync loop runs.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bryanchriswhite/WallSync/internal/compositor"
	"github.com/bryanchriswhite/WallSync/internal/imagecache"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
	"github.com/bryanchriswhite/WallSync/internal/workspace"
)

var (
	// ErrInvalidPath is returned for wallpaper paths that cannot be
	// canonicalised.
	ErrInvalidPath = errors.New("invalid wallpaper path")

	// ErrUnknownMonitor is returned for monitor indices outside the current
	// layout, including indices that were valid before a topology change.
	ErrUnknownMonitor = errors.New("unknown monitor")

	// ErrNoWallpapers is returned when a workspace is mapped before any
	// wallpaper was added.
	ErrNoWallpapers = errors.New("no wallpapers registered")
)

// InvalidPathError names the path that was rejected.
type InvalidPathError struct {
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid wallpaper path %q: %v", e.Path, e.Err)
}

func (e *InvalidPathError) Unwrap() []error {
	return []error{ErrInvalidPath, e.Err}
}

// Stage is the step at which applying a wallpaper to a monitor failed.
type Stage string

const (
	StageLookup Stage = "lookup"
	StageLoad   Stage = "load"
	StageRender Stage = "render"
)

// MonitorError isolates a failure to one monitor.
type MonitorError struct {
	Monitor int
	Stage   Stage
	Err     error
}

func (e *MonitorError) Error() string {
	return fmt.Sprintf("monitor %d: %s: %v", e.Monitor, e.Stage, e.Err)
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

type wallpaper struct {
	path string
	opts *compositor.Options
}

// Config wires a Daemon to its collaborators.
type Config struct {
	Geometry   *monitor.Provider
	Cache      *imagecache.Cache
	Compositor *compositor.Compositor
	Events     *workspace.Monitor
	// Defaults apply to wallpapers added without options.
	Defaults compositor.Options
}

// Daemon is the wallpaper synchronisation engine.
type Daemon struct {
	geometry *monitor.Provider
	cache    *imagecache.Cache
	comp     *compositor.Compositor
	events   *workspace.Monitor
	defaults compositor.Options

	mu         sync.RWMutex
	wallpapers []wallpaper
}

// New creates a daemon. A geometry refresh resets the compositor, because
// monitor indices are not stable across layouts.
func New(cfg Config) *Daemon {
	d := &Daemon{
		geometry: cfg.Geometry,
		cache:    cfg.Cache,
		comp:     cfg.Compositor,
		events:   cfg.Events,
		defaults: cfg.Defaults,
	}
	d.geometry.OnRefresh(func(*monitor.Snapshot) {
		d.comp.Reset()
	})
	return d
}

// AddWallpaper appends path to the rotation using the default options.
func (d *Daemon) AddWallpaper(path string) error {
	return d.add(path, nil)
}

// AddWallpaperWith appends path with its own fill options.
func (d *Daemon) AddWallpaperWith(path string, opts compositor.Options) error {
	return d.add(path, &opts)
}

func (d *Daemon) add(path string, opts *compositor.Options) error {
	canonical, err := imagecache.Canonicalize(path)
	if err != nil {
		return &InvalidPathError{Path: path, Err: err}
	}

	d.mu.Lock()
	d.wallpapers = append(d.wallpapers, wallpaper{path: canonical, opts: opts})
	n := len(d.wallpapers)
	d.mu.Unlock()

	logger.WithComponent("daemon").Debug().
		Str("path", canonical).
		Int("index", n-1).
		Msg("Wallpaper added")
	return nil
}

// ListWallpapers returns the rotation in order. The slice is a copy.
func (d *Daemon) ListWallpapers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.wallpapers))
	for i, w := range d.wallpapers {
		out[i] = w.path
	}
	return out
}

// WallpaperFor maps a workspace number to a wallpaper: index W mod L.
func (d *Daemon) WallpaperFor(ws uint32) (string, error) {
	w, err := d.entryFor(ws)
	if err != nil {
		return "", err
	}
	return w.path, nil
}

// entryFor is WallpaperFor with the entry's resolved fill options. A path
// listed twice keeps the options of the slot the workspace maps to.
func (d *Daemon) entryFor(ws uint32) (wallpaper, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.wallpapers) == 0 {
		return wallpaper{}, ErrNoWallpapers
	}
	w := d.wallpapers[ws%uint32(len(d.wallpapers))]
	if w.opts == nil {
		w.opts = &d.defaults
	}
	return w, nil
}

// options returns the fill options of the first entry for path, or the
// defaults when path is not listed.
func (d *Daemon) options(path string) compositor.Options {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, w := range d.wallpapers {
		if w.path == path {
			if w.opts != nil {
				return *w.opts
			}
			break
		}
	}
	return d.defaults
}

// SetWallpaper shows path on monitor index. The index is checked against
// the current layout; it never waits for workspace events and is safe to
// call while WaitForChange is blocked elsewhere. When path is listed more
// than once, the options of its first entry apply.
func (d *Daemon) SetWallpaper(index int, path string) error {
	canonical, err := imagecache.Canonicalize(path)
	if err != nil {
		return &MonitorError{Monitor: index, Stage: StageLookup, Err: &InvalidPathError{Path: path, Err: err}}
	}
	return d.show(index, canonical, d.options(canonical))
}

// show loads canonical and applies it with opts to monitor index.
func (d *Daemon) show(index int, canonical string, opts compositor.Options) error {
	snap := d.geometry.Snapshot()
	m, ok := snap.Monitor(index)
	if !ok {
		return &MonitorError{
			Monitor: index,
			Stage:   StageLookup,
			Err:     fmt.Errorf("%w: index %d, layout v%d has %d", ErrUnknownMonitor, index, snap.Version, snap.Len()),
		}
	}

	img, err := d.cache.Load(canonical)
	if err != nil {
		return &MonitorError{Monitor: index, Stage: StageLoad, Err: err}
	}

	err = d.comp.Apply(m, img, opts)
	if errors.Is(err, imagecache.ErrReleased) {
		// Evicted between Load and Apply; the file changed. Load it again.
		if img, err = d.cache.Load(canonical); err != nil {
			return &MonitorError{Monitor: index, Stage: StageLoad, Err: err}
		}
		err = d.comp.Apply(m, img, opts)
	}
	if err != nil {
		return &MonitorError{Monitor: index, Stage: StageRender, Err: err}
	}
	return nil
}

// Apply shows the mapped wallpaper on every monitor in as. Each monitor is
// handled independently; the failures are joined.
func (d *Daemon) Apply(as []workspace.Assignment) error {
	var errs []error
	for _, a := range as {
		w, err := d.entryFor(a.Workspace)
		if err != nil {
			errs = append(errs, &MonitorError{Monitor: a.Monitor, Stage: StageLookup, Err: err})
			continue
		}
		if err := d.show(a.Monitor, w.path, *w.opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run applies the current assignment, then follows workspace changes until
// ctx is done (nil) or the display connection is lost.
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.WithComponent("daemon")
	d.events.Start()

	if current, err := d.events.Current(); err != nil {
		log.Warn().Err(err).Msg("Failed to read initial workspaces")
	} else if err := d.Apply(current); err != nil {
		log.Warn().Err(err).Msg("Failed to apply initial wallpapers")
	}

	for {
		as, err := d.events.WaitForChange(ctx)
		switch {
		case errors.Is(err, workspace.ErrCanceled):
			log.Debug().Msg("Sync loop stopped")
			return nil
		case errors.Is(err, workspace.ErrConnectionLost):
			return err
		case err != nil:
			log.Warn().Err(err).Msg("Failed to read workspace change")
			continue
		}

		if err := d.Apply(as); err != nil {
			log.Warn().Err(err).Msg("Failed to apply wallpapers")
		}
	}
}

// FileChanged drops everything derived from path and shows the new
// contents on the monitors that displayed it, with the options each one
// was using.
func (d *Daemon) FileChanged(path string) error {
	canonical, err := imagecache.Canonicalize(path)
	if err != nil {
		return &InvalidPathError{Path: path, Err: err}
	}

	d.cache.Invalidate(canonical)
	d.comp.Forget(canonical)

	indices := d.comp.Showing(canonical)
	slices.Sort(indices)

	var errs []error
	for _, idx := range indices {
		opts, ok := d.comp.ShownOptions(idx)
		if !ok {
			opts = d.options(canonical)
		}
		if err := d.show(idx, canonical, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if len(indices) > 0 {
		logger.WithComponent("daemon").Info().
			Str("path", canonical).
			Ints("monitors", indices).
			Msg("Reloaded changed wallpaper")
	}
	return errors.Join(errs...)
}

// Close stops the sync loop. A blocked Run returns nil.
func (d *Daemon) Close() {
	d.events.Close()
}

// String names the sync loop for the supervisor.
func (d *Daemon) String() string {
	return "wallpaper-sync"
}
