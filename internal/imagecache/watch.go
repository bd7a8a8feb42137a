package imagecache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/thejerf/suture/v4"
)

// errWatcherClosed ends Serve for good once fsnotify has shut down; a
// restart would spin on the closed channels.
var errWatcherClosed = fmt.Errorf("%w: file watcher closed", suture.ErrDoNotRestart)

// Watcher evicts cached wallpapers whose files change on disk. It watches
// parent directories rather than files, so editors that replace a file by
// renaming over it are still noticed.
type Watcher struct {
	cache    *Cache
	onChange func(path string)
	fsw      *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// NewWatcher creates a watcher bound to cache. onChange, if non-nil, runs
// after the cache entry for a changed file has been evicted.
func NewWatcher(cache *Cache, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		cache:    cache,
		onChange: onChange,
		fsw:      fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	key, err := Canonicalize(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.files[key] = true
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(path)]
}

// Serve dispatches file events until ctx is done, then closes the watcher.
// If the underlying watcher closes first, Serve returns an error that
// tells the supervisor not to restart it.
func (w *Watcher) Serve(ctx context.Context) error {
	log := logger.WithComponent("imagecache-watch")
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errWatcherClosed
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.watched(ev.Name) {
				continue
			}
			log.Info().
				Str("path", ev.Name).
				Str("op", ev.Op.String()).
				Msg("Wallpaper file changed, evicting")
			w.cache.Invalidate(ev.Name)
			if w.onChange != nil {
				w.onChange(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errWatcherClosed
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) String() string {
	return "imagecache-watcher"
}
