// Package compositor turns decoded wallpapers into monitor-sized frames and
// hands them to the display surface.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/WallSync/internal/imagecache"
	"github.com/bryanchriswhite/WallSync/internal/logger"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
)

// ErrRender marks failures of the display server to accept a frame.
var ErrRender = errors.New("render failed")

// RenderError reports which monitor rejected a frame.
type RenderError struct {
	Monitor int
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render monitor %d: %v", e.Monitor, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}

// Surface shows a finished frame as the background of one monitor. Publish
// must replace the visible background in a single step; the frame is
// complete before it is called.
type Surface interface {
	Publish(m monitor.Monitor, frame *image.RGBA) error
}

type shown struct {
	img  *imagecache.WallpaperImage
	rect image.Rectangle
	opts Options
}

// Compositor renders and publishes wallpapers, remembering what each
// monitor currently shows.
type Compositor struct {
	surface Surface

	mu      sync.Mutex
	current map[int]shown
	frames  *frameCache
}

// New creates a compositor publishing to surface. frameCacheSize bounds the
// number of rendered frames kept for reuse; zero disables frame caching.
func New(surface Surface, frameCacheSize int) *Compositor {
	return &Compositor{
		surface: surface,
		current: make(map[int]shown),
		frames:  newFrameCache(frameCacheSize),
	}
}

// Apply renders img for monitor m and publishes it. Applying the image that
// is already shown, with the same options and geometry, does nothing.
func (c *Compositor) Apply(m monitor.Monitor, img *imagecache.WallpaperImage, opts Options) error {
	log := logger.WithMonitor("compositor", m.Index)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.current[m.Index]; ok && cur.img == img && cur.rect == m.Rect() && cur.opts == opts {
		log.Debug().Str("path", img.Path).Msg("Wallpaper already shown")
		return nil
	}

	if !img.Acquire() {
		return fmt.Errorf("%s: %w", img.Path, imagecache.ErrReleased)
	}

	key := frameKey{img: img, size: image.Pt(m.Width, m.Height), opts: opts}
	frame, ok := c.frames.get(key)
	if !ok {
		src := img.Image()
		if src == nil {
			img.Release()
			return fmt.Errorf("%s: %w", img.Path, imagecache.ErrReleased)
		}
		frame = Render(src, m.Width, m.Height, opts)
		c.frames.put(key, frame)
	}

	if err := c.surface.Publish(m, frame); err != nil {
		img.Release()
		return &RenderError{Monitor: m.Index, Err: err}
	}

	prev, had := c.current[m.Index]
	c.current[m.Index] = shown{img: img, rect: m.Rect(), opts: opts}
	if had {
		prev.img.Release()
	}

	log.Info().
		Str("path", img.Path).
		Stringer("mode", opts.Mode).
		Bool("frame_cached", ok).
		Msg("Wallpaper applied")
	return nil
}

// Current returns the path shown on monitor index, if any.
func (c *Compositor) Current(index int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.current[index]
	if !ok {
		return "", false
	}
	return cur.img.Path, true
}

// ShownOptions returns the fill options monitor index was last shown with.
func (c *Compositor) ShownOptions(index int) (Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.current[index]
	return cur.opts, ok
}

// Showing returns the monitor indices currently displaying path.
func (c *Compositor) Showing(path string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for idx, cur := range c.current {
		if cur.img.Path == path {
			out = append(out, idx)
		}
	}
	return out
}

// Forget drops cached frames rendered from path.
func (c *Compositor) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames.dropPath(path)
}

// Reset discards all per-monitor state. Called when the monitor layout
// changes, since indices no longer refer to the same regions.
func (c *Compositor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cur := range c.current {
		cur.img.Release()
	}
	c.current = make(map[int]shown)
	c.frames.clear()
}

type frameKey struct {
	img  *imagecache.WallpaperImage
	size image.Point
	opts Options
}

// frameCache keeps the most recently rendered frames, evicting the oldest
// insertion once full.
type frameCache struct {
	max    int
	order  []frameKey
	frames map[frameKey]*image.RGBA
}

func newFrameCache(max int) *frameCache {
	return &frameCache{max: max, frames: make(map[frameKey]*image.RGBA)}
}

func (f *frameCache) get(k frameKey) (*image.RGBA, bool) {
	fr, ok := f.frames[k]
	return fr, ok
}

func (f *frameCache) put(k frameKey, fr *image.RGBA) {
	if f.max <= 0 {
		return
	}
	if _, ok := f.frames[k]; ok {
		return
	}
	for len(f.order) >= f.max {
		delete(f.frames, f.order[0])
		f.order = f.order[1:]
	}
	f.order = append(f.order, k)
	f.frames[k] = fr
}

func (f *frameCache) dropPath(path string) {
	kept := f.order[:0]
	for _, k := range f.order {
		if k.img.Path == path {
			delete(f.frames, k)
			continue
		}
		kept = append(kept, k)
	}
	f.order = kept
}

func (f *frameCache) clear() {
	f.order = nil
	f.frames = make(map[frameKey]*image.RGBA)
}

func (f *frameCache) len() int {
	return len(f.frames)
}
