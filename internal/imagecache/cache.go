// Package imagecache decodes wallpaper files once and shares the result.
package imagecache

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/WallSync/internal/logger"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode marks every failure to turn a path into pixels.
	ErrDecode = errors.New("decode failed")

	// ErrReleased is returned when a handle is used after its last owner
	// let go of it.
	ErrReleased = errors.New("wallpaper image released")
)

// DecodeError reports which file could not be loaded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// DecodeFunc turns an encoded image stream into pixels.
type DecodeFunc func(r io.Reader) (image.Image, error)

func decodeAny(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// WallpaperImage is a decoded wallpaper shared between the cache and the
// monitors displaying it. The pixels stay valid while at least one owner
// holds a reference; the cache holds one for as long as the entry lives.
type WallpaperImage struct {
	Path string

	refs atomic.Int32
	mu   sync.RWMutex
	img  image.Image
}

func newWallpaperImage(path string, img image.Image) *WallpaperImage {
	w := &WallpaperImage{Path: path, img: img}
	w.refs.Store(1)
	return w
}

// Image returns the decoded pixels, or nil once every owner has released
// the handle.
func (w *WallpaperImage) Image() image.Image {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.img
}

// Size returns the native dimensions of the image.
func (w *WallpaperImage) Size() image.Point {
	img := w.Image()
	if img == nil {
		return image.Point{}
	}
	return img.Bounds().Size()
}

// Acquire adds an owner. It fails if the handle has already been released.
func (w *WallpaperImage) Acquire() bool {
	for {
		n := w.refs.Load()
		if n <= 0 {
			return false
		}
		if w.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops an owner; the last release frees the pixels.
func (w *WallpaperImage) Release() {
	if w.refs.Add(-1) == 0 {
		w.mu.Lock()
		w.img = nil
		w.mu.Unlock()
		logger.WithComponent("imagecache").Debug().
			Str("path", w.Path).
			Msg("Released decoded wallpaper")
	}
}

// Refs reports the current number of owners.
func (w *WallpaperImage) Refs() int {
	return int(w.refs.Load())
}

type entry struct {
	once sync.Once
	img  *WallpaperImage
	err  error
}

// Cache maps canonical paths to decoded images. There is no automatic
// eviction; callers evict explicitly with Invalidate or Clear.
type Cache struct {
	decode  DecodeFunc
	mu      sync.Mutex
	entries map[string]*entry
	decodes atomic.Int64
}

// Option customises a Cache.
type Option func(*Cache)

// WithDecoder replaces the format-sniffing decoder.
func WithDecoder(fn DecodeFunc) Option {
	return func(c *Cache) { c.decode = fn }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		decode:  decodeAny,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the decoded image for path, decoding it on first use.
// Concurrent callers asking for the same path share one decode. A failed
// decode is not cached, so the next call tries again.
func (c *Cache) Load(path string) (*WallpaperImage, error) {
	key, err := Canonicalize(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.img, e.err = c.load(key)
	})

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, e.err
	}
	return e.img, nil
}

func (c *Cache) load(path string) (*WallpaperImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, err := c.decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Path: path, Err: errors.New("image has no pixels")}
	}
	c.decodes.Add(1)

	logger.WithComponent("imagecache").Debug().
		Str("path", path).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Decoded wallpaper")

	return newWallpaperImage(path, img), nil
}

// Invalidate evicts path so the next Load decodes the file again. Monitors
// still displaying the old image keep their reference.
func (c *Cache) Invalidate(path string) {
	key, err := Canonicalize(path)
	if err != nil {
		return
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.release(e)
	}
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	for _, e := range old {
		c.release(e)
	}
}

func (c *Cache) release(e *entry) {
	// Wait out a decode still in flight so its reference is dropped too.
	e.once.Do(func() { e.err = fmt.Errorf("%w: %w", ErrDecode, ErrReleased) })
	if e.img != nil {
		e.img.Release()
	}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether path currently has a cache entry.
func (c *Cache) Contains(path string) bool {
	key, err := Canonicalize(path)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Decodes returns how many files the cache has decoded successfully.
func (c *Cache) Decodes() int64 {
	return c.decodes.Load()
}
