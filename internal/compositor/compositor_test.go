package compositor

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bryanchriswhite/WallSync/internal/imagecache"
	"github.com/bryanchriswhite/WallSync/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

type published struct {
	monitor monitor.Monitor
	frame   *image.RGBA
}

type fakeSurface struct {
	mu  sync.Mutex
	err error
	got []published
}

func (s *fakeSurface) Publish(m monitor.Monitor, frame *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, published{monitor: m, frame: frame})
	return nil
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func loadSolid(t *testing.T, c *imagecache.Cache, name string, w, h int, col color.RGBA) *imagecache.WallpaperImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(w, h, col)))
	require.NoError(t, f.Close())

	img, err := c.Load(path)
	require.NoError(t, err)
	return img
}

func Test_ParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":        ModeStretch,
		"stretch": ModeStretch,
		"fill":    ModeStretch,
		"Center":  ModeCenter,
		"fit":     ModeFit,
		"full":    ModeFit,
		"tile":    ModeTile,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("zoom")
	assert.Error(t, err)
}

func Test_ParseColor(t *testing.T) {
	c, err := ParseColor("#102030")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, c)

	c, err = ParseColor("0xFF0000")
	require.NoError(t, err)
	assert.Equal(t, red, c)

	c, err = ParseColor("")
	require.NoError(t, err)
	assert.Equal(t, black, c)

	_, err = ParseColor("#12")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func Test_RenderStretchFillsRegion(t *testing.T) {
	frame := Render(solid(4, 2, red), 40, 30, DefaultOptions())
	assert.Equal(t, image.Rect(0, 0, 40, 30), frame.Bounds())
	assert.Equal(t, red, frame.RGBAAt(0, 0))
	assert.Equal(t, red, frame.RGBAAt(39, 29))
}

func Test_RenderFitLetterboxes(t *testing.T) {
	opts := Options{Mode: ModeFit, Background: blue}
	frame := Render(solid(20, 10, red), 40, 40, opts)

	// 20x10 scales to 40x20, centred vertically.
	assert.Equal(t, blue, frame.RGBAAt(20, 5))
	assert.Equal(t, red, frame.RGBAAt(20, 20))
	assert.Equal(t, blue, frame.RGBAAt(20, 35))
}

func Test_RenderCenter(t *testing.T) {
	opts := Options{Mode: ModeCenter, Background: blue}
	frame := Render(solid(10, 10, red), 30, 30, opts)

	assert.Equal(t, blue, frame.RGBAAt(5, 5))
	assert.Equal(t, red, frame.RGBAAt(10, 10))
	assert.Equal(t, red, frame.RGBAAt(19, 19))
	assert.Equal(t, blue, frame.RGBAAt(20, 20))
}

func Test_RenderTileCoversRegion(t *testing.T) {
	src := solid(3, 3, red)
	src.SetRGBA(0, 0, blue)
	frame := Render(src, 10, 10, Options{Mode: ModeTile, Background: black})

	// (10-3)/2 = 3 -> left shifts to 0; tiles start at 0,3,6,9.
	for _, p := range []image.Point{{0, 0}, {3, 3}, {6, 9}, {9, 9}} {
		assert.Equal(t, blue, frame.RGBAAt(p.X, p.Y), p)
	}
	assert.Equal(t, red, frame.RGBAAt(1, 1))
}

func Test_ApplyPublishesAndRecords(t *testing.T) {
	cache := imagecache.New()
	img := loadSolid(t, cache, "a.png", 8, 8, red)

	surface := &fakeSurface{}
	c := New(surface, 4)
	m := monitor.Monitor{Index: 1, X: 1920, Width: 16, Height: 9}

	require.NoError(t, c.Apply(m, img, DefaultOptions()))
	require.Len(t, surface.got, 1)
	assert.Equal(t, m, surface.got[0].monitor)
	assert.Equal(t, image.Rect(0, 0, 16, 9), surface.got[0].frame.Bounds())
	assert.Equal(t, 2, img.Refs())

	path, ok := c.Current(1)
	require.True(t, ok)
	assert.Equal(t, img.Path, path)
	assert.Equal(t, []int{1}, c.Showing(img.Path))

	// Same image, same geometry: nothing new is published.
	require.NoError(t, c.Apply(m, img, DefaultOptions()))
	assert.Len(t, surface.got, 1)
	assert.Equal(t, 2, img.Refs())

	// Different options re-render.
	require.NoError(t, c.Apply(m, img, Options{Mode: ModeFit, Background: blue}))
	assert.Len(t, surface.got, 2)
	assert.Equal(t, 2, img.Refs())
}

func Test_ApplyReplacesPreviousReference(t *testing.T) {
	cache := imagecache.New()
	a := loadSolid(t, cache, "a.png", 8, 8, red)
	b := loadSolid(t, cache, "b.png", 8, 8, blue)

	c := New(&fakeSurface{}, 0)
	m := monitor.Monitor{Index: 0, Width: 8, Height: 8}

	require.NoError(t, c.Apply(m, a, DefaultOptions()))
	require.NoError(t, c.Apply(m, b, DefaultOptions()))
	assert.Equal(t, 1, a.Refs())
	assert.Equal(t, 2, b.Refs())

	c.Reset()
	assert.Equal(t, 1, b.Refs())
	_, ok := c.Current(0)
	assert.False(t, ok)
}

func Test_ApplyRenderError(t *testing.T) {
	cache := imagecache.New()
	img := loadSolid(t, cache, "a.png", 8, 8, red)

	boom := errors.New("BadDrawable")
	c := New(&fakeSurface{err: boom}, 4)

	err := c.Apply(monitor.Monitor{Index: 2, Width: 8, Height: 8}, img, DefaultOptions())
	assert.ErrorIs(t, err, ErrRender)
	assert.ErrorIs(t, err, boom)
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Monitor)

	assert.Equal(t, 1, img.Refs())
	_, ok := c.Current(2)
	assert.False(t, ok)
}

func Test_ApplyReleasedImage(t *testing.T) {
	cache := imagecache.New()
	img := loadSolid(t, cache, "a.png", 8, 8, red)
	cache.Clear()

	c := New(&fakeSurface{}, 4)
	err := c.Apply(monitor.Monitor{Width: 8, Height: 8}, img, DefaultOptions())
	assert.ErrorIs(t, err, imagecache.ErrReleased)
}

func Test_FrameCacheReuseAndEviction(t *testing.T) {
	cache := imagecache.New()
	a := loadSolid(t, cache, "a.png", 4, 4, red)
	b := loadSolid(t, cache, "b.png", 4, 4, blue)

	surface := &fakeSurface{}
	c := New(surface, 2)
	m0 := monitor.Monitor{Index: 0, Width: 8, Height: 8}
	m1 := monitor.Monitor{Index: 1, X: 8, Width: 8, Height: 8}

	require.NoError(t, c.Apply(m0, a, DefaultOptions()))
	require.NoError(t, c.Apply(m1, a, DefaultOptions()))
	// Same size and image: the second monitor reuses the first frame.
	assert.Same(t, surface.got[0].frame, surface.got[1].frame)
	assert.Equal(t, 1, c.frames.len())

	require.NoError(t, c.Apply(m0, b, DefaultOptions()))
	assert.Equal(t, 2, c.frames.len())

	c.Forget(a.Path)
	assert.Equal(t, 1, c.frames.len())
}
