package x11

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FormatFor(t *testing.T) {
	formats := []xproto.Format{
		{Depth: 1, BitsPerPixel: 1, ScanlinePad: 32},
		{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32},
	}

	f, err := formatFor(formats, 24)
	require.NoError(t, err)
	assert.Equal(t, pixmapFormat{depth: 24, bitsPerPixel: 32, scanlinePad: 32}, f)

	_, err = formatFor(formats, 16)
	assert.Error(t, err)
}

func Test_EncodeZPixmap32(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff})
	img.SetRGBA(1, 0, color.RGBA{R: 0x44, G: 0x55, B: 0x66, A: 0xff})

	data, stride, err := encodeZPixmap(img, pixmapFormat{depth: 24, bitsPerPixel: 32, scanlinePad: 32})
	require.NoError(t, err)
	assert.Equal(t, 8, stride)
	assert.Equal(t, []byte{0x33, 0x22, 0x11, 0, 0x66, 0x55, 0x44, 0}, data)
}

func Test_EncodeZPixmapDepth32KeepsAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 0x80})

	data, _, err := encodeZPixmap(img, pixmapFormat{depth: 32, bitsPerPixel: 32, scanlinePad: 32})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 0x80}, data)
}

func Test_EncodeZPixmap24PadsScanlines(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff})
		}
	}

	data, stride, err := encodeZPixmap(img, pixmapFormat{depth: 24, bitsPerPixel: 24, scanlinePad: 32})
	require.NoError(t, err)
	// 3 pixels * 3 bytes = 9, padded to 12.
	assert.Equal(t, 12, stride)
	require.Len(t, data, 24)
	assert.Equal(t, []byte{0xcc, 0xbb, 0xaa}, data[0:3])
	assert.Equal(t, []byte{0, 0, 0}, data[9:12])
	assert.Equal(t, []byte{0xcc, 0xbb, 0xaa}, data[12:15])
}

func Test_EncodeZPixmapSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 2, color.RGBA{R: 9, G: 8, B: 7, A: 0xff})
	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	data, stride, err := encodeZPixmap(sub, pixmapFormat{depth: 24, bitsPerPixel: 32, scanlinePad: 32})
	require.NoError(t, err)
	assert.Equal(t, 8, stride)
	assert.Equal(t, []byte{7, 8, 9, 0}, data[0:4])
}

func Test_EncodeZPixmapUnsupported(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	_, _, err := encodeZPixmap(img, pixmapFormat{depth: 16, bitsPerPixel: 16, scanlinePad: 32})
	assert.Error(t, err)
}

func Test_RowsPerRequest(t *testing.T) {
	// 65535 units is the core protocol maximum: 262140 bytes.
	assert.Equal(t, (65535*4-putImageHeader)/7680, rowsPerRequest(7680, 65535))
	// A scanline larger than the budget still goes one row at a time.
	assert.Equal(t, 1, rowsPerRequest(1<<20, 65535))
	assert.Equal(t, 1, rowsPerRequest(0, 65535))
}

func Test_BandsCoverEveryRow(t *testing.T) {
	const stride, height = 4, 10
	data := make([]byte, stride*height)
	for i := range data {
		data[i] = byte(i / stride)
	}

	strips := bands(data, stride, height, 3)
	require.Len(t, strips, 4)

	next := 0
	for _, b := range strips {
		assert.Equal(t, next, b.y)
		assert.Len(t, b.data, b.rows*stride)
		assert.Equal(t, byte(b.y), b.data[0])
		next += b.rows
	}
	assert.Equal(t, height, next)
	assert.Equal(t, 1, strips[3].rows)
}

func Test_DecodeCardinals(t *testing.T) {
	value := []byte{3, 0, 0, 0, 1, 1, 0, 0}
	assert.Equal(t, []uint32{3, 257}, decodeCardinals(value, 2))
	// A short reply never reads past the value.
	assert.Equal(t, []uint32{3}, decodeCardinals(value[:6], 2))
	assert.Equal(t, []uint32{5, 5, 5}, broadcast(5, 3))
}

type fakeCookie struct {
	err     error
	checked bool
}

func (c *fakeCookie) Check() error {
	c.checked = true
	return c.err
}

func Test_CheckAllReportsEarlyStripFailure(t *testing.T) {
	badLength := errors.New("BadLength")
	cookies := []*fakeCookie{{err: badLength}, {}, {err: errors.New("BadMatch")}}
	checks := make([]checker, len(cookies))
	for i, c := range cookies {
		checks[i] = c
	}

	assert.ErrorIs(t, checkAll(checks), badLength)
	for i, c := range cookies {
		assert.True(t, c.checked, "cookie %d not drained", i)
	}

	assert.NoError(t, checkAll([]checker{&fakeCookie{}, &fakeCookie{}}))
	assert.NoError(t, checkAll(nil))
}
