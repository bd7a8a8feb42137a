package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// putImageHeader is the fixed size of a PutImage request in bytes.
const putImageHeader = 24

// pixmapFormat describes how the server lays out pixels of one depth.
type pixmapFormat struct {
	depth        byte
	bitsPerPixel byte
	scanlinePad  byte
}

// formatFor finds the ZPixmap format the server uses for depth.
func formatFor(formats []xproto.Format, depth byte) (pixmapFormat, error) {
	for _, f := range formats {
		if f.Depth == depth {
			return pixmapFormat{
				depth:        depth,
				bitsPerPixel: f.BitsPerPixel,
				scanlinePad:  f.ScanlinePad,
			}, nil
		}
	}
	return pixmapFormat{}, fmt.Errorf("no pixmap format for depth %d", depth)
}

// stride is the padded length of one scanline of width pixels.
func (f pixmapFormat) stride(width int) int {
	unpadded := width * int(f.bitsPerPixel) / 8
	pad := int(f.scanlinePad) / 8
	if pad <= 1 {
		return unpadded
	}
	return (unpadded + pad - 1) / pad * pad
}

// encodeZPixmap converts img to the server's ZPixmap layout. Only 24 and
// 32 bits per pixel are supported; the channels are written BGR(x), which
// matches the usual TrueColor masks on little-endian servers.
func encodeZPixmap(img *image.RGBA, f pixmapFormat) ([]byte, int, error) {
	bpp := int(f.bitsPerPixel) / 8
	if bpp != 3 && bpp != 4 {
		return nil, 0, fmt.Errorf("unsupported bits per pixel: %d", f.bitsPerPixel)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := f.stride(w)
	data := make([]byte, stride*h)

	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := data[y*stride:]
		for x := 0; x < w; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*bpp : x*bpp+bpp]
			d[0] = s[2]
			d[1] = s[1]
			d[2] = s[0]
			if bpp == 4 && f.depth == 32 {
				d[3] = s[3]
			}
		}
	}
	return data, stride, nil
}

// rowsPerRequest returns how many scanlines fit into one PutImage request
// under the server's maximum request length (in 4-byte units).
func rowsPerRequest(stride int, maxRequestUnits uint16) int {
	budget := int(maxRequestUnits)*4 - putImageHeader
	if stride <= 0 || budget < stride {
		return 1
	}
	return budget / stride
}

// band is one horizontal strip of a ZPixmap.
type band struct {
	y, rows int
	data    []byte
}

// bands splits ZPixmap data into strips of at most rows scanlines.
func bands(data []byte, stride, height, rows int) []band {
	if rows < 1 {
		rows = 1
	}
	out := make([]band, 0, (height+rows-1)/rows)
	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		out = append(out, band{y: y, rows: n, data: data[y*stride : (y+n)*stride]})
	}
	return out
}
