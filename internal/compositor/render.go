package compositor

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// Mode is the policy for fitting an image into a monitor region whose size
// differs from the image's.
type Mode int

const (
	// ModeStretch scales the image to the exact region, ignoring aspect.
	ModeStretch Mode = iota
	// ModeCenter draws the image at native size, centred and cropped.
	ModeCenter
	// ModeFit scales preserving aspect so the whole image is visible,
	// letterboxed over the background colour.
	ModeFit
	// ModeTile repeats the image at native size, centred on the region.
	ModeTile
)

func (m Mode) String() string {
	switch m {
	case ModeStretch:
		return "stretch"
	case ModeCenter:
		return "center"
	case ModeFit:
		return "fit"
	case ModeTile:
		return "tile"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "stretch", "center", "fit" and "tile", plus the aliases
// "fill" (stretch) and "full" (fit). An empty string means stretch.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stretch", "fill":
		return ModeStretch, nil
	case "center", "centre":
		return ModeCenter, nil
	case "fit", "full":
		return ModeFit, nil
	case "tile":
		return ModeTile, nil
	default:
		return 0, fmt.Errorf("unknown wallpaper mode %q (use stretch, center, fit or tile)", s)
	}
}

// ParseColor reads "#rrggbb", "rrggbb" or "0xrrggbb". Empty means black.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return color.RGBA{A: 0xff}, nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}

// Options controls how one wallpaper is rendered.
type Options struct {
	Mode       Mode
	Background color.RGBA
}

// DefaultOptions stretches over black.
func DefaultOptions() Options {
	return Options{Mode: ModeStretch, Background: color.RGBA{A: 0xff}}
}

// Render draws src into a new width x height frame according to opts.
func Render(src image.Image, width, height int, opts Options) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 || width == 0 || height == 0 {
		return dst
	}

	switch opts.Mode {
	case ModeCenter:
		left := (width - sw) / 2
		top := (height - sh) / 2
		r := image.Rect(left, top, left+sw, top+sh)
		draw.Draw(dst, r, src, sb.Min, draw.Over)
	case ModeFit:
		scale := float64(width) / float64(sw)
		if int(float64(sh)*scale) > height {
			scale = float64(height) / float64(sh)
		}
		w := int(float64(sw) * scale)
		h := int(float64(sh) * scale)
		left := (width - w) / 2
		top := (height - h) / 2
		scaleInto(dst, image.Rect(left, top, left+w, top+h), src)
	case ModeTile:
		left := (width - sw) / 2
		top := (height - sh) / 2
		for left > 0 {
			left -= sw
		}
		for top > 0 {
			top -= sh
		}
		for x := left; x < width; x += sw {
			for y := top; y < height; y += sh {
				draw.Draw(dst, image.Rect(x, y, x+sw, y+sh), src, sb.Min, draw.Over)
			}
		}
	default:
		scaleInto(dst, dst.Bounds(), src)
	}
	return dst
}

func scaleInto(dst *image.RGBA, r image.Rectangle, src image.Image) {
	if r.Dx() == src.Bounds().Dx() && r.Dy() == src.Bounds().Dy() {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
		return
	}
	draw.BiLinear.Scale(dst, r, src, src.Bounds(), draw.Over, nil)
}
