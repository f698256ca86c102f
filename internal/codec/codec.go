// Package codec converts an RGB pixel buffer into the four e-ink wire
// encodings (mono, 2-bit palette, 8-bit grayscale, 24-bit raw) and frames
// them as canonical PBM/PGM/PPM tiles.
package codec

import (
	"fmt"
	"image"
	"image/color"

	"github.com/makeworld-the-better-one/dither/v2"
)

// Plane is the fully-encoded source buffer for one Mode, computed once
// per Snapshot so that dithering (which is stateful across rows) is
// applied before any tile is sliced out of it. A pixel encodes the same
// way whichever tile contains it. Because each tile row is padded to a
// whole byte, the bodies of two horizontally adjacent tiles concatenate
// to the body of their union only when the boundary falls on a byte
// boundary: every 8 pixels for mono, every 4 for 2-bit, any pixel for
// 8- and 24-bit.
type Plane struct {
	Mode Mode
	W, H int

	// Pixels holds one entry per source pixel, in row-major order.
	// Semantics depend on Mode.Char:
	//   'B': 0 or 1 (1 = black bit set)
	//   'G': 0-255 luminance
	//   'R': 0-3 index into fourColorPalette
	//   'C': raw RGB triplets (len == W*H*3)
	Pixels []byte
}

// fourColorPalette is the fixed four-color palette for mode R: black,
// white, red, blue, in that order.
var fourColorPalette = []color.Color{
	color.RGBA{0, 0, 0, 255},
	color.RGBA{255, 255, 255, 255},
	color.RGBA{255, 0, 0, 255},
	color.RGBA{0, 0, 255, 255},
}

// EncodePlane computes the full-buffer Plane for mode from a tightly
// packed RGB source buffer of the given dimensions.
func EncodePlane(src []byte, w, h int, mode Mode) (*Plane, error) {
	if mode.Width != w || mode.Height != h {
		return nil, fmt.Errorf("codec: %w: mode %s does not match buffer %dx%d", ErrInvalidMode, mode, w, h)
	}
	if len(src) != w*h*3 {
		return nil, fmt.Errorf("codec: source buffer has %d bytes, want %d for %dx%d RGB", len(src), w*h*3, w, h)
	}

	switch mode.Char {
	case 'B':
		return encodeMono(src, w, h, mode)
	case 'G':
		return encodeGray(src, w, h, mode), nil
	case 'R':
		return encodePalette(src, w, h, mode), nil
	case 'C':
		return &Plane{Mode: mode, W: w, H: h, Pixels: append([]byte(nil), src...)}, nil
	default:
		return nil, fmt.Errorf("codec: %w: unknown mode char %c", ErrInvalidMode, mode.Char)
	}
}

func luminance(r, g, b byte) byte {
	y := (299*int(r) + 587*int(g) + 114*int(b)) / 1000
	if y > 255 {
		y = 255
	}
	return byte(y)
}

func encodeGray(src []byte, w, h int, mode Mode) *Plane {
	pix := make([]byte, w*h)
	for i := 0; i < w*h; i++ {
		o := i * 3
		pix[i] = luminance(src[o], src[o+1], src[o+2])
	}
	return &Plane{Mode: mode, W: w, H: h, Pixels: pix}
}

// encodeMono applies Floyd-Steinberg error diffusion (via dither/v2) over
// the full luminance buffer, then records one 0/1 byte per source pixel:
// 1 means the pixel dithered to black.
func encodeMono(src []byte, w, h int, mode Mode) (*Plane, error) {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		o := i * 3
		gray.Pix[i] = luminance(src[o], src[o+1], src[o+2])
	}

	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Serpentine = true
	d.Matrix = dither.FloydSteinberg

	dithered := d.Dither(gray)

	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := dithered.At(x, y).RGBA()
			if r == 0 {
				pix[y*w+x] = 1
			}
		}
	}
	return &Plane{Mode: mode, W: w, H: h, Pixels: pix}, nil
}

// encodePalette performs nearest-neighbor quantization to the fixed
// four-color palette, ties broken toward the earlier palette entry (so
// any tie involving black resolves to black).
func encodePalette(src []byte, w, h int, mode Mode) *Plane {
	pix := make([]byte, w*h)
	for i := 0; i < w*h; i++ {
		o := i * 3
		pix[i] = byte(nearestPaletteIndex(src[o], src[o+1], src[o+2]))
	}
	return &Plane{Mode: mode, W: w, H: h, Pixels: pix}
}

// nearestPaletteIndex finds the closest palette entry by squared Euclidean
// distance. A tie (strict equality, never beaten by "<") keeps the
// earlier palette entry; fourColorPalette lists black first, so a tie
// with black resolves toward black.
func nearestPaletteIndex(r, g, b byte) int {
	best := 0
	bestDist := int64(-1)
	for idx, c := range fourColorPalette {
		pr, pg, pb, _ := c.RGBA()
		// color.Color.RGBA returns 16-bit channels; downshift to 8-bit
		// to compare against the source byte triplet directly.
		dr := int64(r) - int64(pr>>8)
		dg := int64(g) - int64(pg>>8)
		db := int64(b) - int64(pb>>8)
		dist := dr*dr + dg*dg + db*db
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = idx
		}
	}
	return best
}

// ExtractTile slices rect out of the plane and returns the header-framed
// tile bytes in the canonical PBM/PGM/PPM encoding for p.Mode.
func ExtractTile(p *Plane, rect Rect) ([]byte, error) {
	if err := rect.validate(p.W, p.H); err != nil {
		return nil, err
	}

	switch p.Mode.Char {
	case 'B':
		return frameMono(p, rect), nil
	case 'G':
		return frameGray(p, rect), nil
	case 'R':
		return framePalette(p, rect), nil
	case 'C':
		return frameRGB(p, rect), nil
	default:
		return nil, fmt.Errorf("codec: %w: unknown mode char %c", ErrInvalidMode, p.Mode.Char)
	}
}

// Rect is an axis-aligned sub-rectangle of a Plane.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) validate(planeW, planeH int) error {
	if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("codec: %w: negative or empty rect %+v", ErrInvalidRect, r)
	}
	if r.X+r.W > planeW || r.Y+r.H > planeH {
		return fmt.Errorf("codec: %w: rect %+v exceeds %dx%d bounds", ErrInvalidRect, r, planeW, planeH)
	}
	return nil
}

func frameMono(p *Plane, r Rect) []byte {
	stride := (r.W + 7) / 8
	header := fmt.Sprintf("P4\n%d %d\n", r.W, r.H)
	out := make([]byte, 0, len(header)+stride*r.H)
	out = append(out, header...)

	for y := 0; y < r.H; y++ {
		row := make([]byte, stride)
		for x := 0; x < r.W; x++ {
			if p.Pixels[(r.Y+y)*p.W+(r.X+x)] == 1 {
				row[x/8] |= 1 << (7 - uint(x%8))
			}
		}
		out = append(out, row...)
	}
	return out
}

func framePalette(p *Plane, r Rect) []byte {
	stride := (r.W + 3) / 4
	header := fmt.Sprintf("P5\n%d %d\n3\n", r.W, r.H)
	out := make([]byte, 0, len(header)+stride*r.H)
	out = append(out, header...)

	for y := 0; y < r.H; y++ {
		row := make([]byte, stride)
		for x := 0; x < r.W; x++ {
			idx := p.Pixels[(r.Y+y)*p.W+(r.X+x)] & 0x3
			shift := uint(6 - 2*(x%4))
			row[x/4] |= idx << shift
		}
		out = append(out, row...)
	}
	return out
}

func frameGray(p *Plane, r Rect) []byte {
	header := fmt.Sprintf("P5\n%d %d\n255\n", r.W, r.H)
	out := make([]byte, 0, len(header)+r.W*r.H)
	out = append(out, header...)
	for y := 0; y < r.H; y++ {
		start := (r.Y+y)*p.W + r.X
		out = append(out, p.Pixels[start:start+r.W]...)
	}
	return out
}

func frameRGB(p *Plane, r Rect) []byte {
	header := fmt.Sprintf("P6\n%d %d\n255\n", r.W, r.H)
	out := make([]byte, 0, len(header)+r.W*r.H*3)
	out = append(out, header...)
	for y := 0; y < r.H; y++ {
		start := ((r.Y+y)*p.W + r.X) * 3
		out = append(out, p.Pixels[start:start+r.W*3]...)
	}
	return out
}
