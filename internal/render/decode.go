package render

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/png" // register PNG decoder for chromedp screenshot output
	"io"

	"github.com/anthonynsimon/bild/transform"
)

// newByteReader wraps a PNG byte slice as an io.Reader for image.Decode.
func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// decodePNGToRGB decodes a PNG screenshot and repacks it into a tightly
// packed RGB buffer of exactly w*h*3 bytes. chromedp's viewport capture
// is normally already w by h, but device pixel ratio and scrollbar
// rendering differences can shift it slightly; when that happens the
// captured image is resized to the requested viewport rather than
// cropped or padded, so every pixel of the destination still reflects
// real page content.
func decodePNGToRGB(pngBytes []byte, w, h int) ([]byte, error) {
	img, err := decodePNG(pngBytes)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	var rgba *image.RGBA
	if bounds.Dx() == w && bounds.Dy() == h {
		rgba = toRGBA(img)
	} else {
		rgba = transform.Resize(img, w, h, transform.Linear)
	}

	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := rgba.PixOffset(x, y)
			i := (y*w + x) * 3
			out[i], out[i+1], out[i+2] = rgba.Pix[o], rgba.Pix[o+1], rgba.Pix[o+2]
		}
	}
	return out, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

func decodePNG(b []byte) (image.Image, error) {
	img, _, err := image.Decode(newByteReader(b))
	if err != nil {
		return nil, err
	}
	return img, nil
}
