// Package pixel holds the raster types shared by the analysis pipeline.
//
// Every Image in this package stores its samples in RGB order. Conversions to and
// from the standard library image types happen only through Decode, FromImage and
// NRGBA so the channel order never changes implicitly.
package pixel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ChannelOrder names the layout of the three samples of a pixel.
type ChannelOrder string

// RGB is the only channel order used inside the pipeline.
const RGB ChannelOrder = "RGB"

// Color is an 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

// Black is returned for empty samples.
var Black = Color{}

// Sum returns the sum of the three channels.
func (c Color) Sum() int {
	return int(c.R) + int(c.G) + int(c.B)
}

// RGBA implements color.Color so a Color can be handed to drawing code.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

// Image is a 3-channel raster with origin (0,0).
type Image struct {
	Width  int
	Height int
	Stride int
	Pix    []uint8
}

// New allocates a black image.
func New(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Width:  width,
		Height: height,
		Stride: width * 3,
		Pix:    make([]uint8, width*height*3),
	}
}

// Order reports the channel order of the raster.
func (m *Image) Order() ChannelOrder { return RGB }

// Bounds returns the full image rectangle.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At returns the pixel at (x, y). Out of range coordinates return Black.
func (m *Image) At(x, y int) Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return Black
	}
	i := y*m.Stride + x*3
	return Color{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2]}
}

// Set writes the pixel at (x, y). Out of range coordinates are ignored.
func (m *Image) Set(x, y int, c Color) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	i := y*m.Stride + x*3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = c.R, c.G, c.B
}

// Fill paints r (clamped to the image) with c.
func (m *Image) Fill(r image.Rectangle, c Color) {
	r = Clamp(r, m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, c)
		}
	}
}

// Sub copies the part of the image inside r. The rectangle is clamped first, so
// the result may be empty but is never out of range.
func (m *Image) Sub(r image.Rectangle) *Image {
	r = Clamp(r, m.Bounds())
	out := New(r.Dx(), r.Dy())
	for y := 0; y < out.Height; y++ {
		src := (r.Min.Y+y)*m.Stride + r.Min.X*3
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], m.Pix[src:src+out.Stride])
	}
	return out
}

// NRGBA converts the raster to an opaque *image.NRGBA.
func (m *Image) NRGBA() *image.NRGBA {
	out := image.NewNRGBA(m.Bounds())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*m.Stride + x*3
			j := out.PixOffset(x, y)
			out.Pix[j] = m.Pix[i]
			out.Pix[j+1] = m.Pix[i+1]
			out.Pix[j+2] = m.Pix[i+2]
			out.Pix[j+3] = 0xff
		}
	}
	return out
}

// FromImage converts any image to an RGB raster anchored at (0,0). Alpha is
// discarded after un-premultiplying.
func FromImage(src image.Image) *Image {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	out := New(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			j := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
			i := y*out.Stride + x*3
			out.Pix[i] = nrgba.Pix[j]
			out.Pix[i+1] = nrgba.Pix[j+1]
			out.Pix[i+2] = nrgba.Pix[j+2]
		}
	}
	return out
}

// Decode reads an encoded photo, honours its EXIF orientation and returns it in
// RGB order.
func Decode(raw []byte) (*Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decoding image: empty input")
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	out := FromImage(img)
	if out.Width == 0 || out.Height == 0 {
		return nil, fmt.Errorf("decoding image: zero-sized raster")
	}
	return out, nil
}

// Clamp restricts r to bounds. Non-canonical rectangles (Min beyond Max) are not
// swapped; they collapse to image.ZR like any other empty intersection.
func Clamp(r, bounds image.Rectangle) image.Rectangle {
	if r.Min.X < bounds.Min.X {
		r.Min.X = bounds.Min.X
	}
	if r.Min.Y < bounds.Min.Y {
		r.Min.Y = bounds.Min.Y
	}
	if r.Max.X > bounds.Max.X {
		r.Max.X = bounds.Max.X
	}
	if r.Max.Y > bounds.Max.Y {
		r.Max.Y = bounds.Max.Y
	}
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return image.ZR
	}
	return r
}
