package pixel

import (
	"image"

	"golang.org/x/image/vector"
)

// Mask is a binary raster with the dimensions of the image it was built for.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

// NewMask returns an empty mask for an image of the given size.
func NewMask(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{Width: width, Height: height, bits: make([]bool, width*height)}
}

// Bounds returns the mask rectangle.
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Set selects (x, y). Out of range coordinates are ignored.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.bits[y*m.Width+x] = true
}

// Has reports whether (x, y) is selected.
func (m *Mask) Has(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Count returns the number of selected pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Gray renders the mask as 0/255 grayscale.
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(m.Bounds())
	for i, b := range m.bits {
		if b {
			g.Pix[(i/m.Width)*g.Stride+i%m.Width] = 0xff
		}
	}
	return g
}

// FillPolygon selects every pixel whose centre lies inside or on the closed
// polygon through pts. Vertices address pixel centres, so (x, y) covers the
// pixel at column x, row y. Fewer than three points, or a polygon with no area,
// select nothing.
func (m *Mask) FillPolygon(pts []image.Point) {
	if len(pts) < 3 || doubleArea(pts) == 0 {
		return
	}
	box := PointsBounds(pts)
	// one extra pixel on each far edge for the half-pixel shift
	box.Max = box.Max.Add(image.Pt(1, 1))
	if Clamp(box, m.Bounds()).Empty() {
		return
	}

	r := vector.NewRasterizer(box.Dx(), box.Dy())
	for i, p := range pts {
		x := float32(p.X-box.Min.X) + 0.5
		y := float32(p.Y-box.Min.Y) + 0.5
		if i == 0 {
			r.MoveTo(x, y)
			continue
		}
		r.LineTo(x, y)
	}
	r.ClosePath()

	coverage := image.NewAlpha(image.Rect(0, 0, box.Dx(), box.Dy()))
	r.Draw(coverage, coverage.Bounds(), image.Opaque, image.Point{})
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			if coverage.Pix[y*coverage.Stride+x] >= halfCoverage {
				m.Set(box.Min.X+x, box.Min.Y+y)
			}
		}
	}
	// vertices and edge-aligned pixels are only partly covered
	for i, p := range pts {
		m.setSegment(p, pts[(i+1)%len(pts)])
	}
}

// halfCoverage is the rasterizer alpha of a pixel cut through its centre.
const halfCoverage = 0x7f

// setSegment selects the pixels whose centres lie exactly on the segment a-b.
func (m *Mask) setSegment(a, b image.Point) {
	d := b.Sub(a)
	n := gcd(abs(d.X), abs(d.Y))
	if n == 0 {
		m.Set(a.X, a.Y)
		return
	}
	step := image.Pt(d.X/n, d.Y/n)
	for k := 0; k <= n; k++ {
		m.Set(a.X+k*step.X, a.Y+k*step.Y)
	}
}

func doubleArea(pts []image.Point) int {
	var a int
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PointsBounds returns the tight rectangle whose Min is the smallest point and
// whose Max is the largest point (inclusive extreme, not one past it).
func PointsBounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.ZR
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	return r
}
