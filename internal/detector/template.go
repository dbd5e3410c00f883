package detector

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/example/facetone/internal/pixel"
)

// TemplateLandmarks places a canonical frontal face shape inside the box. It
// needs no model. PigoLandmarks starts from it and falls back to it.
type TemplateLandmarks struct{}

// Extract implements LandmarkExtractor.
func (TemplateLandmarks) Extract(ctx context.Context, _ *pixel.Image, face BoundingBox) (LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return LandmarkSet{}, err
	}
	if face.Empty() {
		return LandmarkSet{}, fmt.Errorf("template landmarks: empty face box %+v", face)
	}

	var set LandmarkSet
	w := float64(face.Width())
	h := float64(face.Height())
	for i, p := range canonicalShape {
		set[i] = image.Pt(
			face.Left+int(math.Round(p[0]*w)),
			face.Top+int(math.Round(p[1]*h)),
		)
	}
	return set, nil
}

// canonicalShape is the 68-point layout in box-relative coordinates.
var canonicalShape = buildCanonicalShape()

func buildCanonicalShape() [LandmarkCount][2]float64 {
	var s [LandmarkCount][2]float64

	// 0-16 jaw, ear to ear through the chin
	for i := 0; i <= 16; i++ {
		a := math.Pi * float64(i) / 16
		s[i] = [2]float64{0.5 - 0.5*math.Cos(a), 0.25 + 0.75*math.Sin(a)}
	}

	// 17-21 and 22-26 brows
	for i := 0; i < 5; i++ {
		t := float64(i) / 4
		y := 0.2 - 0.05*math.Sin(math.Pi*t)
		s[17+i] = [2]float64{0.12 + 0.3*t, y}
		s[22+i] = [2]float64{0.58 + 0.3*t, y}
	}

	// 27-30 bridge, 31-35 nostrils
	for i := 0; i < 4; i++ {
		s[27+i] = [2]float64{0.5, 0.3 + 0.25*float64(i)/3}
	}
	for i := 0; i < 5; i++ {
		x := 0.4 + 0.05*float64(i)
		s[31+i] = [2]float64{x, 0.62 + 0.02*math.Sin(math.Pi*float64(i)/4)}
	}

	// 36-41 and 42-47 eyes, each starting at its leftmost corner
	ring(s[36:42], 0.3, 0.33, 0.08, 0.03)
	ring(s[42:48], 0.7, 0.33, 0.08, 0.03)

	// 48-59 outer lip, 60-67 inner lip; 48 and 54 are the mouth corners
	ring(s[48:60], 0.5, 0.8, 0.18, 0.07)
	ring(s[60:68], 0.5, 0.8, 0.12, 0.03)

	return s
}

// ring lays points clockwise (in image coordinates) around an ellipse starting
// from the leftmost point.
func ring(dst [][2]float64, cx, cy, rx, ry float64) {
	n := float64(len(dst))
	for k := range dst {
		a := math.Pi - 2*math.Pi*float64(k)/n
		dst[k] = [2]float64{cx + rx*math.Cos(a), cy - ry*math.Sin(a)}
	}
}
