package detector

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"

	"github.com/example/facetone/internal/pixel"
)

// Lip cascades of pigo's lps set. Names follow the MPEG-4 facial feature
// points: 8.1 top of the outer upper lip, 8.2 bottom of the outer lower lip,
// 8.4 a mouth corner. The mirrored lp84 run finds the opposite corner.
const (
	upperLipCascade  = "lp81"
	lowerLipCascade  = "lp82"
	lipCornerCascade = "lp84"
)

// perturbs is the number of jittered runs whose median each localization takes.
const perturbs = 63

// innerFromOuter maps inner lip points 60-67 to the outer point each one is
// pulled in from.
var innerFromOuter = [8]int{48, 50, 51, 52, 54, 56, 57, 58}

// innerLipScale is how far inner lip points sit from the mouth centre relative
// to their outer point.
const innerLipScale = 0.6

// mouthPoints are the four lip keypoints located in the image.
type mouthPoints struct {
	left, right, upper, lower image.Point
}

// PigoLandmarks locates the mouth with pigo's pupil and facial landmark point
// cascades and fits the lip contour through it. The remaining points come from
// the template shape, and so does the whole set when the mouth cannot be found.
type PigoLandmarks struct {
	find     func(img pigo.ImageParams, face BoundingBox) (mouthPoints, bool)
	template TemplateLandmarks
}

type lipCascades struct {
	pupils, corner, upper, lower *pigo.PuplocCascade
}

// NewPigoLandmarks unpacks the puploc cascade and loads the lip cascades from
// lipDir.
func NewPigoLandmarks(puploc []byte, lipDir string) (lm *PigoLandmarks, err error) {
	if len(puploc) == 0 {
		return nil, fmt.Errorf("unpacking pupil cascade: empty model")
	}
	defer func() {
		if r := recover(); r != nil {
			lm, err = nil, fmt.Errorf("unpacking landmark cascades: malformed model: %v", r)
		}
	}()

	plc := pigo.NewPuplocCascade()
	pupils, err := plc.UnpackCascade(puploc)
	if err != nil {
		return nil, fmt.Errorf("unpacking pupil cascade: %w", err)
	}

	c := &lipCascades{pupils: pupils}
	for name, dst := range map[string]**pigo.PuplocCascade{
		lipCornerCascade: &c.corner,
		upperLipCascade:  &c.upper,
		lowerLipCascade:  &c.lower,
	} {
		flp, err := plc.UnpackFlp(filepath.Join(lipDir, name))
		if err != nil {
			return nil, fmt.Errorf("unpacking lip cascade %s: %w", name, err)
		}
		*dst = flp
	}
	return &PigoLandmarks{find: c.mouth}, nil
}

// LoadPigoLandmarks reads the puploc cascade at puplocPath and the lps cascades
// in lipDir.
func LoadPigoLandmarks(puplocPath, lipDir string) (*PigoLandmarks, error) {
	model, err := os.ReadFile(puplocPath)
	if err != nil {
		return nil, fmt.Errorf("reading pupil cascade: %w", err)
	}
	return NewPigoLandmarks(model, lipDir)
}

// Extract implements LandmarkExtractor.
func (l *PigoLandmarks) Extract(ctx context.Context, img *pixel.Image, face BoundingBox) (LandmarkSet, error) {
	set, err := l.template.Extract(ctx, img, face)
	if err != nil {
		return set, err
	}
	if img == nil || img.Width == 0 || img.Height == 0 {
		return set, nil
	}

	params := pigo.ImageParams{
		Pixels: pigo.RgbToGrayscale(img.NRGBA()),
		Rows:   img.Height,
		Cols:   img.Width,
		Dim:    img.Width,
	}
	m, ok := l.find(params, face)
	if !ok || !m.inside(face) {
		return set, nil
	}
	fitLips(&set, m)
	return set, nil
}

// mouth runs the pupil cascade from the usual eye offsets of a pigo face
// detection, then the lip cascades from the two pupils.
func (c *lipCascades) mouth(img pigo.ImageParams, face BoundingBox) (mouthPoints, bool) {
	scale := float32(face.Width())
	row := face.Top + face.Height()/2
	col := face.Left + face.Width()/2

	left := c.pupils.RunDetector(pigo.Puploc{
		Row:      row - int(0.075*scale),
		Col:      col - int(0.175*scale),
		Scale:    scale * 0.25,
		Perturbs: perturbs,
	}, img, 0.0, false)
	right := c.pupils.RunDetector(pigo.Puploc{
		Row:      row - int(0.075*scale),
		Col:      col + int(0.185*scale),
		Scale:    scale * 0.25,
		Perturbs: perturbs,
	}, img, 0.0, false)
	if !located(left) || !located(right) {
		return mouthPoints{}, false
	}

	pts := [4]*pigo.Puploc{
		c.corner.GetLandmarkPoint(left, right, img, perturbs, false),
		c.corner.GetLandmarkPoint(left, right, img, perturbs, true),
		c.upper.GetLandmarkPoint(left, right, img, perturbs, false),
		c.lower.GetLandmarkPoint(left, right, img, perturbs, false),
	}
	for _, p := range pts {
		if !located(p) {
			return mouthPoints{}, false
		}
	}
	return mouthPoints{
		left:  image.Pt(pts[0].Col, pts[0].Row),
		right: image.Pt(pts[1].Col, pts[1].Row),
		upper: image.Pt(pts[2].Col, pts[2].Row),
		lower: image.Pt(pts[3].Col, pts[3].Row),
	}, true
}

func located(p *pigo.Puploc) bool {
	return p != nil && p.Row > 0 && p.Col > 0
}

func (m mouthPoints) inside(face BoundingBox) bool {
	r := face.Rect()
	for _, p := range [4]image.Point{m.left, m.right, m.upper, m.lower} {
		if p.X < r.Min.X || p.X > r.Max.X || p.Y < r.Min.Y || p.Y > r.Max.Y {
			return false
		}
	}
	return m.left.X != m.right.X
}

// fitLips replaces the lip points of set with curves through the located mouth:
// 48-54 run from the left corner over the upper lip to the right corner, 55-59
// return under the lower lip, and 60-67 are the outer points pulled towards
// the mouth centre.
func fitLips(set *LandmarkSet, m mouthPoints) {
	if m.left.X > m.right.X {
		m.left, m.right = m.right, m.left
	}
	if m.upper.Y > m.lower.Y {
		m.upper, m.lower = m.lower, m.upper
	}

	for k := 0; k <= 6; k++ {
		set[OuterLipFirst+k] = throughPoint(m.left, m.upper, m.right, float64(k)/6)
	}
	for k := 1; k < 6; k++ {
		set[OuterLipFirst+6+k] = throughPoint(m.right, m.lower, m.left, float64(k)/6)
	}

	var cx, cy float64
	for i := OuterLipFirst; i <= OuterLipLast; i++ {
		cx += float64(set[i].X)
		cy += float64(set[i].Y)
	}
	n := float64(OuterLipLast - OuterLipFirst + 1)
	cx, cy = cx/n, cy/n
	for i, o := range innerFromOuter {
		set[OuterLipLast+1+i] = image.Pt(
			int(math.Round(cx+innerLipScale*(float64(set[o].X)-cx))),
			int(math.Round(cy+innerLipScale*(float64(set[o].Y)-cy))),
		)
	}
}

// throughPoint evaluates at t the quadratic curve from a to b that passes
// through mid at t = 0.5.
func throughPoint(a, mid, b image.Point, t float64) image.Point {
	cx := 2*float64(mid.X) - float64(a.X+b.X)/2
	cy := 2*float64(mid.Y) - float64(a.Y+b.Y)/2
	u := 1 - t
	return image.Pt(
		int(math.Round(u*u*float64(a.X)+2*u*t*cx+t*t*float64(b.X))),
		int(math.Round(u*u*float64(a.Y)+2*u*t*cy+t*t*float64(b.Y))),
	)
}
