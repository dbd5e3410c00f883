// Package visualize renders debug overlays of the detected regions.
//
// Rendering is observability tooling: callers treat every error from Render as
// something to log, never as an analysis failure.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/pixel"
	"github.com/example/facetone/internal/segment"
)

var (
	faceColor  = color.NRGBA{G: 255, A: 255}
	hairColor  = color.NRGBA{R: 255, A: 255}
	lipsColor  = color.NRGBA{R: 255, G: 255, A: 255}
	pointColor = color.NRGBA{G: 255, A: 255}
)

const (
	lineWidth   = 2
	pointRadius = 2
	labelOffset = 10
)

// Renderer writes overlay images into Dir.
type Renderer struct {
	Dir string
	// Masks additionally traces the lip mask to an SVG next to the overlay.
	Masks bool

	logger *zap.Logger
	now    func() time.Time
}

// NewRenderer returns a renderer writing into dir. Masks is ignored unless the
// binary was built with the gotrace tag.
func NewRenderer(dir string, masks bool, logger *zap.Logger) *Renderer {
	logger = logger.Named("visualizer")
	if masks && !MaskTracing {
		logger.Warn("lip mask tracing is not compiled in; rebuild with -tags gotrace")
		masks = false
	}
	return &Renderer{Dir: dir, Masks: masks, logger: logger, now: time.Now}
}

// FileName returns the base name for an overlay rendered at t: the second-level
// timestamp plus a random suffix so renders within the same second do not collide.
func FileName(t time.Time) string {
	return fmt.Sprintf("%s_%s", t.Format("20060102_150405"), uuid.NewString()[:8])
}

// Render draws the face box, hair strip, lip points and padded lip box with
// labels and saves the result as JPEG. It returns the written path.
func (r *Renderer) Render(img *pixel.Image, face detector.BoundingBox, landmarks detector.LandmarkSet) (string, error) {
	if r.Dir == "" {
		return "", fmt.Errorf("visualizer: no output directory")
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating debug directory: %w", err)
	}

	canvas := img.NRGBA()

	faceRect := face.Rect()
	hairRect := segment.HairBox(face)
	lipRect := segment.LipBox(landmarks)

	strokeRect(canvas, faceRect, faceColor)
	strokeRect(canvas, hairRect, hairColor)
	for _, p := range landmarks.OuterLip() {
		fillCircle(canvas, p, pointRadius, pointColor)
	}
	strokeRect(canvas, lipRect, lipsColor)

	label(canvas, "Hair", hairRect.Min.X, hairRect.Min.Y-labelOffset, hairColor)
	label(canvas, "Face", faceRect.Min.X, faceRect.Min.Y-labelOffset, faceColor)
	label(canvas, "Lips", lipRect.Min.X, lipRect.Min.Y-labelOffset, lipsColor)

	name := FileName(r.now())
	path := filepath.Join(r.Dir, name+".jpg")
	if err := imaging.Save(canvas, path, imaging.JPEGQuality(95)); err != nil {
		return "", fmt.Errorf("saving overlay: %w", err)
	}

	if r.Masks {
		if err := r.traceLips(img, landmarks, filepath.Join(r.Dir, name+"_lips.svg")); err != nil {
			r.logger.Warn("lip mask tracing failed", zap.Error(err), zap.String("path", path))
		}
	}
	return path, nil
}

func (r *Renderer) traceLips(img *pixel.Image, landmarks detector.LandmarkSet, path string) error {
	lips, err := segment.LipRegion(img, landmarks)
	if err != nil {
		return err
	}
	svg, err := traceMask(lips.Mask.Gray())
	if err != nil {
		return err
	}
	return os.WriteFile(path, svg, 0o644)
}

// strokeRect draws a lineWidth outline on and inside r. Pixels outside dst are
// skipped by NRGBA.Set.
func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for i := 0; i < lineWidth; i++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			dst.SetNRGBA(x, r.Min.Y+i, c)
			dst.SetNRGBA(x, r.Max.Y-i, c)
		}
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			dst.SetNRGBA(r.Min.X+i, y, c)
			dst.SetNRGBA(r.Max.X-i, y, c)
		}
	}
}

func fillCircle(dst *image.NRGBA, centre image.Point, radius int, c color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				dst.SetNRGBA(centre.X+dx, centre.Y+dy, c)
			}
		}
	}
}

func label(dst *image.NRGBA, text string, x, y int, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
