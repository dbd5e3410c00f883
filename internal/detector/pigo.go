package detector

import (
	"context"
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/example/facetone/internal/pixel"
)

// Tuning holds the pigo cascade parameters.
type Tuning struct {
	MinSizePct   float64 // smallest face as a percentage of the shorter image side
	ShiftFactor  float64 // sliding window stride
	ScaleFactor  float64 // pyramid step
	IoUThreshold float64 // detection clustering
	MinQuality   float32 // detections below this score are dropped
}

// DefaultTuning mirrors the values pigo's own examples use for portraits.
func DefaultTuning() Tuning {
	return Tuning{
		MinSizePct:   10,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// PigoLocator runs a pigo face cascade.
type PigoLocator struct {
	classifier *pigo.Pigo
	tuning     Tuning
}

// NewPigoLocator unpacks a facefinder cascade.
func NewPigoLocator(model []byte, tuning Tuning) (l *PigoLocator, err error) {
	if len(model) == 0 {
		return nil, fmt.Errorf("unpacking face cascade: empty model")
	}
	// Unpack indexes the buffer without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, fmt.Errorf("unpacking face cascade: malformed model: %v", r)
		}
	}()
	classifier, err := pigo.NewPigo().Unpack(model)
	if err != nil {
		return nil, fmt.Errorf("unpacking face cascade: %w", err)
	}
	return &PigoLocator{classifier: classifier, tuning: tuning}, nil
}

// LoadPigoLocator reads the cascade file at path.
func LoadPigoLocator(path string, tuning Tuning) (*PigoLocator, error) {
	model, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading face cascade: %w", err)
	}
	return NewPigoLocator(model, tuning)
}

// Locate implements Locator.
func (l *PigoLocator) Locate(ctx context.Context, img *pixel.Image) ([]BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, nil
	}

	shorter := img.Width
	if img.Height < shorter {
		shorter = img.Height
	}
	params := pigo.CascadeParams{
		MinSize:     minFaceSize(shorter, l.tuning.MinSizePct),
		MaxSize:     shorter,
		ShiftFactor: l.tuning.ShiftFactor,
		ScaleFactor: l.tuning.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img.NRGBA()),
			Rows:   img.Height,
			Cols:   img.Width,
			Dim:    img.Width,
		},
	}

	dets := l.classifier.RunCascade(params, 0.0)
	dets = l.classifier.ClusterDetections(dets, l.tuning.IoUThreshold)

	boxes := make([]BoundingBox, 0, len(dets))
	for _, d := range dets {
		if d.Q < l.tuning.MinQuality {
			continue
		}
		box := detectionBox(d)
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// minFaceSize is pct percent of the shorter side, never below pigo's 20 pixel
// window.
func minFaceSize(shorter int, pct float64) int {
	size := int(float64(shorter) * pct / 100)
	if size < 20 {
		return 20
	}
	return size
}

// detectionBox converts pigo's centre/scale form to a box.
func detectionBox(d pigo.Detection) BoundingBox {
	half := d.Scale / 2
	return BoundingBox{
		Left:   d.Col - half,
		Top:    d.Row - half,
		Right:  d.Col - half + d.Scale,
		Bottom: d.Row - half + d.Scale,
	}
}
