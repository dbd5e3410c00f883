// Package detector locates faces and facial landmarks.
//
// Implementations are long-lived, read-only objects built once at startup and
// shared by concurrent analyses. The pigo and template implementations are
// reentrant; wrap anything that is not with Serialized or SerializedLandmarks,
// which hold a mutex around the detection call only.
package detector

import (
	"context"
	"image"
	"sync"

	"github.com/example/facetone/internal/pixel"
)

// LandmarkCount is the size of a landmark set.
const LandmarkCount = 68

// Outer lip contour indices (inclusive).
const (
	OuterLipFirst = 48
	OuterLipLast  = 59
)

// BoundingBox is a face rectangle. It may extend past the image edges.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns Right - Left.
func (b BoundingBox) Width() int { return b.Right - b.Left }

// Height returns Bottom - Top.
func (b BoundingBox) Height() int { return b.Bottom - b.Top }

// Empty reports a zero or negative width or height.
func (b BoundingBox) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// Rect returns the box as an unclamped rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rectangle{Min: image.Pt(b.Left, b.Top), Max: image.Pt(b.Right, b.Bottom)}
}

// LandmarkSet holds 68 keypoints in the conventional iBUG order.
type LandmarkSet [LandmarkCount]image.Point

// OuterLip returns the 12 outer lip contour points (indices 48 through 59).
func (l LandmarkSet) OuterLip() []image.Point {
	pts := make([]image.Point, 0, OuterLipLast-OuterLipFirst+1)
	for i := OuterLipFirst; i <= OuterLipLast; i++ {
		pts = append(pts, l[i])
	}
	return pts
}

// Locator finds face boxes. The returned order is the detector's own; callers
// that need a single face take the first one.
type Locator interface {
	Locate(ctx context.Context, img *pixel.Image) ([]BoundingBox, error)
}

// LandmarkExtractor places 68 landmarks inside a face box.
type LandmarkExtractor interface {
	Extract(ctx context.Context, img *pixel.Image, face BoundingBox) (LandmarkSet, error)
}

type serializedLocator struct {
	mu    sync.Mutex
	inner Locator
}

// Serialized guards a non-reentrant Locator.
func Serialized(l Locator) Locator {
	return &serializedLocator{inner: l}
}

func (s *serializedLocator) Locate(ctx context.Context, img *pixel.Image) ([]BoundingBox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Locate(ctx, img)
}

type serializedLandmarks struct {
	mu    sync.Mutex
	inner LandmarkExtractor
}

// SerializedLandmarks guards a non-reentrant LandmarkExtractor.
func SerializedLandmarks(e LandmarkExtractor) LandmarkExtractor {
	return &serializedLandmarks{inner: e}
}

func (s *serializedLandmarks) Extract(ctx context.Context, img *pixel.Image, face BoundingBox) (LandmarkSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Extract(ctx, img, face)
}
