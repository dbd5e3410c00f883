// Package palette reduces pixel samples to representative colors and encodes
// them as hex codes.
package palette

import (
	"fmt"
	"image"
	"math"

	"github.com/example/facetone/internal/pixel"
)

// Sample is an unordered collection of pixels.
type Sample []pixel.Color

// Collect gathers the pixels of img inside crop. With a mask, only masked
// positions are kept and pixels whose channels sum to zero are dropped as well,
// which also discards genuinely black pixels. The crop is clamped first.
func Collect(img *pixel.Image, crop image.Rectangle, mask *pixel.Mask) Sample {
	crop = pixel.Clamp(crop, img.Bounds())
	var s Sample
	for y := crop.Min.Y; y < crop.Max.Y; y++ {
		for x := crop.Min.X; x < crop.Max.X; x++ {
			if mask != nil && !mask.Has(x, y) {
				continue
			}
			c := img.At(x, y)
			if mask != nil && c.Sum() == 0 {
				continue
			}
			s = append(s, c)
		}
	}
	return s
}

// Extractor picks the single most representative color of a sample. Empty
// samples yield pixel.Black.
type Extractor interface {
	Dominant(s Sample) pixel.Color
}

// Strategy names accepted by NewExtractor.
const (
	StrategyKMeans = "kmeans"
	StrategyMean   = "mean"
)

// NewExtractor returns the extractor for a strategy name. The empty name
// selects k-means.
func NewExtractor(strategy string) (Extractor, error) {
	switch strategy {
	case "", StrategyKMeans:
		return NewKMeans(), nil
	case StrategyMean:
		return Mean{}, nil
	default:
		return nil, fmt.Errorf("unknown color strategy %q (valid: %s, %s)", strategy, StrategyKMeans, StrategyMean)
	}
}

// Mean is the plain per-channel arithmetic mean, rounded to the nearest integer.
type Mean struct{}

// Dominant implements Extractor.
func (Mean) Dominant(s Sample) pixel.Color {
	if len(s) == 0 {
		return pixel.Black
	}
	var r, g, b uint64
	for _, c := range s {
		r += uint64(c.R)
		g += uint64(c.G)
		b += uint64(c.B)
	}
	n := float64(len(s))
	return pixel.Color{
		R: toByte(float64(r) / n),
		G: toByte(float64(g) / n),
		B: toByte(float64(b) / n),
	}
}

// Hex renders c as #rrggbb.
func Hex(c pixel.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
