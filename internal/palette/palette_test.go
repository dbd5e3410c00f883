package palette

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/facetone/internal/pixel"
)

func extractors() map[string]Extractor {
	return map[string]Extractor{
		"kmeans": NewKMeans(),
		"mean":   Mean{},
	}
}

func TestHex(t *testing.T) {
	assert.Equal(t, "#000000", Hex(pixel.Color{}))
	assert.Equal(t, "#ffffff", Hex(pixel.Color{R: 255, G: 255, B: 255}))
	assert.Equal(t, "#100102", Hex(pixel.Color{R: 16, G: 1, B: 2}))
	assert.Equal(t, "#0a0b0c", Hex(pixel.Color{R: 10, G: 11, B: 12}))
}

func TestDominantEmptySampleIsBlack(t *testing.T) {
	for name, ex := range extractors() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, pixel.Black, ex.Dominant(nil))
			assert.Equal(t, pixel.Black, ex.Dominant(Sample{}))
		})
	}
}

func TestDominantIsCentroid(t *testing.T) {
	s := Sample{{R: 1, G: 2, B: 3}, {R: 3, G: 4, B: 5}, {R: 2, G: 3, B: 4}, {R: 2, G: 3, B: 4}}
	for name, ex := range extractors() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, pixel.Color{R: 2, G: 3, B: 4}, ex.Dominant(s))
		})
	}
}

func TestDominantRoundsToNearest(t *testing.T) {
	s := Sample{{R: 10, G: 0, B: 200}, {R: 10, G: 1, B: 201}, {R: 11, G: 1, B: 201}}
	for name, ex := range extractors() {
		t.Run(name, func(t *testing.T) {
			// means are 10.33, 0.67, 200.67
			assert.Equal(t, pixel.Color{R: 10, G: 1, B: 201}, ex.Dominant(s))
		})
	}
}

func TestCollectAllBlackRegion(t *testing.T) {
	img := pixel.New(8, 8)
	full := img.Bounds()

	mask := pixel.NewMask(8, 8)
	mask.FillPolygon([]image.Point{{0, 0}, {7, 0}, {7, 7}, {0, 7}})

	for name, ex := range extractors() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, pixel.Black, ex.Dominant(Collect(img, full, nil)))
			assert.Equal(t, pixel.Black, ex.Dominant(Collect(img, full, mask)))
		})
	}
	assert.Empty(t, Collect(img, full, mask), "black pixels are dropped under a mask")
	assert.Len(t, Collect(img, full, nil), 64, "black pixels are kept without a mask")
}

func TestCollectEmptyMask(t *testing.T) {
	img := pixel.New(6, 6)
	img.Fill(img.Bounds(), pixel.Color{R: 200, G: 100, B: 50})

	s := Collect(img, img.Bounds(), pixel.NewMask(6, 6))
	assert.Empty(t, s)
	assert.Equal(t, pixel.Black, NewKMeans().Dominant(s))
}

func TestCollectRespectsCropAndMask(t *testing.T) {
	img := pixel.New(10, 10)
	img.Fill(img.Bounds(), pixel.Color{R: 9})
	mask := pixel.NewMask(10, 10)
	mask.Set(1, 1)
	mask.Set(8, 8)

	s := Collect(img, image.Rect(0, 0, 5, 5), mask)
	assert.Equal(t, Sample{{R: 9}}, s)

	assert.Empty(t, Collect(img, image.Rectangle{Min: image.Pt(4, 4), Max: image.Pt(4, 9)}, nil))
	assert.Len(t, Collect(img, image.Rectangle{Min: image.Pt(-4, -4), Max: image.Pt(2, 2)}, nil), 4)
}

func TestPaletteOrdersByPopulation(t *testing.T) {
	red := pixel.Color{R: 220, G: 20, B: 20}
	blue := pixel.Color{R: 20, G: 20, B: 220}
	s := Sample{red, red, red, blue}

	swatches, err := NewKMeans().Palette(s, 2)
	require.NoError(t, err)
	require.Len(t, swatches, 2)
	assert.Equal(t, Swatch{Color: red, Count: 3}, swatches[0])
	assert.Equal(t, Swatch{Color: blue, Count: 1}, swatches[1])
}

func TestPaletteCapsClusterCount(t *testing.T) {
	swatches, err := NewKMeans().Palette(Sample{{R: 1}}, 5)
	require.NoError(t, err)
	require.Len(t, swatches, 1)
	assert.Equal(t, pixel.Color{R: 1}, swatches[0].Color)
}

func TestNewExtractor(t *testing.T) {
	ex, err := NewExtractor("")
	require.NoError(t, err)
	assert.IsType(t, &KMeans{}, ex)

	ex, err = NewExtractor(StrategyMean)
	require.NoError(t, err)
	assert.IsType(t, Mean{}, ex)

	_, err = NewExtractor("median")
	require.Error(t, err)
}
