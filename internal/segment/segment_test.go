package segment

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/palette"
	"github.com/example/facetone/internal/pixel"
)

var (
	background = pixel.Color{R: 30, G: 60, B: 200}
	skinTone   = pixel.Color{R: 224, G: 172, B: 140}
	hairTone   = pixel.Color{R: 90, G: 60, B: 40}
	lipTone    = pixel.Color{R: 180, G: 60, B: 80}
)

func portrait(t *testing.T, w, h int, face detector.BoundingBox) (*pixel.Image, detector.LandmarkSet) {
	t.Helper()
	img := pixel.New(w, h)
	img.Fill(img.Bounds(), background)
	img.Fill(HairBox(face), hairTone)
	img.Fill(face.Rect(), skinTone)

	landmarks, err := detector.TemplateLandmarks{}.Extract(context.Background(), img, face)
	require.NoError(t, err)
	lip := pixel.NewMask(w, h)
	lip.FillPolygon(landmarks.OuterLip())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if lip.Has(x, y) {
				img.Set(x, y, lipTone)
			}
		}
	}
	return img, landmarks
}

func assertWellFormed(t *testing.T, img *pixel.Image, r Region) {
	t.Helper()
	require.NotNil(t, r.Mask)
	assert.Equal(t, img.Width, r.Mask.Width, "%s mask width", r.Name)
	assert.Equal(t, img.Height, r.Mask.Height, "%s mask height", r.Name)
	if r.Area() > 0 {
		assert.GreaterOrEqual(t, r.Crop.Min.X, 0)
		assert.GreaterOrEqual(t, r.Crop.Min.Y, 0)
		assert.LessOrEqual(t, r.Crop.Max.X, img.Width)
		assert.LessOrEqual(t, r.Crop.Max.Y, img.Height)
	}
}

func TestHairBoxClampsTopToZero(t *testing.T) {
	face := detector.BoundingBox{Left: 40, Top: 30, Right: 140, Bottom: 150}
	box := HairBox(face)
	assert.Equal(t, 0, box.Min.Y, "30 - 100/2 < 0")
	assert.Equal(t, 30, box.Max.Y)
	assert.Equal(t, 40, box.Min.X)
	assert.Equal(t, 140, box.Max.X)

	face = detector.BoundingBox{Left: 40, Top: 80, Right: 141, Bottom: 200}
	assert.Equal(t, 30, HairBox(face).Min.Y, "floor(101/2) = 50")
}

func TestRegionsMatchUniformBlocks(t *testing.T) {
	face := detector.BoundingBox{Left: 60, Top: 80, Right: 180, Bottom: 230}
	img, landmarks := portrait(t, 240, 260, face)

	hair := HairRegion(img, face)
	skin := SkinRegion(img, face)
	lips, err := LipRegion(img, landmarks)
	require.NoError(t, err)

	for _, r := range []Region{hair, skin, lips} {
		assertWellFormed(t, img, r)
	}

	ex := palette.NewKMeans()
	assert.Equal(t, palette.Hex(skinTone), palette.Hex(ex.Dominant(skin.Sample)))
	assert.Equal(t, palette.Hex(hairTone), palette.Hex(ex.Dominant(hair.Sample)))
	assert.Equal(t, palette.Hex(lipTone), palette.Hex(ex.Dominant(lips.Sample)))
}

func TestSkinFilterDropsForeignHues(t *testing.T) {
	face := detector.BoundingBox{Left: 10, Top: 10, Right: 50, Bottom: 50}
	img := pixel.New(60, 60)
	img.Fill(img.Bounds(), background)

	skin := SkinRegion(img, face)
	assert.Zero(t, skin.Mask.Count())
	assert.Empty(t, skin.Sample)
	assert.Equal(t, pixel.Black, palette.Mean{}.Dominant(skin.Sample))
}

func TestFaceAtTopEdgeGivesEmptyHair(t *testing.T) {
	face := detector.BoundingBox{Left: 20, Top: 0, Right: 80, Bottom: 70}
	img, _ := portrait(t, 100, 100, face)

	hair := HairRegion(img, face)
	assertWellFormed(t, img, hair)
	assert.Zero(t, hair.Area())
	assert.Empty(t, hair.Sample)
	assert.Equal(t, "#000000", palette.Hex(palette.NewKMeans().Dominant(hair.Sample)))
}

func TestFaceOutsideImageIsClamped(t *testing.T) {
	face := detector.BoundingBox{Left: -30, Top: -20, Right: 50, Bottom: 90}
	img, landmarks := portrait(t, 80, 80, face)

	regions := []Region{HairRegion(img, face), SkinRegion(img, face)}
	lips, err := LipRegion(img, landmarks)
	require.NoError(t, err)
	regions = append(regions, lips)

	for _, r := range regions {
		assertWellFormed(t, img, r)
	}
	assert.Equal(t, image.Rect(0, 0, 50, 80), regions[1].Crop)
}

func TestLipBoxPadding(t *testing.T) {
	var set detector.LandmarkSet
	for i := detector.OuterLipFirst; i <= detector.OuterLipLast; i++ {
		set[i] = image.Pt(100+i, 200+i%3)
	}
	assert.Equal(t, image.Rectangle{Min: image.Pt(143, 195), Max: image.Pt(164, 207)}, LipBox(set))
}

func TestLipRegionCropClampedAtEdges(t *testing.T) {
	var set detector.LandmarkSet
	pts := []image.Point{{0, 2}, {3, 0}, {6, 0}, {9, 2}, {6, 4}, {3, 4}}
	for i := 0; i < 12; i++ {
		set[detector.OuterLipFirst+i] = pts[i%len(pts)]
	}
	img := pixel.New(10, 6)
	img.Fill(img.Bounds(), lipTone)

	lips, err := LipRegion(img, set)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), lips.Crop)
	assert.NotEmpty(t, lips.Sample)
}

func TestLipRegionRejectsAbsurdLandmarks(t *testing.T) {
	var set detector.LandmarkSet
	set[detector.OuterLipFirst] = image.Pt(-1_000_000, 0)
	set[detector.OuterLipLast] = image.Pt(1_000_000, 1_000_000)

	_, err := LipRegion(pixel.New(50, 50), set)
	require.Error(t, err)
}
