package visualize

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/pixel"
)

func sceneWithFace(t *testing.T) (*pixel.Image, detector.BoundingBox, detector.LandmarkSet) {
	t.Helper()
	img := pixel.New(200, 220)
	img.Fill(img.Bounds(), pixel.Color{R: 40, G: 40, B: 40})
	face := detector.BoundingBox{Left: 50, Top: 70, Right: 150, Bottom: 190}
	img.Fill(face.Rect(), pixel.Color{R: 220, G: 170, B: 140})
	landmarks, err := detector.TemplateLandmarks{}.Extract(context.Background(), img, face)
	require.NoError(t, err)
	return img, face, landmarks
}

func TestFileNameHasTimestampAndSuffix(t *testing.T) {
	at := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	name := FileName(at)
	assert.Regexp(t, regexp.MustCompile(`^20240305_070809_[0-9a-f]{8}$`), name)
	assert.NotEqual(t, name, FileName(at), "same second must not collide")
}

func TestRenderWritesOverlay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "colors")
	img, face, landmarks := sceneWithFace(t)

	r := NewRenderer(dir, true, zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := r.Render(img, face, landmarks)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "20240102_030405_"))
	assert.Equal(t, ".jpg", filepath.Ext(path))

	out, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), out.Bounds())

	// face outline is green; JPEG blurs chroma so only dominance is checked
	r8, g8, b8, _ := out.At(face.Left, face.Top+60).RGBA()
	assert.Greater(t, int(g8>>8), int(r8>>8)+60)
	assert.Greater(t, int(g8>>8), int(b8>>8)+60)

	svgPath := strings.TrimSuffix(path, ".jpg") + "_lips.svg"
	if MaskTracing {
		svg, err := os.ReadFile(svgPath)
		require.NoError(t, err)
		assert.Contains(t, string(svg), "svg")
	} else {
		assert.False(t, r.Masks, "masks are dropped when tracing is not compiled in")
		assert.NoFileExists(t, svgPath)
	}

	// the source raster is untouched
	assert.Equal(t, pixel.Color{R: 220, G: 170, B: 140}, img.At(face.Left, face.Top+60))
}

func TestRenderFailsWithoutUsableDirectory(t *testing.T) {
	img, face, landmarks := sceneWithFace(t)

	_, err := NewRenderer("", false, zap.NewNop()).Render(img, face, landmarks)
	require.Error(t, err)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	_, err = NewRenderer(filepath.Join(blocker, "sub"), false, zap.NewNop()).Render(img, face, landmarks)
	require.Error(t, err)
}

func TestRenderToleratesBoxesOutsideImage(t *testing.T) {
	dir := t.TempDir()
	img := pixel.New(40, 40)
	face := detector.BoundingBox{Left: -20, Top: -10, Right: 60, Bottom: 70}
	landmarks, err := detector.TemplateLandmarks{}.Extract(context.Background(), img, face)
	require.NoError(t, err)

	_, err = NewRenderer(dir, false, zap.NewNop()).Render(img, face, landmarks)
	require.NoError(t, err)
}
