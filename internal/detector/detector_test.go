package detector

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/facetone/internal/pixel"
)

func TestOuterLipUsesIndices48To59(t *testing.T) {
	var set LandmarkSet
	for i := range set {
		set[i] = image.Pt(i, i)
	}

	lip := set.OuterLip()
	require.Len(t, lip, 12)
	assert.Equal(t, image.Pt(48, 48), lip[0])
	assert.Equal(t, image.Pt(59, 59), lip[11])
}

func TestBoundingBoxGeometry(t *testing.T) {
	box := BoundingBox{Left: 10, Top: 20, Right: 50, Bottom: 70}
	assert.Equal(t, 40, box.Width())
	assert.Equal(t, 50, box.Height())
	assert.False(t, box.Empty())
	assert.Equal(t, image.Rect(10, 20, 50, 70), box.Rect())

	assert.True(t, BoundingBox{Left: 5, Top: 5, Right: 5, Bottom: 9}.Empty())
}

func TestTemplateLandmarksStayInsideBox(t *testing.T) {
	face := BoundingBox{Left: 100, Top: 50, Right: 300, Bottom: 290}
	set, err := TemplateLandmarks{}.Extract(context.Background(), pixel.New(400, 400), face)
	require.NoError(t, err)

	for i, p := range set {
		assert.GreaterOrEqual(t, p.X, face.Left, "landmark %d", i)
		assert.LessOrEqual(t, p.X, face.Right, "landmark %d", i)
		assert.GreaterOrEqual(t, p.Y, face.Top, "landmark %d", i)
		assert.LessOrEqual(t, p.Y, face.Bottom, "landmark %d", i)
	}

	lip := set.OuterLip()
	mid := face.Top + face.Height()/2
	for _, p := range lip {
		assert.Greater(t, p.Y, mid, "lips sit in the lower half of the face")
	}
	assert.Less(t, set[48].X, set[54].X, "48 and 54 are the left and right mouth corners")
	for _, p := range lip {
		assert.GreaterOrEqual(t, p.X, set[48].X)
	}
	assert.Less(t, set[36].X, set[45].X)
}

func TestTemplateLandmarksRejectEmptyBox(t *testing.T) {
	_, err := TemplateLandmarks{}.Extract(context.Background(), pixel.New(10, 10), BoundingBox{Left: 3, Top: 3, Right: 3, Bottom: 8})
	require.Error(t, err)
}

func TestDetectionBox(t *testing.T) {
	box := detectionBox(pigo.Detection{Row: 100, Col: 80, Scale: 41, Q: 9})
	assert.Equal(t, BoundingBox{Left: 60, Top: 80, Right: 101, Bottom: 121}, box)
	assert.Equal(t, 41, box.Width())
}

func TestMinFaceSize(t *testing.T) {
	tests := []struct {
		shorter int
		pct     float64
		want    int
	}{
		{shorter: 1000, pct: 10, want: 100},
		{shorter: 1000, pct: 12.5, want: 125},
		{shorter: 401, pct: 7.5, want: 30},
		{shorter: 100, pct: 10, want: 20},
		{shorter: 500, pct: 100, want: 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, minFaceSize(tt.shorter, tt.pct), "%d px at %v%%", tt.shorter, tt.pct)
	}
	assert.Equal(t, 10.0, DefaultTuning().MinSizePct)
}

func TestNewPigoLocatorRejectsEmptyModel(t *testing.T) {
	_, err := NewPigoLocator(nil, DefaultTuning())
	require.Error(t, err)
}

func TestNewPigoLocatorRejectsTruncatedModel(t *testing.T) {
	_, err := NewPigoLocator([]byte{1, 2, 3}, DefaultTuning())
	assert.Error(t, err)
}

type countingLocator struct {
	active  int32
	maxSeen int32
}

func (c *countingLocator) Locate(ctx context.Context, img *pixel.Image) ([]BoundingBox, error) {
	n := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	for {
		seen := atomic.LoadInt32(&c.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&c.maxSeen, seen, n) {
			break
		}
	}
	return []BoundingBox{{Right: 1, Bottom: 1}}, nil
}

func TestSerializedLocatorExcludesConcurrentCalls(t *testing.T) {
	inner := &countingLocator{}
	locator := Serialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = locator.Locate(context.Background(), pixel.New(1, 1))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.maxSeen))
}

type failingLandmarks struct{ err error }

func (f failingLandmarks) Extract(context.Context, *pixel.Image, BoundingBox) (LandmarkSet, error) {
	return LandmarkSet{}, f.err
}

func TestSerializedLandmarksPassesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := SerializedLandmarks(failingLandmarks{err: boom}).Extract(context.Background(), pixel.New(1, 1), BoundingBox{Right: 1, Bottom: 1})
	assert.ErrorIs(t, err, boom)
}
