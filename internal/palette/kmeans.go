package palette

import (
	"fmt"
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/example/facetone/internal/pixel"
)

// Swatch is one cluster of a palette.
type Swatch struct {
	Color pixel.Color
	Count int
}

// KMeans clusters samples in RGB space, scaled to the unit cube the library
// seeds its centres in.
//
// With a single cluster the centroid is the sample mean. kmeans.Partition skips
// re-centering when the first assignment pass changes nothing, which is always the
// case for k=1, so the clusters are re-centered here explicitly; otherwise the
// centre would stay on the random point in the unit cube it was seeded with.
type KMeans struct {
	km kmeans.Kmeans
}

// NewKMeans returns an extractor with the library's default thresholds.
func NewKMeans() *KMeans {
	return &KMeans{km: kmeans.New()}
}

// Dominant implements Extractor.
func (k *KMeans) Dominant(s Sample) pixel.Color {
	swatches, err := k.Palette(s, 1)
	if err != nil || len(swatches) == 0 {
		return pixel.Black
	}
	return swatches[0].Color
}

// Palette returns up to n swatches ordered by population, largest first.
func (k *KMeans) Palette(s Sample, n int) ([]Swatch, error) {
	if len(s) == 0 || n <= 0 {
		return nil, nil
	}
	if n > len(s) {
		n = len(s)
	}

	obs := make(clusters.Observations, len(s))
	for i, c := range s {
		obs[i] = clusters.Coordinates{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
	}

	cc, err := k.km.Partition(obs, n)
	if err != nil {
		return nil, fmt.Errorf("partitioning %d pixels into %d clusters: %w", len(s), n, err)
	}
	cc.Recenter()

	swatches := make([]Swatch, 0, len(cc))
	for _, c := range cc {
		if len(c.Observations) == 0 || len(c.Center) < 3 {
			continue
		}
		swatches = append(swatches, Swatch{
			Color: pixel.Color{R: toByte(c.Center[0] * 255), G: toByte(c.Center[1] * 255), B: toByte(c.Center[2] * 255)},
			Count: len(c.Observations),
		})
	}
	sort.SliceStable(swatches, func(i, j int) bool { return swatches[i].Count > swatches[j].Count })
	return swatches, nil
}
