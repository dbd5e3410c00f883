//go:build gotrace

package visualize

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gotranspile/gotrace"
)

// MaskTracing reports whether lip masks can be traced to SVG.
//
// gotrace reaches into the runtime through go:linkname, so binaries built with
// this tag also need -ldflags=-checklinkname=0.
const MaskTracing = true

func traceMask(mask *image.Gray) ([]byte, error) {
	bm := gotrace.BitmapFromGray(mask, nil)
	paths, err := gotrace.Trace(bm, nil)
	if err != nil {
		return nil, fmt.Errorf("tracing mask: %w", err)
	}
	var buf bytes.Buffer
	sz := mask.Bounds().Size()
	if err := gotrace.Render("svg", nil, &buf, paths, sz.X, sz.Y); err != nil {
		return nil, fmt.Errorf("rendering mask svg: %w", err)
	}
	return buf.Bytes(), nil
}
