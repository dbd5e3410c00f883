//go:build !gotrace

package visualize

import (
	"errors"
	"image"
)

// MaskTracing reports whether lip masks can be traced to SVG.
const MaskTracing = false

var errTracingDisabled = errors.New("lip mask tracing requires the gotrace build tag")

func traceMask(*image.Gray) ([]byte, error) {
	return nil, errTracingDisabled
}
