package pixel

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSV uses the 8-bit OpenCV scale: hue 0-180, saturation and value 0-255.
type HSV struct {
	H, S, V uint8
}

// ToHSV converts an RGB color to the 8-bit HSV scale.
func ToHSV(c Color) HSV {
	h, s, v := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hsv()
	return HSV{
		H: uint8(math.Round(h / 2)),
		S: uint8(math.Round(s * 255)),
		V: uint8(math.Round(v * 255)),
	}
}

// HSVRange is an inclusive per-channel range.
type HSVRange struct {
	Lo, Hi HSV
}

// Contains reports whether c falls inside the range on all three channels.
func (r HSVRange) Contains(c Color) bool {
	hsv := ToHSV(c)
	return hsv.H >= r.Lo.H && hsv.H <= r.Hi.H &&
		hsv.S >= r.Lo.S && hsv.S <= r.Hi.S &&
		hsv.V >= r.Lo.V && hsv.V <= r.Hi.V
}
