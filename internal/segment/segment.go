// Package segment derives the hair, skin and lip regions of a located face.
//
// Every region carries a mask with the dimensions of the source image and a crop
// clamped to the image bounds, so a face touching an edge yields a smaller or
// empty region rather than an error.
package segment

import (
	"fmt"
	"image"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/palette"
	"github.com/example/facetone/internal/pixel"
)

// Name identifies a region in results.
type Name string

const (
	Hair Name = "hair"
	Skin Name = "skin"
	Lips Name = "lips"
)

// LipPadding is added around the lip polygon when cropping.
const LipPadding = 5

var (
	// HairRange keeps anything with some colour and brightness. It separates dark
	// or grey background from hair only loosely.
	HairRange = pixel.HSVRange{Lo: pixel.HSV{H: 0, S: 20, V: 50}, Hi: pixel.HSV{H: 180, S: 255, V: 255}}
	// SkinRange keeps red-to-orange hues.
	SkinRange = pixel.HSVRange{Lo: pixel.HSV{H: 0, S: 20, V: 70}, Hi: pixel.HSV{H: 20, S: 255, V: 255}}
)

// Region is one segmented area of the image.
type Region struct {
	Name   Name
	Crop   image.Rectangle // clamped to the image, possibly empty
	Mask   *pixel.Mask     // same size as the image
	Sample palette.Sample
}

// Area returns the number of pixels in the crop.
func (r Region) Area() int { return r.Crop.Dx() * r.Crop.Dy() }

// SubImage returns the cropped pixels.
func (r Region) SubImage(img *pixel.Image) *pixel.Image { return img.Sub(r.Crop) }

// HairBox is the strip above the face, half as tall as the face is wide. Its top
// never goes above row 0. The result is not clamped horizontally.
func HairBox(face detector.BoundingBox) image.Rectangle {
	top := face.Top - face.Width()/2
	if top < 0 {
		top = 0
	}
	return image.Rectangle{Min: image.Pt(face.Left, top), Max: image.Pt(face.Right, face.Top)}
}

// LipBox is the bounding box of the outer lip polygon padded by LipPadding. The
// far edge is exclusive; the result is not clamped.
func LipBox(landmarks detector.LandmarkSet) image.Rectangle {
	b := pixel.PointsBounds(landmarks.OuterLip())
	return image.Rectangle{
		Min: b.Min.Sub(image.Pt(LipPadding, LipPadding)),
		Max: b.Max.Add(image.Pt(LipPadding, LipPadding)),
	}
}

// HairRegion filters the hair strip with HairRange.
func HairRegion(img *pixel.Image, face detector.BoundingBox) Region {
	return filtered(img, Hair, HairBox(face), HairRange)
}

// SkinRegion filters the face box with SkinRange.
func SkinRegion(img *pixel.Image, face detector.BoundingBox) Region {
	return filtered(img, Skin, face.Rect(), SkinRange)
}

// LipRegion fills the outer lip polygon. It fails only when the landmarks are so
// far off that the polygon's box exceeds four times the image area.
func LipRegion(img *pixel.Image, landmarks detector.LandmarkSet) (Region, error) {
	outer := landmarks.OuterLip()
	box := pixel.PointsBounds(outer)
	limit := 4 * img.Width * img.Height
	if w, h := box.Dx()+1, box.Dy()+1; w > limit || h > limit || w*h > limit {
		return Region{}, fmt.Errorf("lip polygon %v is out of range for a %dx%d image", box, img.Width, img.Height)
	}

	mask := pixel.NewMask(img.Width, img.Height)
	mask.FillPolygon(outer)
	crop := pixel.Clamp(LipBox(landmarks), img.Bounds())
	return Region{
		Name:   Lips,
		Crop:   crop,
		Mask:   mask,
		Sample: palette.Collect(img, crop, mask),
	}, nil
}

func filtered(img *pixel.Image, name Name, box image.Rectangle, rng pixel.HSVRange) Region {
	crop := pixel.Clamp(box, img.Bounds())
	mask := pixel.NewMask(img.Width, img.Height)
	for y := crop.Min.Y; y < crop.Max.Y; y++ {
		for x := crop.Min.X; x < crop.Max.X; x++ {
			if rng.Contains(img.At(x, y)) {
				mask.Set(x, y)
			}
		}
	}
	return Region{
		Name:   name,
		Crop:   crop,
		Mask:   mask,
		Sample: palette.Collect(img, crop, mask),
	}
}
