package imaging

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Normalize center-crops img to ratio ("W:H") and resizes it so the longer
// side is MaxDimension. The ratio is validated before any decoding.
func Normalize(img Image, ratio string) (Image, error) {
	r, err := ParseRatio(ratio)
	if err != nil {
		return Image{}, err
	}

	src, _, err := img.Decode()
	if err != nil {
		return Image{}, err
	}

	dst, err := NormalizeImage(src, r)
	if err != nil {
		return Image{}, err
	}
	return encodePNG("formatted_"+BaseName(img.Name)+".png", dst)
}

// NormalizeImage is the raster half of Normalize.
func NormalizeImage(src image.Image, r Ratio) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrDegenerateImage
	}
	b := src.Bounds()
	crop, err := CenterCrop(b.Dx(), b.Dy(), r)
	if err != nil {
		return nil, err
	}

	outW, outH := OutputSize(r, MaxDimension)
	if outW <= 0 || outH <= 0 {
		return nil, fmt.Errorf("%w: output %dx%d for %s", ErrDegenerateImage, outW, outH, r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))

	sx := float64(outW) / crop.Width
	sy := float64(outH) / crop.Height
	ox := float64(b.Min.X) + crop.X
	oy := float64(b.Min.Y) + crop.Y

	// Source to destination affine map; crop offsets can be sub-pixel.
	s2d := f64.Aff3{
		sx, 0, -ox * sx,
		0, sy, -oy * sy,
	}
	sr := image.Rect(
		int(math.Floor(ox)), int(math.Floor(oy)),
		int(math.Ceil(ox+crop.Width)), int(math.Ceil(oy+crop.Height)),
	).Intersect(b)

	draw.CatmullRom.Transform(dst, s2d, src, sr, draw.Src, nil)
	return dst, nil
}
