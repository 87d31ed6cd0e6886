package imaging

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Pixels rounds r to the nearest integer rectangle.
func (r Rect) Pixels() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	return image.Rect(x0, y0, x0+int(math.Round(r.Width)), y0+int(math.Round(r.Height)))
}

// CenterCropRect is the integer default crop offered for a target aspect.
func CenterCropRect(srcW, srcH int, r Ratio) (image.Rectangle, error) {
	rect, err := CenterCrop(srcW, srcH, r)
	if err != nil {
		return image.Rectangle{}, err
	}
	out := rect.Pixels().Intersect(image.Rect(0, 0, srcW, srcH))
	if out.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: crop of %dx%d to %s", ErrDegenerateImage, srcW, srcH, r)
	}
	return out, nil
}

// Crop copies rect (relative to the image origin) into a new PNG.
func Crop(img Image, rect image.Rectangle) (Image, error) {
	if rect.Empty() {
		return Image{}, fmt.Errorf("%w: empty crop %v", ErrDegenerateImage, rect)
	}

	src, _, err := img.Decode()
	if err != nil {
		return Image{}, err
	}

	b := src.Bounds()
	abs := rect.Add(b.Min)
	if !abs.In(b) {
		return Image{}, fmt.Errorf("%w: %v not in %dx%d", ErrCropOutOfBounds, rect, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, abs.Min, draw.Src)

	return encodePNG("cropped_"+BaseName(img.Name)+".png", dst)
}

// Size decodes only the image header.
func Size(img Image) (int, int, error) {
	if img.Empty() {
		return 0, 0, ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", img.Name, err)
	}
	return cfg.Width, cfg.Height, nil
}
