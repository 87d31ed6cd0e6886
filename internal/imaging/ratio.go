package imaging

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDimension caps the longer side of a normalised image.
const MaxDimension = 1024

// Ratio is a target width:height aspect ratio.
type Ratio struct {
	W int
	H int
}

// Rect is a crop rectangle in source pixel space. Coordinates may be
// fractional.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ParseRatio parses "W:H" where both parts are positive integers.
func ParseRatio(value string) (Ratio, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return Ratio{}, fmt.Errorf("%w: %q", ErrInvalidRatio, value)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Ratio{}, fmt.Errorf("%w: %q", ErrInvalidRatio, value)
	}
	return Ratio{W: w, H: h}, nil
}

func (r Ratio) Float() float64 {
	return float64(r.W) / float64(r.H)
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d:%d", r.W, r.H)
}

// CenterCrop returns the largest centred rectangle of the source that has the
// target ratio.
func CenterCrop(srcW, srcH int, r Ratio) (Rect, error) {
	if srcW <= 0 || srcH <= 0 {
		return Rect{}, fmt.Errorf("%w: %dx%d", ErrDegenerateImage, srcW, srcH)
	}
	if r.W <= 0 || r.H <= 0 {
		return Rect{}, fmt.Errorf("%w: %s", ErrInvalidRatio, r)
	}

	target := r.Float()
	w, h := float64(srcW), float64(srcH)

	if w/h > target {
		width := h * target
		return Rect{X: (w - width) / 2, Y: 0, Width: width, Height: h}, nil
	}
	height := w / target
	return Rect{X: 0, Y: (h - height) / 2, Width: w, Height: height}, nil
}

// OutputSize returns the canvas size for r with the longer side at maxDim.
func OutputSize(r Ratio, maxDim int) (int, int) {
	target := r.Float()
	m := float64(maxDim)
	if target >= 1 {
		return maxDim, int(math.Round(m / target))
	}
	return int(math.Round(m * target)), maxDim
}
