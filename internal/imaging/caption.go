package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	captionPadding     = 40
	captionPanelHeight = 145
	captionMaxWidth    = 1024
	captionLineStep    = 25
	captionFirstLine   = 30

	// ExportName is the download name of a captioned export.
	ExportName = "virtual-try-on-with-styles.png"
)

var (
	captionBackground = color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff}
	captionText       = color.RGBA{R: 0xcb, G: 0xd5, B: 0xe1, A: 0xff}
	captionTitle      = color.RGBA{R: 0x81, G: 0x8c, B: 0xf8, A: 0xff}
)

// Caption is the text panel drawn under an exported image.
type Caption struct {
	Title string
	Lines []string
}

var (
	faceOnce  sync.Once
	bodyFace  font.Face
	titleFace font.Face
	faceErr   error
)

func captionFaces() (font.Face, font.Face, error) {
	faceOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			faceErr = fmt.Errorf("parse regular font: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			faceErr = fmt.Errorf("parse bold font: %w", err)
			return
		}
		bodyFace, err = opentype.NewFace(regular, &opentype.FaceOptions{Size: 16, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			faceErr = err
			return
		}
		titleFace, err = opentype.NewFace(bold, &opentype.FaceOptions{Size: 18, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			faceErr = err
		}
	})
	return bodyFace, titleFace, faceErr
}

// CaptionCanvasSize returns the export canvas size for a w x h image.
func CaptionCanvasSize(w, h int) (int, int, int, int) {
	scale := 1.0
	if w > captionMaxWidth {
		scale = float64(captionMaxWidth) / float64(w)
	}
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	return sw + captionPadding*2, sh + captionPanelHeight + captionPadding*2, sw, sh
}

// ExportWithCaption draws img on a dark canvas above a caption panel.
func ExportWithCaption(img Image, c Caption) (Image, error) {
	src, _, err := img.Decode()
	if err != nil {
		return Image{}, err
	}
	b := src.Bounds()
	if b.Empty() {
		return Image{}, ErrDegenerateImage
	}

	body, title, err := captionFaces()
	if err != nil {
		return Image{}, err
	}

	cw, ch, sw, sh := CaptionCanvasSize(b.Dx(), b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(captionBackground), image.Point{}, draw.Src)

	target := image.Rect(captionPadding, captionPadding, captionPadding+sw, captionPadding+sh)
	draw.CatmullRom.Scale(dst, target, src, b, draw.Over, nil)

	y := sh + captionPadding*3/2
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(captionTitle), Face: title, Dot: fixed.P(captionPadding, y)}
	d.DrawString(c.Title)

	for i, line := range c.Lines {
		d = &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(captionText),
			Face: body,
			Dot:  fixed.P(captionPadding, y+captionFirstLine+i*captionLineStep),
		}
		d.DrawString(line)
	}

	return encodePNG(ExportName, dst)
}
