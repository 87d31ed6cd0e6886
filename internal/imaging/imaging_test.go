package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

// stripes builds a PNG split into three vertical bands of the given widths.
func stripes(t *testing.T, w1, w2, w3, h int) Image {
	t.Helper()
	w := w1 + w2 + w3
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case x < w1:
				img.Set(x, y, red)
			case x < w1+w2:
				img.Set(x, y, green)
			default:
				img.Set(x, y, blue)
			}
		}
	}
	return pngImage(t, "photo.jpg", img)
}

func solid(t *testing.T, w, h int, c color.Color) Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return pngImage(t, "solid.png", img)
}

func pngImage(t *testing.T, name string, img image.Image) Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return New(name, "", buf.Bytes())
}

func decodePNG(t *testing.T, img Image) image.Image {
	t.Helper()
	out, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	return out
}

func TestParseRatio(t *testing.T) {
	valid := map[string]Ratio{
		"1:1":       {W: 1, H: 1},
		"16:9":      {W: 16, H: 9},
		" 9 : 16 ":  {W: 9, H: 16},
		"3:4":       {W: 3, H: 4},
		"1024:1000": {W: 1024, H: 1000},
	}
	for in, want := range valid {
		got, err := ParseRatio(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"abc:16", "16", "", "0:1", "1:0", "-4:3", "4:-3", "1.5:1", "4:3:2"} {
		_, err := ParseRatio(in)
		assert.ErrorIs(t, err, ErrInvalidRatio, in)
	}
}

func TestCenterCrop(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		ratio      Ratio
		want       Rect
	}{
		{name: "wide source square target", srcW: 200, srcH: 100, ratio: Ratio{1, 1}, want: Rect{X: 50, Y: 0, Width: 100, Height: 100}},
		{name: "square source portrait target", srcW: 1000, srcH: 1000, ratio: Ratio{9, 16}, want: Rect{X: 218.75, Y: 0, Width: 562.5, Height: 1000}},
		{name: "equal ratio", srcW: 100, srcH: 100, ratio: Ratio{1, 1}, want: Rect{X: 0, Y: 0, Width: 100, Height: 100}},
		{name: "tall source square target", srcW: 100, srcH: 200, ratio: Ratio{1, 1}, want: Rect{X: 0, Y: 50, Width: 100, Height: 100}},
		{name: "tall source landscape target", srcW: 300, srcH: 400, ratio: Ratio{16, 9}, want: Rect{X: 0, Y: 115.625, Width: 300, Height: 168.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CenterCrop(tt.srcW, tt.srcH, tt.ratio)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.Width, got.Width, 1e-9)
			assert.InDelta(t, tt.want.Height, got.Height, 1e-9)
		})
	}
}

func TestCenterCropDegenerate(t *testing.T) {
	for _, dims := range [][2]int{{0, 100}, {100, 0}, {0, 0}, {-1, 10}} {
		_, err := CenterCrop(dims[0], dims[1], Ratio{1, 1})
		assert.ErrorIs(t, err, ErrDegenerateImage)
	}
}

func TestOutputSize(t *testing.T) {
	tests := map[string][2]int{
		"1:1":  {1024, 1024},
		"16:9": {1024, 576},
		"9:16": {576, 1024},
		"4:3":  {1024, 768},
		"3:4":  {768, 1024},
	}
	for in, want := range tests {
		r, err := ParseRatio(in)
		require.NoError(t, err)
		w, h := OutputSize(r, MaxDimension)
		assert.Equal(t, want, [2]int{w, h}, in)
	}
}

func TestNormalizeSquareFromWide(t *testing.T) {
	src := stripes(t, 50, 100, 50, 100)

	out, err := Normalize(src, "1:1")
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, out.MIMEType)
	assert.Equal(t, "formatted_photo.png", out.Name)

	decoded := decodePNG(t, out)
	require.Equal(t, image.Rect(0, 0, 1024, 1024), decoded.Bounds())

	// Only the centred green band survives the crop.
	for _, pt := range []image.Point{{0, 0}, {512, 512}, {1023, 1023}, {0, 1023}, {1023, 0}} {
		r, g, b, _ := decoded.At(pt.X, pt.Y).RGBA()
		assert.Less(t, r>>8, uint32(30), "red at %v", pt)
		assert.Greater(t, g>>8, uint32(220), "green at %v", pt)
		assert.Less(t, b>>8, uint32(30), "blue at %v", pt)
	}
}

func TestNormalizePortraitCanvas(t *testing.T) {
	out, err := Normalize(solid(t, 1000, 1000, blue), "9:16")
	require.NoError(t, err)

	w, h, err := Size(out)
	require.NoError(t, err)
	assert.Equal(t, 576, w)
	assert.Equal(t, 1024, h)
}

func TestNormalizeValidatesRatioBeforeDecoding(t *testing.T) {
	garbage := Image{Name: "x.png", MIMEType: MIMETypePNG, Data: []byte("not an image")}

	_, err := Normalize(garbage, "abc:16")
	require.ErrorIs(t, err, ErrInvalidRatio)

	_, err = Normalize(garbage, "1:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRatio)
}

func TestNormalizeImageDegenerate(t *testing.T) {
	_, err := NormalizeImage(image.NewRGBA(image.Rect(0, 0, 0, 10)), Ratio{1, 1})
	assert.ErrorIs(t, err, ErrDegenerateImage)

	_, err = NormalizeImage(nil, Ratio{1, 1})
	assert.ErrorIs(t, err, ErrDegenerateImage)

	// An extreme ratio would round one side of the canvas to zero.
	_, err = NormalizeImage(image.NewRGBA(image.Rect(0, 0, 10, 10)), Ratio{1, 5000})
	assert.ErrorIs(t, err, ErrDegenerateImage)
}

func TestNormalizeEmptyData(t *testing.T) {
	_, err := Normalize(Image{Name: "empty"}, "1:1")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestCrop(t *testing.T) {
	src := stripes(t, 20, 60, 20, 80)

	out, err := Crop(src, image.Rect(20, 10, 80, 40))
	require.NoError(t, err)
	assert.Equal(t, "cropped_photo.png", out.Name)

	decoded := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 60, 30), decoded.Bounds())
	assert.Equal(t, color.RGBAModel.Convert(green), color.RGBAModel.Convert(decoded.At(0, 0)))
	assert.Equal(t, color.RGBAModel.Convert(green), color.RGBAModel.Convert(decoded.At(59, 29)))
}

func TestCropRejectsBadRectangles(t *testing.T) {
	src := solid(t, 50, 50, red)

	_, err := Crop(src, image.Rect(10, 10, 60, 40))
	assert.ErrorIs(t, err, ErrCropOutOfBounds)

	_, err = Crop(src, image.Rect(-1, 0, 10, 10))
	assert.ErrorIs(t, err, ErrCropOutOfBounds)

	_, err = Crop(src, image.Rect(10, 10, 10, 40))
	assert.ErrorIs(t, err, ErrDegenerateImage)
}

func TestCenterCropRect(t *testing.T) {
	rect, err := CenterCropRect(300, 300, Ratio{3, 4})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(38, 0, 263, 300), rect)

	rect, err = CenterCropRect(300, 500, Ratio{1, 1})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 100, 300, 400), rect)
}

func TestExportWithCaption(t *testing.T) {
	src := solid(t, 200, 100, red)

	out, err := ExportWithCaption(src, Caption{
		Title: "Style Details",
		Lines: []string{"Artistic Style: Realistic", "Aspect Ratio: Square (1:1)"},
	})
	require.NoError(t, err)
	assert.Equal(t, ExportName, out.Name)

	decoded := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 280, 325), decoded.Bounds())

	// Padding keeps the background colour, the image area is red.
	assert.Equal(t, captionBackground, color.RGBAModel.Convert(decoded.At(5, 5)))
	r, _, _, _ := decoded.At(140, 90).RGBA()
	assert.Greater(t, r>>8, uint32(200))
}

func TestCaptionCanvasSizeScalesWideImages(t *testing.T) {
	cw, ch, sw, sh := CaptionCanvasSize(2048, 1024)
	assert.Equal(t, 1024, sw)
	assert.Equal(t, 512, sh)
	assert.Equal(t, 1104, cw)
	assert.Equal(t, 737, ch)
}

func TestDataURLRoundTrip(t *testing.T) {
	src := solid(t, 4, 4, green)

	parsed, err := ParseDataURL("again.png", src.DataURL())
	require.NoError(t, err)
	assert.Equal(t, src.Data, parsed.Data)
	assert.Equal(t, MIMETypePNG, parsed.MIMEType)

	bare, err := ParseDataURL("bare", src.Base64())
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, bare.MIMEType)

	_, err = ParseDataURL("bad", "data:image/png;base64")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "photo", BaseName("photo.jpg"))
	assert.Equal(t, "archive.tar", BaseName("dir/archive.tar.gz"))
	assert.Equal(t, "me", BaseName(`C:\Users\me.png`))
	assert.Equal(t, "image", BaseName(""))
	assert.Equal(t, ".env", BaseName(".env"))
}
