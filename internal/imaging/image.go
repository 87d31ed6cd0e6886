// Package imaging holds the raster utilities of the try-on flow: aspect-ratio
// normalisation, manual cropping and the captioned export.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"path"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

const (
	MIMETypePNG  = "image/png"
	MIMETypeJPEG = "image/jpeg"
)

var (
	ErrInvalidRatio    = errors.New("invalid aspect ratio")
	ErrDegenerateImage = errors.New("image has zero width or height")
	ErrCropOutOfBounds = errors.New("crop rectangle outside image bounds")
	ErrEmptyImage      = errors.New("empty image data")
)

// Image is an uploaded or generated raster. It is never mutated; crops and
// re-uploads produce a new value.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// New builds an Image, sniffing the MIME type when the declared one is
// missing or generic.
func New(name, mimeType string, data []byte) Image {
	return Image{
		Name:     name,
		MIMEType: detectMIME(mimeType, data),
		Data:     data,
	}
}

func (img Image) Empty() bool {
	return len(img.Data) == 0
}

func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", img.MIMEType, img.Base64())
}

// Decode returns the decoded raster and its format name.
func (img Image) Decode() (image.Image, string, error) {
	if img.Empty() {
		return nil, "", ErrEmptyImage
	}
	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", img.Name, err)
	}
	return decoded, format, nil
}

// ParseDataURL accepts either a data URI or a bare base64 payload.
func ParseDataURL(name, value string) (Image, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Image{}, errors.New("empty data url")
	}

	mimeType := ""
	payload := value
	if strings.HasPrefix(value, "data:") {
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return Image{}, errors.New("invalid data url")
		}
		meta := strings.TrimPrefix(parts[0], "data:")
		mimeType = strings.TrimSpace(strings.Split(meta, ";")[0])
		payload = parts[1]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	return New(name, mimeType, data), nil
}

// BaseName strips directories and the extension from a file name.
func BaseName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return "image"
	}
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return "image"
	}
	return name
}

func encodePNG(name string, src image.Image) (Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return Image{}, fmt.Errorf("encode png: %w", err)
	}
	return Image{Name: name, MIMEType: MIMETypePNG, Data: buf.Bytes()}, nil
}

func detectMIME(declared string, data []byte) string {
	mimeType := strings.TrimSpace(declared)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if (mimeType == "" || mimeType == "application/octet-stream") && len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = MIMETypeJPEG
	}
	return mimeType
}
