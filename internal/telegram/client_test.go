package telegram

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tryon-studio/internal/imaging"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitByBytes("hello", 10))

	parts := splitByBytes(strings.Repeat("a", 10), 4)
	assert.Equal(t, []string{"aaaa", "aaaa", "aa"}, parts)

	// Multi-byte runes are never cut in half.
	parts = splitByBytes("ééé", 3)
	assert.Equal(t, []string{"é", "é", "é"}, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 3)
	}
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "short", truncateByBytes("short", 1024))
	assert.Equal(t, "ab", truncateByBytes("abc", 2))
	assert.Equal(t, "é", truncateByBytes("éé", 3))
	assert.Equal(t, "anything", truncateByBytes("anything", 0))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "look.png", fileName(imaging.Image{Name: "look.png"}))
	assert.Equal(t, "image.png", fileName(imaging.Image{MIMEType: imaging.MIMETypePNG}))
	assert.Equal(t, "image.jpg", fileName(imaging.Image{MIMEType: imaging.MIMETypeJPEG}))
}

func TestIsNotModified(t *testing.T) {
	assert.True(t, isNotModified(errors.New("Bad Request: message is not modified: specified new message content")))
	assert.False(t, isNotModified(errors.New("Bad Request: chat not found")))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorContains(t, err, "token")

	_, err = New(Options{Token: "t"})
	assert.ErrorContains(t, err, "http client")
}
