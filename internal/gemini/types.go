package gemini

import (
	"errors"
	"fmt"

	"tryon-studio/internal/imaging"
)

var (
	// ErrNoImage means the model answered without an inline image.
	ErrNoImage = errors.New("model did not return an image")
	// ErrBlocked matches every *BlockedError.
	ErrBlocked = errors.New("blocked by safety filters")
)

// TryOnRequest is the input of ComposeTryOn. Style is optional.
type TryOnRequest struct {
	User        imaging.Image
	Clothing    imaging.Image
	Style       *imaging.Image
	Prompt      string
	AspectRatio string
}

// Response is the decoded first candidate of a generateContent call.
type Response struct {
	Text         string
	Images       []imaging.Image
	BlockReason  string
	FinishReason string
}

type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked: %s", e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API %s: %s", e.Status, e.Body)
}
