package tryon

import (
	"errors"
	"fmt"
	"image"

	"tryon-studio/internal/gemini"
	"tryon-studio/internal/imaging"
	"tryon-studio/internal/session"
	"tryon-studio/internal/style"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNoResult       = errors.New("nothing has been generated yet")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrNothingToRedo  = errors.New("nothing to redo")
	ErrEmptyImage     = errors.New("image is empty")
	// ErrSuperseded means the session was reset while generating and the
	// result was dropped.
	ErrSuperseded     = errors.New("session was reset during generation")

	ErrMissingImages = session.ErrMissingImages
	ErrNoUserImage   = session.ErrNoUserImage
	ErrNoPendingCrop = session.ErrNoPendingCrop
	ErrBusy          = session.ErrBusy
)

const (
	msgBackgroundFailed = "The model failed to remove the background. Please try another image."
	msgNoImage          = "The model did not return an image. Please try adjusting your prompt or images."
)

// ProviderError wraps a failed model call. Its message is shown to users.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case errors.Is(e.Err, gemini.ErrBlocked):
		var blocked *gemini.BlockedError
		if errors.As(e.Err, &blocked) {
			return fmt.Sprintf("%s blocked: %s.", e.Op, blocked.Reason)
		}
		return fmt.Sprintf("%s blocked by safety filters.", e.Op)
	case errors.Is(e.Err, gemini.ErrNoImage) && e.Op == opBackground:
		return msgBackgroundFailed
	case errors.Is(e.Err, gemini.ErrNoImage):
		return msgNoImage
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was caused by bad input rather than a
// failing dependency.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingImages,
		ErrNoUserImage,
		ErrNoPendingCrop,
		ErrNothingToUndo,
		ErrNothingToRedo,
		ErrEmptyImage,
		session.ErrInvalidSlot,
		style.ErrInvalidOption,
		imaging.ErrInvalidRatio,
		imaging.ErrCropOutOfBounds,
		imaging.ErrDegenerateImage,
		imaging.ErrEmptyImage,
		image.ErrFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
