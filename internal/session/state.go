package session

import (
	"time"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/style"
)

// State is a copy of a session taken under its lock.
type State struct {
	ID string

	UserImage          *imaging.Image
	ClothingImage      *imaging.Image
	StyleImage         *imaging.Image
	ProcessedUserImage *imaging.Image
	RemoveBackground   bool

	Options style.Options
	CanUndo bool
	CanRedo bool

	Keywords            string
	ClothingDescription string
	StyleDescription    string

	RemovingBackground bool
	AnalyzingClothing  bool
	AnalyzingStyle     bool
	Generating         bool

	PendingCrop *PendingCrop
	Result      *imaging.Image
	Error       string
	Notice      string

	LastActivity time.Time
}

// FinalUserImage is the photo sent to generation: the background-removed
// version while removal is on.
func (s State) FinalUserImage() *imaging.Image {
	if s.RemoveBackground {
		return s.ProcessedUserImage
	}
	return s.UserImage
}

func (s State) Image(slot Slot) *imaging.Image {
	switch slot {
	case SlotUser:
		return s.UserImage
	case SlotClothing:
		return s.ClothingImage
	case SlotStyle:
		return s.StyleImage
	}
	return nil
}

func (s State) Analyzing() bool {
	return s.AnalyzingClothing || s.AnalyzingStyle
}

// CanGenerate mirrors the enabled state of the generate action.
func (s State) CanGenerate() bool {
	return s.UserImage != nil && s.ClothingImage != nil &&
		!s.Generating && !s.RemovingBackground && !s.Analyzing()
}
