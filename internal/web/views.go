package web

import (
	"image"
	"time"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/session"
	"tryon-studio/internal/style"
)

// stateView is the JSON form of a session. Image bytes are never inlined;
// results are fetched from their own endpoints.
type stateView struct {
	ID string `json:"id"`

	UserImage          *imageView `json:"user_image,omitempty"`
	ClothingImage      *imageView `json:"clothing_image,omitempty"`
	StyleImage         *imageView `json:"style_image,omitempty"`
	ProcessedUserImage *imageView `json:"processed_user_image,omitempty"`
	RemoveBackground   bool       `json:"remove_background"`

	Options style.Options `json:"options"`
	CanUndo bool          `json:"can_undo"`
	CanRedo bool          `json:"can_redo"`

	Keywords            string `json:"keywords"`
	ClothingDescription string `json:"clothing_description,omitempty"`
	StyleDescription    string `json:"style_description,omitempty"`

	RemovingBackground bool `json:"removing_background"`
	AnalyzingClothing  bool `json:"analyzing_clothing"`
	AnalyzingStyle     bool `json:"analyzing_style"`
	Generating         bool `json:"generating"`
	CanGenerate        bool `json:"can_generate"`

	PendingCrop *cropView `json:"pending_crop,omitempty"`
	HasResult   bool      `json:"has_result"`
	Error       string    `json:"error,omitempty"`
	Notice      string    `json:"notice,omitempty"`

	LastActivity time.Time `json:"last_activity"`
}

type imageView struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
}

type rectView struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

type cropView struct {
	Slot        session.Slot `json:"slot"`
	Ratio       string       `json:"ratio"`
	Image       imageView    `json:"image"`
	DefaultRect *rectView    `json:"default_rect,omitempty"`
}

func newStateView(st session.State) stateView {
	v := stateView{
		ID:                  st.ID,
		UserImage:           newImageView(st.UserImage),
		ClothingImage:       newImageView(st.ClothingImage),
		StyleImage:          newImageView(st.StyleImage),
		ProcessedUserImage:  newImageView(st.ProcessedUserImage),
		RemoveBackground:    st.RemoveBackground,
		Options:             st.Options,
		CanUndo:             st.CanUndo,
		CanRedo:             st.CanRedo,
		Keywords:            st.Keywords,
		ClothingDescription: st.ClothingDescription,
		StyleDescription:    st.StyleDescription,
		RemovingBackground:  st.RemovingBackground,
		AnalyzingClothing:   st.AnalyzingClothing,
		AnalyzingStyle:      st.AnalyzingStyle,
		Generating:          st.Generating,
		CanGenerate:         st.CanGenerate(),
		HasResult:           st.Result != nil,
		Error:               st.Error,
		Notice:              st.Notice,
		LastActivity:        st.LastActivity,
	}
	if st.PendingCrop != nil {
		c := cropView{Slot: st.PendingCrop.Slot, Ratio: st.PendingCrop.Ratio, Image: *newImageView(&st.PendingCrop.Image)}
		v.PendingCrop = &c
	}
	return v
}

func newImageView(img *imaging.Image) *imageView {
	if img == nil {
		return nil
	}
	return &imageView{Name: img.Name, MIMEType: img.MIMEType, Bytes: len(img.Data)}
}

func newCropView(p session.PendingCrop, rect image.Rectangle) cropView {
	r := newRectView(rect)
	return cropView{
		Slot:        p.Slot,
		Ratio:       p.Ratio,
		Image:       *newImageView(&p.Image),
		DefaultRect: &r,
	}
}

func newRectView(r image.Rectangle) rectView {
	return rectView{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
}

func (r rectView) rectangle() image.Rectangle {
	return image.Rect(r.X0, r.Y0, r.X1, r.Y1)
}
