package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tryon-studio/internal/history"
	"tryon-studio/internal/imaging"
	"tryon-studio/internal/style"
)

var (
	ErrMissingImages = errors.New("please upload both a photo of yourself and a clothing item")
	ErrNoUserImage   = errors.New("please upload your photo first")
	ErrNoPendingCrop = errors.New("no image is waiting to be cropped")
	ErrBusy          = errors.New("still processing, try again in a moment")
	ErrInvalidSlot   = errors.New("invalid image slot")
)

type Slot string

const (
	SlotUser     Slot = "user"
	SlotClothing Slot = "clothing"
	SlotStyle    Slot = "style"
)

func ParseSlot(s string) (Slot, error) {
	switch slot := Slot(strings.ToLower(strings.TrimSpace(s))); slot {
	case SlotUser, SlotClothing, SlotStyle:
		return slot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

// CropRatio is the aspect the crop step enforces for a slot. The style slot
// is never cropped.
func (s Slot) CropRatio() string {
	switch s {
	case SlotUser:
		return "3:4"
	case SlotClothing:
		return "1:1"
	}
	return ""
}

// Effect names an asynchronous job derived from an input image.
type Effect string

const (
	EffectBackground Effect = "background"
	EffectClothing   Effect = "clothing"
	EffectStyle      Effect = "style"
)

// Job is one run of an effect. It applies only while Version is current.
type Job struct {
	Effect  Effect
	Version uint64
	Input   imaging.Image
}

type PendingCrop struct {
	Image   imaging.Image
	Slot    Slot
	Ratio   string
	// Version identifies this upload; a newer BeginCrop replaces it.
	Version uint64
}

// Generation is the snapshot Generate works on.
type Generation struct {
	Version  uint64
	User     imaging.Image
	Clothing imaging.Image
	Style    *imaging.Image
	Options  style.Options
	Prompt   string
}

type Session struct {
	ID string

	mu sync.Mutex

	user      *imaging.Image
	clothing  *imaging.Image
	styleRef  *imaging.Image
	processed *imaging.Image

	removeBackground bool
	history          *history.History[style.Options]
	keywords         string
	clothingDesc     string
	styleDesc        string

	versions   map[Effect]uint64
	inflight   map[Effect]bool
	generating bool
	genVersion uint64
	idle       chan struct{}

	pending     *PendingCrop
	cropVersion uint64
	result      *imaging.Image
	err         string
	notice      string

	lastActivity time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		history:      history.New(style.Default()),
		versions:     make(map[Effect]uint64),
		inflight:     make(map[Effect]bool),
		idle:         closedChan(),
		lastActivity: now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Busy reports whether an effect or a generation is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating || s.anyInflightLocked()
}

// Idle returns a channel closed once no effect is in flight.
func (s *Session) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// SetImage replaces the image in slot (nil clears it) and returns the jobs
// the change triggers.
func (s *Session) SetImage(slot Slot, img *imaging.Image) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	switch slot {
	case SlotUser:
		s.user = copyImage(img)
		s.processed = nil
		if img == nil {
			s.removeBackground = false
		}
		return s.backgroundJobLocked(), nil
	case SlotClothing:
		s.clothing = copyImage(img)
		s.clothingDesc = ""
		return s.analysisJobLocked(EffectClothing, s.clothing), nil
	case SlotStyle:
		s.styleRef = copyImage(img)
		s.styleDesc = ""
		return s.analysisJobLocked(EffectStyle, s.styleRef), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
}

// SetRemoveBackground flips the toggle. Turning it on without a user photo
// fails with ErrNoUserImage.
func (s *Session) SetRemoveBackground(on bool) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if on && s.user == nil {
		s.err = ErrNoUserImage.Error()
		return nil, ErrNoUserImage
	}
	if s.removeBackground == on {
		return nil, nil
	}
	s.removeBackground = on
	s.processed = nil
	return s.backgroundJobLocked(), nil
}

// CompleteBackground applies a background removal result. failure is the
// user-visible message when the job failed; the toggle is then reverted.
func (s *Session) CompleteBackground(job Job, img *imaging.Image, failure string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(job) {
		return false
	}
	s.finishLocked(job.Effect)

	if failure != "" || img == nil {
		s.err = failure
		s.removeBackground = false
		s.processed = nil
		return true
	}
	s.processed = copyImage(img)
	return true
}

// CompleteDescription applies an analysis result. Failures leave the
// description empty and set notice.
func (s *Session) CompleteDescription(job Job, text, notice string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(job) {
		return false
	}
	s.finishLocked(job.Effect)

	if notice != "" {
		text = ""
		s.notice = notice
	}
	switch job.Effect {
	case EffectClothing:
		s.clothingDesc = text
	case EffectStyle:
		s.styleDesc = text
	}
	return true
}

func (s *Session) BeginCrop(slot Slot, img imaging.Image) (PendingCrop, error) {
	ratio := slot.CropRatio()
	if ratio == "" {
		return PendingCrop{}, fmt.Errorf("%w: %q cannot be cropped", ErrInvalidSlot, slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	s.cropVersion++
	s.pending = &PendingCrop{Image: img, Slot: slot, Ratio: ratio, Version: s.cropVersion}
	return *s.pending, nil
}

// TakePendingCrop removes and returns the pending crop.
func (s *Session) TakePendingCrop() (PendingCrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.pending == nil {
		return PendingCrop{}, ErrNoPendingCrop
	}
	p := *s.pending
	s.pending = nil
	return p, nil
}

// TakePendingCropIf removes the pending crop only while it is still the
// upload identified by version.
func (s *Session) TakePendingCropIf(version uint64) (PendingCrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.pending == nil || s.pending.Version != version {
		return PendingCrop{}, ErrNoPendingCrop
	}
	p := *s.pending
	s.pending = nil
	return p, nil
}

func (s *Session) PendingCrop() (PendingCrop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingCrop{}, false
	}
	return *s.pending, true
}

func (s *Session) CancelCrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	had := s.pending != nil
	s.pending = nil
	return had
}

// UpdateOptions pushes fn(present) onto the history. Invalid results leave
// the history untouched.
func (s *Session) UpdateOptions(fn func(style.Options) (style.Options, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	next, err := fn(s.history.Present())
	if err != nil {
		return s.stateLocked(), err
	}
	if err := next.Validate(); err != nil {
		return s.stateLocked(), err
	}
	s.history.Push(next)
	return s.stateLocked(), nil
}

func (s *Session) Undo() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	ok := s.history.Undo()
	return s.stateLocked(), ok
}

func (s *Session) Redo() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	ok := s.history.Redo()
	return s.stateLocked(), ok
}

func (s *Session) SetKeywords(keywords string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	s.keywords = strings.TrimSpace(keywords)
	return s.stateLocked()
}

// BeginGeneration validates the inputs and marks the session as generating.
// build renders the prompt for the captured state.
func (s *Session) BeginGeneration(build func(State) string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	st := s.stateLocked()
	final := st.FinalUserImage()
	if final == nil || s.clothing == nil {
		s.err = ErrMissingImages.Error()
		return Generation{}, ErrMissingImages
	}
	if s.generating || s.anyInflightLocked() {
		return Generation{}, ErrBusy
	}

	s.generating = true
	s.genVersion++
	s.err = ""
	s.result = nil

	return Generation{
		Version:  s.genVersion,
		User:     *final,
		Clothing: *s.clothing,
		Style:    copyImage(s.styleRef),
		Options:  st.Options,
		Prompt:   build(st),
	}, nil
}

// FinishGeneration stores the result of gen. It reports false when the
// session was reset in the meantime.
func (s *Session) FinishGeneration(gen Generation, img *imaging.Image, failure string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen.Version != s.genVersion || !s.generating {
		return false
	}
	s.generating = false
	s.touchLocked()

	if failure != "" || img == nil {
		s.err = failure
		return true
	}
	s.result = copyImage(img)
	return true
}

func (s *Session) DismissMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
	s.notice = ""
}

// Reset restores a fresh workspace. Running jobs become stale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range []Effect{EffectBackground, EffectClothing, EffectStyle} {
		s.versions[e]++
		s.inflight[e] = false
	}
	s.genVersion++
	s.generating = false
	s.syncIdleLocked()

	s.user, s.clothing, s.styleRef, s.processed = nil, nil, nil, nil
	s.removeBackground = false
	s.history.Reset(style.Default())
	s.keywords, s.clothingDesc, s.styleDesc = "", "", ""
	s.pending = nil
	s.result = nil
	s.err, s.notice = "", ""
	s.touchLocked()
}

func (s *Session) backgroundJobLocked() []Job {
	if s.removeBackground && s.user != nil {
		return []Job{s.startLocked(EffectBackground, *s.user)}
	}
	s.cancelLocked(EffectBackground)
	return nil
}

func (s *Session) analysisJobLocked(effect Effect, img *imaging.Image) []Job {
	if img != nil {
		return []Job{s.startLocked(effect, *img)}
	}
	s.cancelLocked(effect)
	return nil
}

func (s *Session) startLocked(effect Effect, input imaging.Image) Job {
	s.versions[effect]++
	s.inflight[effect] = true
	s.err = ""
	s.syncIdleLocked()
	return Job{Effect: effect, Version: s.versions[effect], Input: input}
}

func (s *Session) cancelLocked(effect Effect) {
	s.versions[effect]++
	s.inflight[effect] = false
	s.syncIdleLocked()
}

func (s *Session) finishLocked(effect Effect) {
	s.inflight[effect] = false
	s.syncIdleLocked()
	s.touchLocked()
}

func (s *Session) currentLocked(job Job) bool {
	return s.versions[job.Effect] == job.Version && s.inflight[job.Effect]
}

func (s *Session) anyInflightLocked() bool {
	for _, on := range s.inflight {
		if on {
			return true
		}
	}
	return false
}

// syncIdleLocked keeps idle closed exactly while nothing is in flight.
func (s *Session) syncIdleLocked() {
	busy := s.anyInflightLocked()
	select {
	case <-s.idle:
		if busy {
			s.idle = make(chan struct{})
		}
	default:
		if !busy {
			close(s.idle)
		}
	}
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}

func (s *Session) stateLocked() State {
	return State{
		ID:                  s.ID,
		UserImage:           copyImage(s.user),
		ClothingImage:       copyImage(s.clothing),
		StyleImage:          copyImage(s.styleRef),
		ProcessedUserImage:  copyImage(s.processed),
		RemoveBackground:    s.removeBackground,
		Options:             s.history.Present(),
		CanUndo:             s.history.CanUndo(),
		CanRedo:             s.history.CanRedo(),
		Keywords:            s.keywords,
		ClothingDescription: s.clothingDesc,
		StyleDescription:    s.styleDesc,
		RemovingBackground:  s.inflight[EffectBackground],
		AnalyzingClothing:   s.inflight[EffectClothing],
		AnalyzingStyle:      s.inflight[EffectStyle],
		Generating:          s.generating,
		PendingCrop:         copyPending(s.pending),
		Result:              copyImage(s.result),
		Error:               s.err,
		Notice:              s.notice,
		LastActivity:        s.lastActivity,
	}
}

func copyImage(img *imaging.Image) *imaging.Image {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}

func copyPending(p *PendingCrop) *PendingCrop {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
