// Package tryon drives a try-on session: uploads and crops, the background
// effects derived from them, style history and the final generation.
package tryon

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"tryon-studio/internal/gemini"
	"tryon-studio/internal/imaging"
	"tryon-studio/internal/prompt"
	"tryon-studio/internal/session"
	"tryon-studio/internal/storage"
	"tryon-studio/internal/style"
)

const (
	opBackground = "Background removal"
	opClothing   = "Clothing analysis"
	opStyle      = "Style analysis"
	opGenerate   = "Image generation"

	exportTitle = "Style Details"
)

// Provider is the generative model behind the service.
type Provider interface {
	Describe(ctx context.Context, img imaging.Image, instruction string) (string, error)
	RemoveBackground(ctx context.Context, img imaging.Image) (imaging.Image, error)
	ComposeTryOn(ctx context.Context, req gemini.TryOnRequest) (imaging.Image, error)
}

type Options struct {
	Provider Provider
	Sessions *session.Store
	Looks    storage.LookStore
	Logger   *slog.Logger

	// EffectTimeout bounds each background removal or analysis call.
	EffectTimeout time.Duration
}

type Service struct {
	provider      Provider
	sessions      *session.Store
	looks         storage.LookStore
	logger        *slog.Logger
	effectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore()
	}

	looks := opts.Looks
	if looks == nil {
		looks = storage.NewMemoryStorage(0)
	}

	timeout := opts.EffectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		provider:      opts.Provider,
		sessions:      sessions,
		looks:         looks,
		logger:        logger,
		effectTimeout: timeout,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Close cancels running effects and waits for them to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Sessions() *session.Store {
	return s.sessions
}

func (s *Service) CreateSession() session.State {
	return s.sessions.Create().State()
}

// Session returns the session with id, creating it on first use. The bot
// keys sessions by chat and never calls CreateSession.
func (s *Service) Session(id string) session.State {
	return s.sessions.GetOrCreate(id).State()
}

func (s *Service) State(id string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	return sess.State(), nil
}

func (s *Service) DeleteSession(id string) error {
	if !s.sessions.Delete(id) {
		return ErrUnknownSession
	}
	return nil
}

func (s *Service) Reset(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Reset()
	return nil
}

// Upload routes a new image: user and clothing photos wait for a crop, the
// style reference is used as is. The pending crop is returned when one was
// started.
func (s *Service) Upload(id string, slot session.Slot, img imaging.Image) (*session.PendingCrop, error) {
	if slot == session.SlotStyle {
		return nil, s.SetImage(id, slot, img)
	}
	p, err := s.BeginCrop(id, slot, img)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) BeginCrop(id string, slot session.Slot, img imaging.Image) (session.PendingCrop, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.PendingCrop{}, err
	}
	if err := checkImage(img); err != nil {
		return session.PendingCrop{}, err
	}
	return sess.BeginCrop(slot, img)
}

// DefaultCrop is the centered rectangle offered for the pending image.
func (s *Service) DefaultCrop(id string) (image.Rectangle, error) {
	sess, err := s.session(id)
	if err != nil {
		return image.Rectangle{}, err
	}
	p, ok := sess.PendingCrop()
	if !ok {
		return image.Rectangle{}, ErrNoPendingCrop
	}
	return defaultCrop(p)
}

// ApplyCrop crops the pending image to rect, or to the centered default when
// rect is nil. A failed crop keeps the image pending, and a crop whose upload
// was replaced meanwhile fails with ErrNoPendingCrop.
func (s *Service) ApplyCrop(id string, rect *image.Rectangle) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	p, ok := sess.PendingCrop()
	if !ok {
		return sess.State(), ErrNoPendingCrop
	}

	var r image.Rectangle
	if rect != nil {
		r = *rect
	} else if r, err = defaultCrop(p); err != nil {
		return sess.State(), err
	}

	cropped, err := imaging.Crop(p.Image, r)
	if err != nil {
		return sess.State(), fmt.Errorf("crop %s: %w", p.Slot, err)
	}

	// A newer upload may have replaced p while it was being cropped.
	if _, err := sess.TakePendingCropIf(p.Version); err != nil {
		return sess.State(), err
	}
	return s.setImage(sess, p.Slot, &cropped)
}

// UseOriginal accepts the pending image without cropping.
func (s *Service) UseOriginal(id string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	p, err := sess.TakePendingCrop()
	if err != nil {
		return sess.State(), err
	}
	return s.setImage(sess, p.Slot, &p.Image)
}

func (s *Service) CancelCrop(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	if !sess.CancelCrop() {
		return ErrNoPendingCrop
	}
	return nil
}

func (s *Service) SetImage(id string, slot session.Slot, img imaging.Image) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	if err := checkImage(img); err != nil {
		return err
	}
	_, err = s.setImage(sess, slot, &img)
	return err
}

// ClearImage empties slot. Clearing the user photo also turns background
// removal off.
func (s *Service) ClearImage(id string, slot session.Slot) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	return s.setImage(sess, slot, nil)
}

func (s *Service) SetRemoveBackground(id string, on bool) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	jobs, err := sess.SetRemoveBackground(on)
	if err != nil {
		return sess.State(), err
	}
	s.start(sess, jobs)
	return sess.State(), nil
}

func (s *Service) UpdateOptions(id string, patch style.Patch) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	return sess.UpdateOptions(func(o style.Options) (style.Options, error) {
		return o.Merge(patch), nil
	})
}

func (s *Service) SetOption(id, field, value string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	return sess.UpdateOptions(func(o style.Options) (style.Options, error) {
		return o.Set(field, value)
	})
}

func (s *Service) Undo(id string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	st, ok := sess.Undo()
	if !ok {
		return st, ErrNothingToUndo
	}
	return st, nil
}

func (s *Service) Redo(id string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	st, ok := sess.Redo()
	if !ok {
		return st, ErrNothingToRedo
	}
	return st, nil
}

func (s *Service) SetKeywords(id, keywords string) (session.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return session.State{}, err
	}
	return sess.SetKeywords(keywords), nil
}

// Prompt renders the prompt the next generation would send.
func (s *Service) Prompt(id string) (string, error) {
	sess, err := s.session(id)
	if err != nil {
		return "", err
	}
	return buildPrompt(sess.State()), nil
}

// WaitIdle blocks until no effect of the session is in flight.
func (s *Service) WaitIdle(ctx context.Context, id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	select {
	case <-sess.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Result(id string) (imaging.Image, error) {
	sess, err := s.session(id)
	if err != nil {
		return imaging.Image{}, err
	}
	st := sess.State()
	if st.Result == nil {
		return imaging.Image{}, ErrNoResult
	}
	return *st.Result, nil
}

// Export renders the last result with the style caption panel.
func (s *Service) Export(id string) (imaging.Image, error) {
	sess, err := s.session(id)
	if err != nil {
		return imaging.Image{}, err
	}
	st := sess.State()
	if st.Result == nil {
		return imaging.Image{}, ErrNoResult
	}
	return imaging.ExportWithCaption(*st.Result, imaging.Caption{
		Title: exportTitle,
		Lines: st.Options.CaptionLines(),
	})
}

func (s *Service) Looks(ctx context.Context, id string, limit int) ([]storage.Look, error) {
	if _, err := s.session(id); err != nil {
		return nil, err
	}
	return s.looks.ListLooks(ctx, id, limit)
}

func (s *Service) Look(ctx context.Context, lookID string) (storage.Look, error) {
	return s.looks.GetLook(ctx, lookID)
}

// Prune drops sessions idle for longer than maxIdle.
func (s *Service) Prune(maxIdle time.Duration) int {
	n := s.sessions.Prune(maxIdle)
	if n > 0 {
		s.logger.Info("pruned idle sessions", "count", n)
	}
	return n
}

func (s *Service) session(id string) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess, nil
}

func (s *Service) setImage(sess *session.Session, slot session.Slot, img *imaging.Image) (session.State, error) {
	jobs, err := sess.SetImage(slot, img)
	if err != nil {
		return sess.State(), err
	}
	s.start(sess, jobs)
	return sess.State(), nil
}

func buildPrompt(st session.State) string {
	return prompt.Build(prompt.Input{
		Options:             st.Options,
		HasStyleImage:       st.StyleImage != nil,
		RemoveBackground:    st.RemoveBackground,
		ClothingDescription: st.ClothingDescription,
		StyleDescription:    st.StyleDescription,
		UserKeywords:        st.Keywords,
	})
}

func defaultCrop(p session.PendingCrop) (image.Rectangle, error) {
	r, err := imaging.ParseRatio(p.Ratio)
	if err != nil {
		return image.Rectangle{}, err
	}
	w, h, err := imaging.Size(p.Image)
	if err != nil {
		return image.Rectangle{}, err
	}
	return imaging.CenterCropRect(w, h, r)
}

func checkImage(img imaging.Image) error {
	if img.Empty() {
		return ErrEmptyImage
	}
	if _, _, err := imaging.Size(img); err != nil {
		return err
	}
	return nil
}
