// Package handlers is the Telegram front-end of the try-on studio: commands,
// photo routing and the inline keyboard panel.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/mediagroup"
	"tryon-studio/internal/session"
	"tryon-studio/internal/style"
	"tryon-studio/internal/telegram"
	"tryon-studio/internal/tryon"
)

const (
	// AlbumLimit is the number of album photos used: user, clothing, style.
	AlbumLimit = 3

	defaultLooksLimit = 5
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.InlineKeyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.InlineKeyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendTyping(chatID int64)
	SendImage(chatID int64, img imaging.Image, caption string) error
	SendDocument(chatID int64, img imaging.Image, caption string) error
	DownloadImage(ctx context.Context, fileID string) (imaging.Image, error)
}

type Options struct {
	Messenger Messenger
	Service   *tryon.Service
	UI        *UIStore
	Logger    *slog.Logger

	// EffectWait bounds how long the panel waits for background effects
	// before it refreshes.
	EffectWait time.Duration
	LooksLimit int
}

type Handler struct {
	tg         Messenger
	svc        *tryon.Service
	ui         *UIStore
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
	effectWait time.Duration
	looksLimit int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ui := opts.UI
	if ui == nil {
		ui = NewUIStore()
	}
	wait := opts.EffectWait
	if wait <= 0 {
		wait = 3 * time.Minute
	}
	looks := opts.LooksLimit
	if looks <= 0 {
		looks = defaultLooksLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		tg:         opts.Messenger,
		svc:        opts.Service,
		ui:         ui,
		logger:     logger,
		effectWait: wait,
		looksLimit: looks,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

// Close stops pending panel refreshes and waits for them.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}

	if fileID, ok := imageFileID(msg); ok {
		if msg.MediaGroupID != "" && h.aggregator != nil {
			h.aggregator.Add(mediagroup.Item{
				ChatID:       chatID,
				UserID:       userID,
				MediaGroupID: msg.MediaGroupID,
				Caption:      msg.Caption,
				FileID:       fileID,
			})
			return nil
		}
		return h.handlePhoto(ctx, chatID, userID, fileID, msg.Caption)
	}

	if strings.TrimSpace(msg.Text) != "" {
		return h.handleText(chatID, userID, msg.Text)
	}
	return nil
}

// HandleMediaGroup fills the user, clothing and style slots from an album,
// in that order. Album photos skip the crop step.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.processAlbum(ctx, group); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	id := sessionID(chatID, userID)
	h.svc.Session(id)

	switch msg.Command() {
	case "start":
		if err := h.tg.SendText(chatID,
			"👗 Virtual Try-On Studio\n\n"+
				"Send a photo of yourself, then a photo of a clothing item. "+
				"Add a style reference photo if you like, pick a style below and press Generate.\n\n"+
				"/help lists every command.",
		); err != nil {
			return err
		}
		return h.renderPanel(chatID, userID, 0, false)
	case "help":
		return h.tg.SendText(chatID,
			"👗 Help\n\n"+
				"Send photos one by one, or as an album of up to 3 (you, clothing, style reference).\n"+
				"Caption a photo with user, clothing or style to choose its slot.\n\n"+
				"/start - open the try-on panel\n"+
				"/generate - create the try-on image\n"+
				"/prompt - show the prompt that will be sent\n"+
				"/export - download the last result with style details\n"+
				"/keywords <text> - extra keywords for the prompt\n"+
				"/looks - your recent looks\n"+
				"/undo, /redo - step through style changes\n"+
				"/cancel - stop waiting for a crop or text\n"+
				"/reset - start over",
		)
	case "reset":
		h.reset(chatID, userID)
		if err := h.tg.SendText(chatID, "✅ Session cleared."); err != nil {
			return err
		}
		return h.renderPanel(chatID, userID, 0, false)
	case "undo":
		if _, err := h.svc.Undo(id); err != nil {
			return h.replyError(chatID, err)
		}
		return h.renderPanel(chatID, userID, 0, false)
	case "redo":
		if _, err := h.svc.Redo(id); err != nil {
			return h.replyError(chatID, err)
		}
		return h.renderPanel(chatID, userID, 0, false)
	case "generate":
		return h.generate(ctx, chatID, userID)
	case "prompt":
		return h.sendPrompt(chatID, id)
	case "export":
		return h.sendExport(chatID, id)
	case "keywords":
		args := strings.TrimSpace(msg.CommandArguments())
		if args == "" {
			h.ui.Update(chatID, userID, func(st *UIState) { st.AwaitingText = awaitKeywords })
			return h.tg.SendText(chatID, "Send the keywords as a message, or \"-\" to clear them.")
		}
		if _, err := h.svc.SetKeywords(id, args); err != nil {
			return h.replyError(chatID, err)
		}
		return h.renderPanel(chatID, userID, 0, false)
	case "looks":
		return h.sendLooks(ctx, chatID, id)
	case "cancel":
		_ = h.svc.CancelCrop(id)
		h.ui.Update(chatID, userID, func(st *UIState) {
			st.AwaitingSlot = ""
			st.AwaitingText = ""
		})
		return h.tg.SendText(chatID, "Cancelled.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID, userID int64, fileID, caption string) error {
	id := sessionID(chatID, userID)
	slot := pickSlot(caption, h.ui.Get(chatID, userID), h.svc.Session(id))

	h.tg.SendTyping(chatID)
	img, err := h.tg.DownloadImage(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	pending, err := h.svc.Upload(id, slot, img)
	if err != nil {
		return h.replyError(chatID, err)
	}
	h.ui.Update(chatID, userID, func(st *UIState) {
		st.AwaitingSlot = ""
		st.AwaitingText = ""
	})

	if pending != nil {
		_, err := h.tg.SendTextWithKeyboard(chatID, cropText(*pending), cropKeyboard(userID))
		return err
	}
	if err := h.renderPanel(chatID, userID, 0, false); err != nil {
		return err
	}
	h.watchEffects(chatID, userID)
	return nil
}

func (h *Handler) processAlbum(ctx context.Context, group mediagroup.Group) error {
	chatID, userID := group.ChatID, group.UserID
	id := sessionID(chatID, userID)
	h.svc.Session(id)
	h.tg.SendTyping(chatID)

	fileIDs := group.FileIDs
	if len(fileIDs) > AlbumLimit {
		fileIDs = fileIDs[:AlbumLimit]
	}

	images := make([]imaging.Image, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		i, fileID := i, fileID
		eg.Go(func() error {
			img, err := h.tg.DownloadImage(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("album download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the album. Please send it again.")
	}

	slots := []session.Slot{session.SlotUser, session.SlotClothing, session.SlotStyle}
	for i, img := range images {
		if err := h.svc.SetImage(id, slots[i], img); err != nil {
			return h.replyError(chatID, err)
		}
	}
	h.ui.Update(chatID, userID, func(st *UIState) { st.AwaitingSlot = "" })

	if group.Dropped > 0 || len(group.FileIDs) > AlbumLimit {
		_ = h.tg.SendText(chatID, "Only the first 3 photos are used: you, the clothing item and a style reference.")
	}
	if err := h.renderPanel(chatID, userID, 0, false); err != nil {
		return err
	}
	h.watchEffects(chatID, userID)
	return nil
}

func (h *Handler) handleText(chatID, userID int64, text string) error {
	id := sessionID(chatID, userID)
	ui := h.ui.Get(chatID, userID)
	text = strings.TrimSpace(text)

	var err error
	switch ui.AwaitingText {
	case "":
		return h.tg.SendText(chatID, "Send a photo, or use /start to open the try-on panel.")
	case awaitKeywords:
		if text == "-" {
			text = ""
		}
		_, err = h.svc.SetKeywords(id, text)
	default:
		_, err = h.svc.SetOption(id, ui.AwaitingText, text)
	}
	if err != nil {
		return h.replyError(chatID, err)
	}

	h.ui.Update(chatID, userID, func(st *UIState) { st.AwaitingText = "" })
	return h.renderPanel(chatID, userID, 0, false)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return nil
	}
	c, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if c.Owner != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This panel belongs to someone else.", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	userID := c.Owner
	id := sessionID(chatID, userID)
	st := h.svc.Session(id)

	var (
		err    error
		notice string
		watch  bool
	)

	switch c.Action {
	case actMenu:
		menu := arg(c.Args, 0)
		if _, ok := findMenu(menu); !ok {
			menu = menuMain
		}
		h.ui.Update(chatID, userID, func(ui *UIState) { ui.Menu = menu })
	case actSet:
		field := arg(c.Args, 0)
		value, ok := optionAt(field, arg(c.Args, 1))
		if !ok {
			err = fmt.Errorf("%w: %s", style.ErrInvalidOption, field)
			break
		}
		if _, err = h.svc.SetOption(id, field, value); err != nil {
			break
		}
		m, _ := findMenu(field)
		awaiting := ""
		if m.Custom != "" && (value == style.LocationCustom || value == style.PoseCustom) {
			awaiting = m.Custom
			notice = fmt.Sprintf("Send the %s as a message.", strings.ToLower(m.Title))
		}
		h.ui.Update(chatID, userID, func(ui *UIState) {
			ui.Menu = menuMain
			ui.AwaitingText = awaiting
		})
	case actHDR:
		_, err = h.svc.SetOption(id, style.FieldHDR, strconv.FormatBool(!st.Options.HDR))
	case actBG:
		_, err = h.svc.SetRemoveBackground(id, !st.RemoveBackground)
		watch = true
	case actUndo:
		_, err = h.svc.Undo(id)
	case actRedo:
		_, err = h.svc.Redo(id)
	case actAwait:
		var slot session.Slot
		if slot, err = session.ParseSlot(arg(c.Args, 0)); err != nil {
			break
		}
		h.ui.Update(chatID, userID, func(ui *UIState) { ui.AwaitingSlot = slot })
		notice = fmt.Sprintf("Send %s.", slotTitle(slot))
	case actKeywords:
		h.ui.Update(chatID, userID, func(ui *UIState) { ui.AwaitingText = awaitKeywords })
		notice = "Send keywords as a message, or \"-\" to clear them."
	case actCrop:
		switch arg(c.Args, 0) {
		case cropCenter:
			_, err = h.svc.ApplyCrop(id, nil)
		case cropOriginal:
			_, err = h.svc.UseOriginal(id)
		default:
			err = h.svc.CancelCrop(id)
		}
		h.ui.Update(chatID, userID, func(ui *UIState) { ui.Menu = menuMain })
		watch = true
	case actReset:
		h.reset(chatID, userID)
		notice = "Session cleared."
	case actPrompt:
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.sendPrompt(chatID, id)
	case actExport:
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.sendExport(chatID, id)
	case actGenerate:
		_ = h.tg.AnswerCallback(q.ID, "Generating…", false)
		return h.generate(ctx, chatID, userID)
	case actNoop:
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return nil
	default:
		_ = h.tg.AnswerCallback(q.ID, "Unknown action.", false)
		return nil
	}

	if err != nil {
		h.logError(err)
		_ = h.tg.AnswerCallback(q.ID, userMessage(err), true)
		return nil
	}
	_ = h.tg.AnswerCallback(q.ID, notice, false)

	if err := h.renderPanel(chatID, userID, msgID, true); err != nil {
		return err
	}
	if watch {
		h.watchEffects(chatID, userID)
	}
	return nil
}

func (h *Handler) generate(ctx context.Context, chatID, userID int64) error {
	id := sessionID(chatID, userID)
	st := h.svc.Session(id)
	if st.UserImage == nil || st.ClothingImage == nil {
		return h.replyError(chatID, tryon.ErrMissingImages)
	}

	h.tg.SendTyping(chatID)
	if st.RemovingBackground || st.Analyzing() {
		_ = h.tg.SendText(chatID, "⏳ Waiting for your photos to finish processing…")
		if err := h.svc.WaitIdle(ctx, id); err != nil {
			return h.replyError(chatID, err)
		}
	}

	_ = h.tg.SendText(chatID, "🎨 Generating your look, this can take a minute…")
	img, err := h.svc.Generate(ctx, id)
	if errors.Is(err, tryon.ErrSuperseded) {
		h.logger.Debug("generation dropped after reset", "chat_id", chatID)
		return nil
	}
	if err != nil {
		return h.replyError(chatID, err)
	}

	if err := h.tg.SendImage(chatID, img, "✅ Your virtual try-on is ready. /export adds the style details."); err != nil {
		return err
	}
	return h.renderPanel(chatID, userID, 0, false)
}

func (h *Handler) sendPrompt(chatID int64, id string) error {
	p, err := h.svc.Prompt(id)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendText(chatID, p)
}

func (h *Handler) sendExport(chatID int64, id string) error {
	img, err := h.svc.Export(id)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendDocument(chatID, img, "Virtual try-on with style details")
}

func (h *Handler) sendLooks(ctx context.Context, chatID int64, id string) error {
	looks, err := h.svc.Looks(ctx, id, h.looksLimit)
	if err != nil {
		return h.replyError(chatID, err)
	}
	if len(looks) == 0 {
		return h.tg.SendText(chatID, "No saved looks yet. Generate one first.")
	}

	for i, look := range looks {
		caption := fmt.Sprintf("%d. %s, %s", i+1,
			look.CreatedAt.Local().Format("2006-01-02 15:04"),
			style.Label(style.ArtisticStyles(), look.Options.ArtisticStyle))
		img := imaging.New(look.ID+".png", look.MIMEType, look.Data)
		if err := h.tg.SendImage(chatID, img, caption); err != nil {
			return err
		}
	}
	return nil
}

// renderPanel edits the panel message when possible and sends a new one
// otherwise.
func (h *Handler) renderPanel(chatID, userID int64, messageID int, edit bool) error {
	st := h.svc.Session(sessionID(chatID, userID))
	ui := h.ui.Get(chatID, userID)
	if messageID == 0 {
		messageID = ui.MessageID
	}

	text := panelText(st)
	kb := panelKeyboard(userID, st, ui)

	if edit && messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, messageID, text, kb); err == nil {
			h.ui.Update(chatID, userID, func(ui *UIState) { ui.MessageID = messageID })
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.ui.Update(chatID, userID, func(ui *UIState) { ui.MessageID = msgID })
	return nil
}

// watchEffects refreshes the panel once background removal and analysis
// have settled.
func (h *Handler) watchEffects(chatID, userID int64) {
	id := sessionID(chatID, userID)
	st := h.svc.Session(id)
	if !st.RemovingBackground && !st.Analyzing() {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.effectWait)
		defer cancel()
		if err := h.svc.WaitIdle(ctx, id); err != nil {
			return
		}
		if err := h.renderPanel(chatID, userID, 0, true); err != nil {
			h.logger.Error("panel refresh failed", "chat_id", chatID, "err", err)
		}
	}()
}

func (h *Handler) reset(chatID, userID int64) {
	_ = h.svc.Reset(sessionID(chatID, userID))
	h.ui.Reset(chatID, userID)
}

func (h *Handler) replyError(chatID int64, err error) error {
	h.logError(err)
	return h.tg.SendText(chatID, "❌ "+userMessage(err))
}

func (h *Handler) logError(err error) {
	if tryon.IsValidation(err) || errors.Is(err, tryon.ErrBusy) || errors.Is(err, tryon.ErrNoResult) {
		h.logger.Debug("request rejected", "err", err)
		return
	}
	h.logger.Error("request failed", "err", err)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, image.ErrFormat):
		return "Unsupported image format. Please send a JPEG, PNG or WebP photo."
	case tryon.IsValidation(err), tryon.IsProvider(err),
		errors.Is(err, tryon.ErrBusy), errors.Is(err, tryon.ErrNoResult):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	}
	return "Something went wrong. Please try again."
}

// pickSlot routes a photo: an explicit caption wins, then the slot the
// panel asked for, then the first missing required slot.
func pickSlot(caption string, ui UIState, st session.State) session.Slot {
	if slot, err := session.ParseSlot(caption); err == nil {
		return slot
	}
	if ui.AwaitingSlot != "" {
		return ui.AwaitingSlot
	}
	if st.UserImage == nil {
		return session.SlotUser
	}
	return session.SlotClothing
}

func imageFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

func sessionID(chatID, userID int64) string {
	return fmt.Sprintf("tg:%d:%d", chatID, userID)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
