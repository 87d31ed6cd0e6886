package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon-studio/internal/gemini"
	"tryon-studio/internal/imaging"
	"tryon-studio/internal/mediagroup"
	"tryon-studio/internal/session"
	"tryon-studio/internal/style"
	"tryon-studio/internal/telegram"
	"tryon-studio/internal/tryon"
)

const (
	testChat int64 = 42
	testUser int64 = 7
)

type sentText struct {
	MessageID int
	Text      string
	Keyboard  *telegram.InlineKeyboard
	Edit      bool
}

type callbackAnswer struct {
	ID    string
	Text  string
	Alert bool
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	texts     []sentText
	images    []imaging.Image
	documents []imaging.Image
	answers   []callbackAnswer
	files     map[string]imaging.Image
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, files: make(map[string]imaging.Image)}
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, sentText{MessageID: f.nextID, Text: text})
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb telegram.InlineKeyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, sentText{MessageID: f.nextID, Text: text, Keyboard: &kb})
	return f.nextID, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(_ int64, messageID int, text string, kb telegram.InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{MessageID: messageID, Text: text, Keyboard: &kb, Edit: true})
	return nil
}

func (f *fakeMessenger) AnswerCallback(id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, callbackAnswer{ID: id, Text: text, Alert: alert})
	return nil
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendImage(_ int64, img imaging.Image, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	return nil
}

func (f *fakeMessenger) SendDocument(_ int64, img imaging.Image, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, img)
	return nil
}

func (f *fakeMessenger) DownloadImage(_ context.Context, fileID string) (imaging.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.files[fileID]
	if !ok {
		return imaging.Image{}, fmt.Errorf("file %s not found", fileID)
	}
	return img, nil
}

func (f *fakeMessenger) lastText() sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return sentText{}
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeMessenger) lastAnswer() callbackAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return callbackAnswer{}
	}
	return f.answers[len(f.answers)-1]
}

func (f *fakeMessenger) sentImages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images)
}

type fakeProvider struct {
	mu        sync.Mutex
	compose   int
	onCompose func()
}

func (p *fakeProvider) Describe(context.Context, imaging.Image, string) (string, error) {
	return "a red jacket", nil
}

func (p *fakeProvider) RemoveBackground(context.Context, imaging.Image) (imaging.Image, error) {
	return pngImage("cutout.png", 30, 40), nil
}

func (p *fakeProvider) ComposeTryOn(context.Context, gemini.TryOnRequest) (imaging.Image, error) {
	p.mu.Lock()
	p.compose++
	hook := p.onCompose
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return pngImage("virtual-try-on.png", 64, 64), nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.compose
}

func pngImage(name string, w, h int) imaging.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return imaging.Image{Name: name, MIMEType: imaging.MIMETypePNG, Data: buf.Bytes()}
}

type harness struct {
	h        *Handler
	tg       *fakeMessenger
	svc      *tryon.Service
	provider *fakeProvider
}

func newHarness(t *testing.T) harness {
	t.Helper()
	tg := newFakeMessenger()
	p := &fakeProvider{}
	svc := tryon.New(tryon.Options{Provider: p, EffectTimeout: 5 * time.Second})
	h := New(Options{Messenger: tg, Service: svc, EffectWait: 5 * time.Second})
	t.Cleanup(func() {
		h.Close()
		svc.Close()
	})
	return harness{h: h, tg: tg, svc: svc, provider: p}
}

func (hs harness) state(t *testing.T) session.State {
	t.Helper()
	st, err := hs.svc.State(sessionID(testChat, testUser))
	require.NoError(t, err)
	return st
}

func (hs harness) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hs.svc.WaitIdle(ctx, sessionID(testChat, testUser)))
}

func commandUpdate(text string) telegram.Update {
	name := strings.Fields(text)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUser},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func textUpdate(text string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: testUser},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
	}}
}

func photoUpdate(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: testUser},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Caption:   caption,
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 300, Height: 300},
		},
	}}
}

func callbackUpdate(from int64, messageID int, parts ...string) telegram.Update {
	return telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + strings.Join(parts, "-"),
		From: &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: testChat},
		},
		Data: cb(testUser, parts...),
	}}
}

func buttonData(kb *telegram.InlineKeyboard) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out = append(out, *b.CallbackData)
			}
		}
	}
	return out
}

func indexOf(t *testing.T, list []style.NamedOption, key string) string {
	t.Helper()
	for i, o := range list {
		if o.Key == key {
			return strconv.Itoa(i)
		}
	}
	t.Fatalf("key %q not in catalog", key)
	return ""
}

func TestParseCallback(t *testing.T) {
	c, ok := parseCallback(cb(7, actSet, style.FieldLighting, "2"))
	require.True(t, ok)
	assert.Equal(t, int64(7), c.Owner)
	assert.Equal(t, actSet, c.Action)
	assert.Equal(t, []string{style.FieldLighting, "2"}, c.Args)

	for _, bad := range []string{"", "to", "to:7", "to:x:set", "pv:7:set", "to:7:"} {
		_, ok := parseCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	const owner int64 = -1000000000000
	for field, list := range style.Catalog() {
		data := cb(owner, actSet, field, strconv.Itoa(len(list)-1))
		assert.LessOrEqual(t, len(data), 64, data)
	}
}

func TestOptionAt(t *testing.T) {
	v, ok := optionAt(style.FieldAspectRatio, "0")
	require.True(t, ok)
	assert.Equal(t, style.AspectRatios()[0].Key, v)

	_, ok = optionAt(style.FieldAspectRatio, "99")
	assert.False(t, ok)
	_, ok = optionAt(style.FieldAspectRatio, "-1")
	assert.False(t, ok)
	_, ok = optionAt("colour", "0")
	assert.False(t, ok)
}

func TestStartSendsPanel(t *testing.T) {
	hs := newHarness(t)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/start")))

	last := hs.tg.lastText()
	require.NotNil(t, last.Keyboard)
	assert.Contains(t, last.Text, "Virtual try-on")
	assert.Equal(t, last.MessageID, hs.h.ui.Get(testChat, testUser).MessageID)
	assert.Contains(t, buttonData(last.Keyboard), cb(testUser, actGenerate))
}

func TestDisabledHistoryButtons(t *testing.T) {
	kb := mainKeyboard(testUser, session.State{Options: style.Default()})
	data := buttonData(&kb)
	assert.NotContains(t, data, cb(testUser, actUndo))
	assert.NotContains(t, data, cb(testUser, actRedo))
	assert.Contains(t, data, cb(testUser, actNoop))
	assert.NotContains(t, data, cb(testUser, actExport))

	kb = mainKeyboard(testUser, session.State{Options: style.Default(), CanUndo: true, Result: &imaging.Image{}})
	data = buttonData(&kb)
	assert.Contains(t, data, cb(testUser, actUndo))
	assert.Contains(t, data, cb(testUser, actExport))
}

func TestPhotoCropFlow(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["me"] = pngImage("me.png", 300, 300)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), photoUpdate("me", "")))

	prompt := hs.tg.lastText()
	require.NotNil(t, prompt.Keyboard)
	assert.Contains(t, prompt.Text, "3:4")
	require.NotNil(t, hs.state(t).PendingCrop)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, prompt.MessageID, actCrop, cropCenter)))

	st := hs.state(t)
	assert.Nil(t, st.PendingCrop)
	require.NotNil(t, st.UserImage)
	w, h, err := imaging.Size(*st.UserImage)
	require.NoError(t, err)
	assert.Equal(t, 225, w)
	assert.Equal(t, 300, h)

	edited := hs.tg.lastText()
	assert.True(t, edited.Edit)
	assert.Equal(t, prompt.MessageID, edited.MessageID)
	assert.False(t, hs.tg.lastAnswer().Alert)
}

func TestPhotoCaptionChoosesSlot(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["ref"] = pngImage("ref.png", 40, 40)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), photoUpdate("ref", "style")))
	hs.waitIdle(t)

	st := hs.state(t)
	assert.NotNil(t, st.StyleImage)
	assert.Nil(t, st.PendingCrop)
	assert.Equal(t, "a red jacket", st.StyleDescription)
}

func TestAwaitButtonRoutesNextPhoto(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["shirt"] = pngImage("shirt.png", 50, 80)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 9, actAwait, string(session.SlotClothing))))
	assert.Equal(t, session.SlotClothing, hs.h.ui.Get(testChat, testUser).AwaitingSlot)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), photoUpdate("shirt", "")))
	st := hs.state(t)
	require.NotNil(t, st.PendingCrop)
	assert.Equal(t, session.SlotClothing, st.PendingCrop.Slot)
	assert.Equal(t, session.Slot(""), hs.h.ui.Get(testChat, testUser).AwaitingSlot)
}

func TestAlbumFillsSlotsInOrder(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["a"] = pngImage("a.png", 30, 40)
	hs.tg.files["b"] = pngImage("b.png", 40, 40)
	hs.tg.files["c"] = pngImage("c.png", 50, 40)

	hs.h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  testChat,
		UserID:  testUser,
		FileIDs: []string{"a", "b", "c"},
	})
	hs.waitIdle(t)

	st := hs.state(t)
	require.NotNil(t, st.UserImage)
	require.NotNil(t, st.ClothingImage)
	require.NotNil(t, st.StyleImage)
	assert.Equal(t, "a.png", st.UserImage.Name)
	assert.Equal(t, "b.png", st.ClothingImage.Name)
	assert.Equal(t, "c.png", st.StyleImage.Name)
	assert.Equal(t, "a red jacket", st.ClothingDescription)
}

func TestAlbumDownloadFailure(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["a"] = pngImage("a.png", 30, 40)

	hs.h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  testChat,
		UserID:  testUser,
		FileIDs: []string{"a", "missing"},
	})

	assert.Contains(t, hs.tg.lastText().Text, "Could not download")
	assert.Nil(t, hs.state(t).UserImage)
}

func TestSetOptionCallback(t *testing.T) {
	hs := newHarness(t)
	list := style.LightingStyles()

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actMenu, style.FieldLighting)))
	assert.Equal(t, style.FieldLighting, hs.h.ui.Get(testChat, testUser).Menu)
	assert.Contains(t, buttonData(hs.tg.lastText().Keyboard), cb(testUser, actSet, style.FieldLighting, "1"))

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actSet, style.FieldLighting, "1")))

	st := hs.state(t)
	assert.Equal(t, list[1].Key, st.Options.Lighting)
	assert.True(t, st.CanUndo)
	assert.Equal(t, menuMain, hs.h.ui.Get(testChat, testUser).Menu)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actUndo)))
	assert.Equal(t, list[0].Key, hs.state(t).Options.Lighting)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actRedo)))
	assert.Equal(t, list[1].Key, hs.state(t).Options.Lighting)
}

func TestHDRToggle(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actHDR)))
	assert.True(t, hs.state(t).Options.HDR)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actHDR)))
	assert.False(t, hs.state(t).Options.HDR)
}

func TestInvalidOptionIndexAlerts(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actSet, style.FieldPose, "42")))

	answer := hs.tg.lastAnswer()
	assert.True(t, answer.Alert)
	assert.Contains(t, answer.Text, "invalid style option")
	assert.False(t, hs.state(t).CanUndo)
}

func TestCustomLocationFromText(t *testing.T) {
	hs := newHarness(t)
	idx := indexOf(t, style.LocationPreferences(), style.LocationCustom)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(testUser, 5, actSet, style.FieldLocation, idx)))
	assert.Equal(t, style.FieldCustomLocation, hs.h.ui.Get(testChat, testUser).AwaitingText)
	assert.Contains(t, hs.tg.lastAnswer().Text, "location")

	require.NoError(t, hs.h.HandleUpdate(context.Background(), textUpdate("a rooftop in Lisbon")))

	st := hs.state(t)
	assert.Equal(t, style.LocationCustom, st.Options.Location)
	assert.Equal(t, "a rooftop in Lisbon", st.Options.CustomLocation)
	assert.Empty(t, hs.h.ui.Get(testChat, testUser).AwaitingText)
	assert.Contains(t, hs.tg.lastText().Text, "a rooftop in Lisbon")
}

func TestKeywords(t *testing.T) {
	hs := newHarness(t)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/keywords red scarf, autumn")))
	assert.Equal(t, "red scarf, autumn", hs.state(t).Keywords)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/keywords")))
	assert.Equal(t, awaitKeywords, hs.h.ui.Get(testChat, testUser).AwaitingText)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), textUpdate("-")))
	assert.Empty(t, hs.state(t).Keywords)
}

func TestPlainTextWithoutPrompt(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), textUpdate("hello")))
	assert.Contains(t, hs.tg.lastText().Text, "Send a photo")
}

func TestCallbackFromAnotherUser(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), callbackUpdate(99, 5, actHDR)))

	answer := hs.tg.lastAnswer()
	assert.True(t, answer.Alert)
	assert.False(t, hs.svc.Session(sessionID(testChat, testUser)).Options.HDR)
}

func TestGenerateRequiresBothImages(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/generate")))

	assert.Contains(t, hs.tg.lastText().Text, tryon.ErrMissingImages.Error())
	assert.Equal(t, 0, hs.provider.calls())
}

func TestGenerateExportAndLooks(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["a"] = pngImage("a.png", 30, 40)
	hs.tg.files["b"] = pngImage("b.png", 40, 40)
	hs.h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  testChat,
		UserID:  testUser,
		FileIDs: []string{"a", "b"},
	})

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/generate")))
	assert.Equal(t, 1, hs.provider.calls())
	assert.Equal(t, 1, hs.tg.sentImages())
	require.NotNil(t, hs.state(t).Result)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/export")))
	require.Len(t, hs.tg.documents, 1)
	assert.Equal(t, imaging.ExportName, hs.tg.documents[0].Name)

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/looks")))
	assert.Equal(t, 2, hs.tg.sentImages())
}

func TestGenerateDroppedByResetSendsNothing(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["a"] = pngImage("a.png", 30, 40)
	hs.tg.files["b"] = pngImage("b.png", 40, 40)
	hs.h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  testChat,
		UserID:  testUser,
		FileIDs: []string{"a", "b"},
	})
	hs.waitIdle(t)
	hs.provider.onCompose = func() {
		require.NoError(t, hs.svc.Reset(sessionID(testChat, testUser)))
	}

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/generate")))
	assert.Equal(t, 1, hs.provider.calls())
	assert.Equal(t, 0, hs.tg.sentImages())
	assert.NotContains(t, hs.tg.lastText().Text, "❌")
	assert.Nil(t, hs.state(t).Result)
}

func TestExportWithoutResult(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/export")))
	assert.Contains(t, hs.tg.lastText().Text, tryon.ErrNoResult.Error())
}

func TestResetClearsSessionAndUI(t *testing.T) {
	hs := newHarness(t)
	hs.tg.files["me"] = pngImage("me.png", 40, 40)
	require.NoError(t, hs.h.HandleUpdate(context.Background(), photoUpdate("me", "style")))
	hs.h.ui.Update(testChat, testUser, func(ui *UIState) { ui.AwaitingText = awaitKeywords })

	require.NoError(t, hs.h.HandleUpdate(context.Background(), commandUpdate("/reset")))

	assert.Nil(t, hs.state(t).StyleImage)
	assert.Empty(t, hs.h.ui.Get(testChat, testUser).AwaitingText)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, tryon.ErrBusy.Error(), userMessage(tryon.ErrBusy))
	assert.Contains(t, userMessage(fmt.Errorf("decode: %w", image.ErrFormat)), "Unsupported image format")
	assert.Contains(t, userMessage(context.DeadlineExceeded), "timed out")
	assert.Equal(t, "Something went wrong. Please try again.", userMessage(errors.New("boom")))

	pe := &tryon.ProviderError{Op: "Image generation", Err: errors.New("503")}
	assert.Equal(t, pe.Error(), userMessage(pe))
}

func TestPickSlot(t *testing.T) {
	img := &imaging.Image{Name: "x"}
	assert.Equal(t, session.SlotUser, pickSlot("", UIState{}, session.State{}))
	assert.Equal(t, session.SlotClothing, pickSlot("", UIState{}, session.State{UserImage: img}))
	assert.Equal(t, session.SlotStyle, pickSlot(" Style ", UIState{}, session.State{}))
	assert.Equal(t, session.SlotClothing, pickSlot("", UIState{AwaitingSlot: session.SlotClothing}, session.State{}))
}
