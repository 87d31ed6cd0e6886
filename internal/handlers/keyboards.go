package handlers

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/session"
	"tryon-studio/internal/style"
)

const callbackPrefix = "to"

// Callback actions.
const (
	actMenu     = "menu"
	actSet      = "set"
	actHDR      = "hdr"
	actBG       = "bg"
	actUndo     = "undo"
	actRedo     = "redo"
	actAwait    = "await"
	actGenerate = "gen"
	actExport   = "export"
	actPrompt   = "prompt"
	actKeywords = "kw"
	actReset    = "reset"
	actCrop     = "crop"
	actNoop     = "noop"

	cropCenter   = "center"
	cropOriginal = "orig"
	cropCancel   = "cancel"
)

type optionMenu struct {
	Field  string
	Title  string
	Custom string // free-text field filled when the "custom" key is picked
}

var optionMenus = []optionMenu{
	{Field: style.FieldAspectRatio, Title: "Aspect ratio"},
	{Field: style.FieldLighting, Title: "Lighting"},
	{Field: style.FieldCameraAngle, Title: "Camera angle"},
	{Field: style.FieldArtisticStyle, Title: "Artistic style"},
	{Field: style.FieldQuality, Title: "Quality"},
	{Field: style.FieldLocation, Title: "Location", Custom: style.FieldCustomLocation},
	{Field: style.FieldPose, Title: "Pose", Custom: style.FieldCustomPose},
}

func findMenu(field string) (optionMenu, bool) {
	for _, m := range optionMenus {
		if m.Field == field {
			return m, true
		}
	}
	return optionMenu{}, false
}

type callback struct {
	Owner  int64
	Action string
	Args   []string
}

// Option values contain ':' and spaces, so keyboards send catalog indexes.
func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

func parseCallback(data string) (callback, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return callback{}, false
	}
	owner, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return callback{}, false
	}
	return callback{Owner: owner, Action: parts[2], Args: parts[3:]}, true
}

// optionAt resolves a "set" callback back to the catalog key.
func optionAt(field, index string) (string, bool) {
	list, ok := style.Catalog()[field]
	if !ok {
		return "", false
	}
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= len(list) {
		return "", false
	}
	return list[i].Key, true
}

func panelText(st session.State) string {
	var b strings.Builder
	b.WriteString("👗 Virtual try-on\n\n")

	fmt.Fprintf(&b, "Your photo: %s\n", slotStatus(st.UserImage, st.RemovingBackground, "removing background…"))
	if st.RemoveBackground && st.ProcessedUserImage != nil {
		b.WriteString("  background removed\n")
	}
	fmt.Fprintf(&b, "Clothing: %s\n", slotStatus(st.ClothingImage, st.AnalyzingClothing, "analysing…"))
	ref := "optional"
	if st.StyleImage != nil || st.AnalyzingStyle {
		ref = slotStatus(st.StyleImage, st.AnalyzingStyle, "analysing…")
	}
	fmt.Fprintf(&b, "Style reference: %s\n\n", ref)

	o := st.Options
	fmt.Fprintf(&b, "Style: %s\n", style.Label(style.ArtisticStyles(), o.ArtisticStyle))
	fmt.Fprintf(&b, "Aspect: %s\n", style.Label(style.AspectRatios(), o.AspectRatio))
	fmt.Fprintf(&b, "Lighting: %s\n", style.Label(style.LightingStyles(), o.Lighting))
	fmt.Fprintf(&b, "Camera: %s\n", style.Label(style.CameraAngles(), o.CameraAngle))
	fmt.Fprintf(&b, "Quality: %s, HDR %s\n", style.Label(style.OutputQualities(), o.Quality), onOff(o.HDR))
	fmt.Fprintf(&b, "Location: %s\n", customised(style.LocationPreferences(), o.Location, style.LocationCustom, o.CustomLocation))
	fmt.Fprintf(&b, "Pose: %s\n", customised(style.PosePreferences(), o.Pose, style.PoseCustom, o.CustomPose))
	if kw := strings.TrimSpace(st.Keywords); kw != "" {
		fmt.Fprintf(&b, "Keywords: %s\n", truncateLine(kw, 80))
	}

	switch {
	case st.Generating:
		b.WriteString("\n🎨 Generating…")
	case st.PendingCrop != nil:
		fmt.Fprintf(&b, "\n✂️ Waiting for the crop of %s.", slotTitle(st.PendingCrop.Slot))
	case !st.CanGenerate() && (st.UserImage == nil || st.ClothingImage == nil):
		b.WriteString("\nSend a photo of yourself and a clothing item to start.")
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "\n\n⚠️ %s", st.Error)
	}
	if st.Notice != "" {
		fmt.Fprintf(&b, "\n\nℹ️ %s", st.Notice)
	}
	return b.String()
}

func slotStatus(img *imaging.Image, working bool, workingText string) string {
	switch {
	case working:
		return "⏳ " + workingText
	case img == nil:
		return "missing"
	}
	return "✅ " + truncateLine(img.Name, 40)
}

func customised(list []style.NamedOption, key, customKey, custom string) string {
	if key == customKey {
		if custom = strings.TrimSpace(custom); custom != "" {
			return truncateLine(custom, 60)
		}
		return "custom (not set)"
	}
	return style.Label(list, key)
}

func panelKeyboard(ownerID int64, st session.State, ui UIState) tgbotapi.InlineKeyboardMarkup {
	if ui.Menu != menuMain {
		if m, ok := findMenu(ui.Menu); ok {
			return optionKeyboard(ownerID, m, st.Options)
		}
	}
	return mainKeyboard(ownerID, st)
}

func mainKeyboard(ownerID int64, st session.State) tgbotapi.InlineKeyboardMarkup {
	o := st.Options
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📷 Photo", cb(ownerID, actAwait, string(session.SlotUser))),
			tgbotapi.NewInlineKeyboardButtonData("👕 Clothing", cb(ownerID, actAwait, string(session.SlotClothing))),
			tgbotapi.NewInlineKeyboardButtonData("🖼 Style ref", cb(ownerID, actAwait, string(session.SlotStyle))),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Aspect", cb(ownerID, actMenu, style.FieldAspectRatio)),
			tgbotapi.NewInlineKeyboardButtonData("Lighting", cb(ownerID, actMenu, style.FieldLighting)),
			tgbotapi.NewInlineKeyboardButtonData("Camera", cb(ownerID, actMenu, style.FieldCameraAngle)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Art style", cb(ownerID, actMenu, style.FieldArtisticStyle)),
			tgbotapi.NewInlineKeyboardButtonData("Quality", cb(ownerID, actMenu, style.FieldQuality)),
			tgbotapi.NewInlineKeyboardButtonData("HDR: "+onOff(o.HDR), cb(ownerID, actHDR)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Location", cb(ownerID, actMenu, style.FieldLocation)),
			tgbotapi.NewInlineKeyboardButtonData("Pose", cb(ownerID, actMenu, style.FieldPose)),
			tgbotapi.NewInlineKeyboardButtonData("Keywords", cb(ownerID, actKeywords)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Remove background: "+onOff(st.RemoveBackground), cb(ownerID, actBG)),
		),
		tgbotapi.NewInlineKeyboardRow(
			historyButton(ownerID, "↩ Undo", actUndo, st.CanUndo),
			historyButton(ownerID, "↪ Redo", actRedo, st.CanRedo),
		),
	}

	action := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✨ Generate", cb(ownerID, actGenerate)),
		tgbotapi.NewInlineKeyboardButtonData("📄 Prompt", cb(ownerID, actPrompt)),
	}
	if st.Result != nil {
		action = append(action, tgbotapi.NewInlineKeyboardButtonData("💾 Export", cb(ownerID, actExport)))
	}
	rows = append(rows, action, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, actReset)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Disabled history buttons stay visible but do nothing.
func historyButton(ownerID int64, label, action string, enabled bool) tgbotapi.InlineKeyboardButton {
	if !enabled {
		return tgbotapi.NewInlineKeyboardButtonData("· "+strings.Fields(label)[1]+" ·", cb(ownerID, actNoop))
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, action))
}

func optionKeyboard(ownerID int64, m optionMenu, o style.Options) tgbotapi.InlineKeyboardMarkup {
	current := currentValue(o, m.Field)
	list := style.Catalog()[m.Field]

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list)/2+2)
	row := make([]tgbotapi.InlineKeyboardButton, 0, 2)
	for i, opt := range list {
		label := opt.Name
		if opt.Key == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, actSet, m.Field, strconv.Itoa(i))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 2)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, actMenu, menuMain)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cropKeyboard(ownerID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✂️ Crop center", cb(ownerID, actCrop, cropCenter)),
			tgbotapi.NewInlineKeyboardButtonData("Use original", cb(ownerID, actCrop, cropOriginal)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cb(ownerID, actCrop, cropCancel)),
		),
	)
}

func cropText(p session.PendingCrop) string {
	return fmt.Sprintf("✂️ Crop %s to %s or keep the original?", slotTitle(p.Slot), p.Ratio)
}

func currentValue(o style.Options, field string) string {
	switch field {
	case style.FieldAspectRatio:
		return o.AspectRatio
	case style.FieldLighting:
		return o.Lighting
	case style.FieldCameraAngle:
		return o.CameraAngle
	case style.FieldArtisticStyle:
		return o.ArtisticStyle
	case style.FieldQuality:
		return o.Quality
	case style.FieldLocation:
		return o.Location
	case style.FieldPose:
		return o.Pose
	}
	return ""
}

func slotTitle(slot session.Slot) string {
	switch slot {
	case session.SlotUser:
		return "your photo"
	case session.SlotClothing:
		return "the clothing photo"
	case session.SlotStyle:
		return "the style reference"
	}
	return string(slot)
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
