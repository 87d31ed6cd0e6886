package prompt

import (
	"fmt"
	"strings"

	"tryon-studio/internal/style"
)

// Provider instructions for the three analysis/editing calls.
const (
	ClothingInstruction = "Briefly describe the clothing item in this image (e.g., 'a casual blue t-shirt', 'a formal red evening gown')."
	StyleInstruction    = "Describe the dominant colors, textures, and overall mood of this image in a few keywords (e.g., 'warm tones, rustic texture, cozy mood')."
	BackgroundRemoval   = "Isolate the main subject in the foreground of the image and make the background completely transparent. The output must be a PNG image with a transparent alpha channel."
)

const (
	defaultSetting = "A setting chosen by the AI that complements the clothing and style."
	defaultPose    = "a natural standing pose"
)

type Input struct {
	Options             style.Options
	HasStyleImage       bool
	RemoveBackground    bool
	ClothingDescription string
	StyleDescription    string
	UserKeywords        string
}

// Build renders the generation prompt. It is a pure function of in.
func Build(in Input) string {
	opts := in.Options

	clothingText := "wearing the clothing from the product photo"
	if desc := strings.TrimSpace(in.ClothingDescription); desc != "" {
		clothingText = "wearing " + desc
	}

	styleText := "a high-quality, realistic photo"
	if opts.ArtisticStyle != "realistic" {
		styleText = "an image in the style of an " + opts.ArtisticStyle
	}

	var b strings.Builder
	b.Grow(2048)

	b.WriteString(fmt.Sprintf("**Primary Goal:** Create a new image of the person from the user's photo realistically %s.\n\n", clothingText))
	b.WriteString("**Context:** This is a virtual try-on for a fashion e-commerce application. The output must be a high-quality photograph suitable for a general retail audience and must be safe for work.\n\n")
	b.WriteString("**Instructions:**\n")
	b.WriteString("1.  **Main Subject:** Use the person from the user photo as the model. Preserve their likeness.\n")
	b.WriteString("2.  **Clothing:** Use the clothing item from the clothing photo.\n")
	b.WriteString("3.  **Combine:** Generate a new, single, seamless image showing the person wearing the clothing.\n")

	if in.HasStyleImage {
		b.WriteString("4. **Style Reference:** The overall mood, color palette, and composition must be heavily inspired by the provided style reference image.")
		if desc := strings.TrimSpace(in.StyleDescription); desc != "" {
			b.WriteString(fmt.Sprintf(" Key elements from the reference are: %s.", desc))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n**Scene Details:**\n")

	setting := settingDescription(opts)
	if in.RemoveBackground {
		b.WriteString("- **Background:** The person's original background has been removed. Place them in the following setting: " + setting + "\n")
	} else {
		b.WriteString("- **Setting:** " + setting + "\n")
	}

	b.WriteString(fmt.Sprintf("- **Pose:** The person should be in %s.\n", poseDescription(opts)))

	if kw := strings.TrimSpace(in.UserKeywords); kw != "" {
		b.WriteString(fmt.Sprintf("- **User Keywords:** Incorporate these themes: %s.\n", kw))
	}

	b.WriteString(fmt.Sprintf("- **Image Style:** %s.\n", styleText))
	b.WriteString(fmt.Sprintf("- **Lighting:** Use %s lighting.\n", opts.Lighting))
	b.WriteString(fmt.Sprintf("- **Camera Angle:** Use a %s.\n", opts.CameraAngle))
	b.WriteString(fmt.Sprintf("- **Quality:** Render in stunning %s quality.\n", style.QualityLabel(opts.Quality)))

	if opts.HDR {
		b.WriteString("- **HDR:** Enable High Dynamic Range (HDR10+) for deep contrasts and vibrant colors.\n")
	}

	b.WriteString(fmt.Sprintf("- **Aspect Ratio:** The final image must have a strict %s aspect ratio.", opts.AspectRatio))

	return b.String()
}

func settingDescription(opts style.Options) string {
	switch opts.Location {
	case style.LocationOutdoors:
		return "A complementary outdoor environment."
	case style.LocationIndoors:
		return "A complementary indoor environment."
	case style.LocationCustom:
		if custom := strings.TrimSpace(opts.CustomLocation); custom != "" {
			return custom
		}
		return defaultSetting
	default:
		return defaultSetting
	}
}

func poseDescription(opts style.Options) string {
	if opts.Pose == style.PoseCustom {
		if custom := strings.TrimSpace(opts.CustomPose); custom != "" {
			return custom
		}
		return defaultPose
	}
	return "a " + opts.Pose + " pose"
}
