package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tryon-studio/internal/style"
)

func TestBuildDefaults(t *testing.T) {
	got := Build(Input{Options: style.Default()})

	want := "**Primary Goal:** Create a new image of the person from the user's photo realistically wearing the clothing from the product photo.\n" +
		"\n" +
		"**Context:** This is a virtual try-on for a fashion e-commerce application. The output must be a high-quality photograph suitable for a general retail audience and must be safe for work.\n" +
		"\n" +
		"**Instructions:**\n" +
		"1.  **Main Subject:** Use the person from the user photo as the model. Preserve their likeness.\n" +
		"2.  **Clothing:** Use the clothing item from the clothing photo.\n" +
		"3.  **Combine:** Generate a new, single, seamless image showing the person wearing the clothing.\n" +
		"\n" +
		"**Scene Details:**\n" +
		"- **Setting:** A setting chosen by the AI that complements the clothing and style.\n" +
		"- **Pose:** The person should be in a standing pose.\n" +
		"- **Image Style:** a high-quality, realistic photo.\n" +
		"- **Lighting:** Use studio lighting.\n" +
		"- **Camera Angle:** Use a eye-level.\n" +
		"- **Quality:** Render in stunning High Definition (HD) quality.\n" +
		"- **Aspect Ratio:** The final image must have a strict 1:1 aspect ratio."

	assert.Equal(t, want, got)
}

func TestBuildAllClauses(t *testing.T) {
	opts := style.Default()
	opts.ArtisticStyle = "oil painting"
	opts.Location = style.LocationCustom
	opts.CustomLocation = "a rainy street in Paris"
	opts.Pose = style.PoseCustom
	opts.CustomPose = "leaning on a lamppost"
	opts.HDR = true
	opts.Quality = "4k"
	opts.AspectRatio = "9:16"

	got := Build(Input{
		Options:             opts,
		HasStyleImage:       true,
		RemoveBackground:    true,
		ClothingDescription: "a red trench coat",
		StyleDescription:    "moody blues, wet reflections",
		UserKeywords:        "autumn, film noir",
	})

	for _, want := range []string{
		"realistically wearing a red trench coat.\n",
		"4. **Style Reference:** The overall mood, color palette, and composition must be heavily inspired by the provided style reference image. Key elements from the reference are: moody blues, wet reflections.\n",
		"- **Background:** The person's original background has been removed. Place them in the following setting: a rainy street in Paris\n",
		"- **Pose:** The person should be in leaning on a lamppost.\n",
		"- **User Keywords:** Incorporate these themes: autumn, film noir.\n",
		"- **Image Style:** an image in the style of an oil painting.\n",
		"- **Quality:** Render in stunning Ultra HD (4K) quality.\n",
		"- **HDR:** Enable High Dynamic Range (HDR10+) for deep contrasts and vibrant colors.\n",
	} {
		assert.Contains(t, got, want)
	}
	assert.True(t, strings.HasSuffix(got, "strict 9:16 aspect ratio."))
	assert.NotContains(t, got, "- **Setting:**")
}

func TestBuildStyleReferenceWithoutDescription(t *testing.T) {
	got := Build(Input{Options: style.Default(), HasStyleImage: true})
	assert.Contains(t, got, "heavily inspired by the provided style reference image.\n\n**Scene Details:**")
	assert.NotContains(t, got, "Key elements")
}

func TestBuildLocationAndPoseFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		location string
		custom   string
		want     string
	}{
		{"outdoors", style.LocationOutdoors, "", "- **Setting:** A complementary outdoor environment.\n"},
		{"indoors", style.LocationIndoors, "ignored", "- **Setting:** A complementary indoor environment.\n"},
		{"custom empty", style.LocationCustom, "   ", "- **Setting:** A setting chosen by the AI that complements the clothing and style.\n"},
		{"random", style.LocationRandom, "", "- **Setting:** A setting chosen by the AI that complements the clothing and style.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := style.Default()
			opts.Location = tt.location
			opts.CustomLocation = tt.custom
			assert.Contains(t, Build(Input{Options: opts}), tt.want)
		})
	}

	opts := style.Default()
	opts.Pose = style.PoseCustom
	assert.Contains(t, Build(Input{Options: opts}), "- **Pose:** The person should be in a natural standing pose.\n")

	opts.Pose = "lying on your back"
	assert.Contains(t, Build(Input{Options: opts}), "- **Pose:** The person should be in a lying on your back pose.\n")
}

func TestBuildIsDeterministic(t *testing.T) {
	in := Input{Options: style.Default(), UserKeywords: "summer"}
	assert.Equal(t, Build(in), Build(in))
}
