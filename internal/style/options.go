package style

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidOption = errors.New("invalid style option")

// Options is one version of the style configuration. It holds scalars only so
// two values compare equal exactly when every field matches.
type Options struct {
	AspectRatio    string `json:"aspect_ratio" bson:"aspect_ratio"`
	Lighting       string `json:"lighting" bson:"lighting"`
	CameraAngle    string `json:"camera_angle" bson:"camera_angle"`
	ArtisticStyle  string `json:"artistic_style" bson:"artistic_style"`
	Quality        string `json:"quality" bson:"quality"`
	HDR            bool   `json:"hdr" bson:"hdr"`
	Location       string `json:"location" bson:"location"`
	CustomLocation string `json:"custom_location" bson:"custom_location"`
	Pose           string `json:"pose" bson:"pose"`
	CustomPose     string `json:"custom_pose" bson:"custom_pose"`
}

// Patch carries a partial update; nil fields keep their current value.
type Patch struct {
	AspectRatio    *string `json:"aspect_ratio,omitempty"`
	Lighting       *string `json:"lighting,omitempty"`
	CameraAngle    *string `json:"camera_angle,omitempty"`
	ArtisticStyle  *string `json:"artistic_style,omitempty"`
	Quality        *string `json:"quality,omitempty"`
	HDR            *bool   `json:"hdr,omitempty"`
	Location       *string `json:"location,omitempty"`
	CustomLocation *string `json:"custom_location,omitempty"`
	Pose           *string `json:"pose,omitempty"`
	CustomPose     *string `json:"custom_pose,omitempty"`
}

// Field names accepted by Set.
const (
	FieldAspectRatio    = "aspect_ratio"
	FieldLighting       = "lighting"
	FieldCameraAngle    = "camera_angle"
	FieldArtisticStyle  = "artistic_style"
	FieldQuality        = "quality"
	FieldHDR            = "hdr"
	FieldLocation       = "location"
	FieldCustomLocation = "custom_location"
	FieldPose           = "pose"
	FieldCustomPose     = "custom_pose"
)

func Default() Options {
	return Options{
		AspectRatio:   aspectRatios[0].Key,
		Lighting:      lightingStyles[0].Key,
		CameraAngle:   cameraAngles[0].Key,
		ArtisticStyle: artisticStyles[0].Key,
		Quality:       "hd",
		HDR:           false,
		Location:      LocationRandom,
		Pose:          "standing",
	}
}

// Merge returns o with every non-nil field of p applied.
func (o Options) Merge(p Patch) Options {
	if p.AspectRatio != nil {
		o.AspectRatio = *p.AspectRatio
	}
	if p.Lighting != nil {
		o.Lighting = *p.Lighting
	}
	if p.CameraAngle != nil {
		o.CameraAngle = *p.CameraAngle
	}
	if p.ArtisticStyle != nil {
		o.ArtisticStyle = *p.ArtisticStyle
	}
	if p.Quality != nil {
		o.Quality = *p.Quality
	}
	if p.HDR != nil {
		o.HDR = *p.HDR
	}
	if p.Location != nil {
		o.Location = *p.Location
	}
	if p.CustomLocation != nil {
		o.CustomLocation = strings.TrimSpace(*p.CustomLocation)
	}
	if p.Pose != nil {
		o.Pose = *p.Pose
	}
	if p.CustomPose != nil {
		o.CustomPose = strings.TrimSpace(*p.CustomPose)
	}
	return o
}

// Set applies a single keyed change, as sent by the bot keyboards.
func (o Options) Set(field, value string) (Options, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldAspectRatio:
		o.AspectRatio = value
	case FieldLighting:
		o.Lighting = value
	case FieldCameraAngle:
		o.CameraAngle = value
	case FieldArtisticStyle:
		o.ArtisticStyle = value
	case FieldQuality:
		o.Quality = value
	case FieldHDR:
		on, err := strconv.ParseBool(value)
		if err != nil {
			return o, fmt.Errorf("%w: hdr=%q", ErrInvalidOption, value)
		}
		o.HDR = on
	case FieldLocation:
		o.Location = value
	case FieldCustomLocation:
		o.CustomLocation = value
	case FieldPose:
		o.Pose = value
	case FieldCustomPose:
		o.CustomPose = value
	default:
		return o, fmt.Errorf("%w: unknown field %q", ErrInvalidOption, field)
	}
	return o, nil
}

// Validate checks every enumerated field against its catalog.
func (o Options) Validate() error {
	checks := []struct {
		field string
		value string
		list  []NamedOption
	}{
		{FieldAspectRatio, o.AspectRatio, aspectRatios},
		{FieldLighting, o.Lighting, lightingStyles},
		{FieldCameraAngle, o.CameraAngle, cameraAngles},
		{FieldArtisticStyle, o.ArtisticStyle, artisticStyles},
		{FieldQuality, o.Quality, outputQualities},
		{FieldLocation, o.Location, locationPreferences},
		{FieldPose, o.Pose, posePreferences},
	}
	for _, c := range checks {
		if !contains(c.list, c.value) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidOption, c.field, c.value)
		}
	}
	return nil
}

// CaptionLines lists the four primary choices shown under an export.
func (o Options) CaptionLines() []string {
	return []string{
		"Artistic Style: " + Label(artisticStyles, o.ArtisticStyle),
		"Aspect Ratio: " + Label(aspectRatios, o.AspectRatio),
		"Lighting: " + Label(lightingStyles, o.Lighting),
		"Camera Angle: " + Label(cameraAngles, o.CameraAngle),
	}
}
