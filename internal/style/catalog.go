package style

type NamedOption struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

const (
	LocationOutdoors = "outdoors"
	LocationIndoors  = "indoors"
	LocationRandom   = "random"
	LocationCustom   = "custom"

	PoseCustom = "custom"
)

var aspectRatios = []NamedOption{
	{Key: "1:1", Name: "Square (1:1)"},
	{Key: "16:9", Name: "Widescreen (16:9)"},
	{Key: "9:16", Name: "Portrait (9:16)"},
	{Key: "4:3", Name: "Landscape (4:3)"},
	{Key: "3:4", Name: "Classic Portrait (3:4)"},
}

var lightingStyles = []NamedOption{
	{Key: "studio", Name: "Studio"},
	{Key: "natural light", Name: "Natural Light"},
	{Key: "golden hour", Name: "Golden Hour"},
	{Key: "dramatic", Name: "Dramatic"},
	{Key: "cinematic", Name: "Cinematic"},
	{Key: "soft focus", Name: "Soft Focus"},
	{Key: "backlit", Name: "Backlit"},
	{Key: "neon", Name: "Neon"},
	{Key: "high key", Name: "High Key"},
	{Key: "low key", Name: "Low Key"},
}

var cameraAngles = []NamedOption{
	{Key: "eye-level", Name: "Eye-Level"},
	{Key: "full body shot", Name: "Full Body Shot"},
	{Key: "close-up", Name: "Close-Up"},
	{Key: "high-angle", Name: "High-Angle"},
	{Key: "low-angle", Name: "Low-Angle"},
	{Key: "dutch angle", Name: "Dutch Angle"},
	{Key: "birds-eye-view", Name: "Bird's-Eye View"},
	{Key: "worms-eye-view", Name: "Worm's-Eye View"},
	{Key: "over-the-shoulder", Name: "Over-the-Shoulder"},
}

var artisticStyles = []NamedOption{
	{Key: "realistic", Name: "Realistic"},
	{Key: "cartoon", Name: "Cartoon"},
	{Key: "oil painting", Name: "Oil Painting"},
	{Key: "watercolor", Name: "Watercolor"},
	{Key: "anime", Name: "Anime / Manga"},
	{Key: "pixel art", Name: "Pixel Art"},
	{Key: "line art", Name: "Line Art"},
}

var outputQualities = []NamedOption{
	{Key: "sd", Name: "Standard (SD)"},
	{Key: "hd", Name: "High Definition (HD)"},
	{Key: "fhd", Name: "Full HD (FHD)"},
	{Key: "4k", Name: "Ultra HD (4K)"},
}

var locationPreferences = []NamedOption{
	{Key: LocationRandom, Name: "Random / AI Choice"},
	{Key: LocationOutdoors, Name: "Outdoors"},
	{Key: LocationIndoors, Name: "Indoors"},
	{Key: LocationCustom, Name: "Custom..."},
}

var posePreferences = []NamedOption{
	{Key: "standing", Name: "Standing"},
	{Key: "sitting", Name: "Sitting"},
	{Key: "running", Name: "Running"},
	{Key: "squatting", Name: "Squatting"},
	{Key: "lying down", Name: "Lying Down"},
	{Key: "lying on your back", Name: "Lying on Back"},
	{Key: PoseCustom, Name: "Custom..."},
}

func AspectRatios() []NamedOption        { return clone(aspectRatios) }
func LightingStyles() []NamedOption      { return clone(lightingStyles) }
func CameraAngles() []NamedOption        { return clone(cameraAngles) }
func ArtisticStyles() []NamedOption      { return clone(artisticStyles) }
func OutputQualities() []NamedOption     { return clone(outputQualities) }
func LocationPreferences() []NamedOption { return clone(locationPreferences) }
func PosePreferences() []NamedOption     { return clone(posePreferences) }

// Catalog returns every enumerated field keyed by its Set field name.
func Catalog() map[string][]NamedOption {
	return map[string][]NamedOption{
		FieldAspectRatio:   AspectRatios(),
		FieldLighting:      LightingStyles(),
		FieldCameraAngle:   CameraAngles(),
		FieldArtisticStyle: ArtisticStyles(),
		FieldQuality:       OutputQualities(),
		FieldLocation:      LocationPreferences(),
		FieldPose:          PosePreferences(),
	}
}

// Label returns the display name for key, or key itself when unknown.
func Label(list []NamedOption, key string) string {
	for _, o := range list {
		if o.Key == key {
			return o.Name
		}
	}
	return key
}

// QualityLabel is used by the prompt; unknown values read as "high".
func QualityLabel(key string) string {
	for _, o := range outputQualities {
		if o.Key == key {
			return o.Name
		}
	}
	return "high"
}

func contains(list []NamedOption, key string) bool {
	for _, o := range list {
		if o.Key == key {
			return true
		}
	}
	return false
}

func clone(list []NamedOption) []NamedOption {
	return append([]NamedOption(nil), list...)
}
