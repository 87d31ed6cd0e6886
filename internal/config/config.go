package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Mongo struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"tryon"`
}

type Config struct {
	TelegramToken string `yaml:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	GeminiAPIKey  string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Debug    bool   `yaml:"debug" env:"DEBUG" env-default:"false"`

	PreferIPv4 bool `yaml:"prefer_ipv4" env:"PREFER_IPV4" env-default:"true"`

	HTTPAddr    string `yaml:"http_addr" env:"WEB_ADDR" env-default:":8080"`
	MaxUploadMB int    `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"20"`

	MediaGroupDebounceMS  int `yaml:"media_group_debounce_ms" env:"MEDIA_GROUP_DEBOUNCE_MS" env-default:"1200"`
	MaxConcurrent         int `yaml:"max_concurrent" env:"MAX_CONCURRENT" env-default:"4"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS" env-default:"180"`
	HTTPTimeoutSeconds    int `yaml:"http_timeout_seconds" env:"HTTP_TIMEOUT_SECONDS" env-default:"180"`
	EffectTimeoutSeconds  int `yaml:"effect_timeout_seconds" env:"EFFECT_TIMEOUT_SECONDS" env-default:"120"`
	SessionIdleMinutes    int `yaml:"session_idle_minutes" env:"SESSION_IDLE_MINUTES" env-default:"120"`
	MaxLooksPerSession    int `yaml:"max_looks_per_session" env:"MAX_LOOKS_PER_SESSION" env-default:"20"`

	GeminiBaseURL    string `yaml:"gemini_base_url" env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com"`
	GeminiAPIVersion string `yaml:"gemini_api_version" env:"GEMINI_API_VERSION" env-default:"v1beta"`
	GeminiTextModel  string `yaml:"gemini_text_model" env:"GEMINI_TEXT_MODEL" env-default:"gemini-2.5-flash"`
	GeminiImageModel string `yaml:"gemini_image_model" env:"GEMINI_IMAGE_MODEL" env-default:"gemini-2.5-flash-image-preview"`

	Mongo Mongo `yaml:"mongo"`
}

// Load reads CONFIG_FILE when it is set, then the environment. Environment
// values win over the file.
func Load() (Config, error) {
	var cfg Config

	var err error
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(&cfg, nil)
		return Config{}, fmt.Errorf("config: %w; %s", err, desc)
	}

	cfg.normalize()

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	return cfg, nil
}

// RequireTelegram is checked by the bot only; the web server runs without a
// token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func (c Config) MediaGroupDebounce() time.Duration {
	return time.Duration(c.MediaGroupDebounceMS) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) EffectTimeout() time.Duration {
	return time.Duration(c.EffectTimeoutSeconds) * time.Second
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) normalize() {
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.GeminiBaseURL = strings.TrimSpace(c.GeminiBaseURL)
	c.GeminiAPIVersion = strings.TrimSpace(c.GeminiAPIVersion)
	c.GeminiTextModel = strings.TrimSpace(c.GeminiTextModel)
	c.GeminiImageModel = strings.TrimSpace(c.GeminiImageModel)
	c.Mongo.URI = strings.TrimSpace(c.Mongo.URI)

	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.MediaGroupDebounceMS < 100 {
		c.MediaGroupDebounceMS = 100
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 180
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 180
	}
	if c.EffectTimeoutSeconds <= 0 {
		c.EffectTimeoutSeconds = 120
	}
	if c.MaxUploadMB < 1 {
		c.MaxUploadMB = 1
	}
	if c.MaxLooksPerSession < 1 {
		c.MaxLooksPerSession = 1
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
}
