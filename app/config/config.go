package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

type Config struct {
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	OpenAI    OpenAI    `yaml:"openai"`
	Yandex    Yandex    `yaml:"yandex"`
	FFmpeg    FFmpeg    `yaml:"ffmpeg"`
	Store     Store     `yaml:"store"`
	Session   Session   `yaml:"session"`
	Assistant Assistant `yaml:"assistant"`
	Actions   Actions   `yaml:"actions"`
}

type HTTP struct {
	// Listen address
	Addr string `yaml:"addr" example:":8080" validate:"required"`
	// Max request body size in bytes
	BodyLimit int `yaml:"body_limit" example:"10485760" validate:"gte=0"`
	// Comma separated list of allowed CORS origins
	CorsOrigins string `yaml:"cors_origins" example:"http://localhost:3000"`
}

type OpenAI struct {
	Reply      ModelConfig `yaml:"reply" validate:"required"`
	Extraction ModelConfig `yaml:"extraction" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
	// Sampling temperature
	Temperature *float32 `yaml:"temperature" example:"0.7"`
	// Timeout of a single completion call
	Timeout time.Duration `yaml:"timeout" example:"30s"`
	// Extra attempts after the first failed call
	Retries *int `yaml:"retries" example:"1" validate:"omitempty,gte=0,lte=5"`
}

type Yandex struct {
	SpeechKit SpeechKit `yaml:"speech_kit"`
}

type SpeechKit struct {
	// Path to the service account key json
	ServiceAccountKey string `yaml:"service_account_key" example:"service-account-key.json"`
	// Recognition language
	Language string `yaml:"language" example:"en-US"`
	// Recognition model
	Model string `yaml:"model" example:"general"`
	// Timeout of a single recognition call
	Timeout time.Duration `yaml:"timeout" example:"20s"`
}

type FFmpeg struct {
	// Path to ffmpeg binary
	Path string `yaml:"path" example:"ffmpeg"`
}

type Store struct {
	// Document store driver
	Driver string `yaml:"driver" example:"file" validate:"required,oneof=file redis"`
	// JSON lines file used by the file driver
	Path string `yaml:"path" example:"data/users.jsonl"`
	// Redis connection url used by the redis driver
	RedisURL string `yaml:"redis_url" example:"redis://localhost:6379/0" validate:"required_if=Driver redis"`
	// Key prefix used by the redis driver
	KeyPrefix string `yaml:"key_prefix" example:"voicedesk:"`
}

type Session struct {
	// How long an idle call session is kept in memory
	TTL time.Duration `yaml:"ttl" example:"1h"`
	// How often expired sessions are purged
	CleanupInterval time.Duration `yaml:"cleanup_interval" example:"10m"`
}

type Assistant struct {
	// Topic taxonomy, empty disables validation
	Topics []string `yaml:"topics" example:"[\"Password Reset\", \"Order Status Inquiry\"]"`
	// Attempts per task before it is marked failed
	TaskAttempts int `yaml:"task_attempts" example:"2" validate:"gte=0,lte=10"`
	// How long to wait for an utterance to finish playing
	AnnounceTimeout time.Duration `yaml:"announce_timeout" example:"30s"`
}

type Actions struct {
	MCP MCP `yaml:"mcp"`
}

type MCP struct {
	// Command that starts an MCP server exposing task actions, empty disables it
	Command string `yaml:"command" example:"docker"`
	// Command arguments
	Args []string `yaml:"args" example:"[\"run\", \"--rm\", \"-i\", \"billing-mcp\"]"`
}

type Log struct {
	// Minimal level of console logs
	Level string `yaml:"level" example:"info" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

var defaultTopics = []string{
	"Password Reset",
	"Order Status Inquiry",
	"Invoice Request",
	"Billing Question",
	"Account Update",
	"Technical Support",
	"Refund Request",
	"Shipping Issue",
}

func Load() (*Config, error) {
	path := os.Getenv("VOICEDESK_CONFIG")
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.BodyLimit == 0 {
		cfg.HTTP.BodyLimit = 10 * 1024 * 1024
	}

	applyModelDefaults(&cfg.OpenAI.Reply, 0.7)
	applyModelDefaults(&cfg.OpenAI.Extraction, 0)

	if cfg.Yandex.SpeechKit.ServiceAccountKey == "" {
		cfg.Yandex.SpeechKit.ServiceAccountKey = "service-account-key.json"
	}
	if cfg.Yandex.SpeechKit.Language == "" {
		cfg.Yandex.SpeechKit.Language = "en-US"
	}
	if cfg.Yandex.SpeechKit.Model == "" {
		cfg.Yandex.SpeechKit.Model = "general"
	}
	if cfg.Yandex.SpeechKit.Timeout == 0 {
		cfg.Yandex.SpeechKit.Timeout = 20 * time.Second
	}

	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = "ffmpeg"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "file"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/users.jsonl"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "voicedesk:"
	}

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = time.Hour
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 10 * time.Minute
	}

	if cfg.Assistant.Topics == nil {
		cfg.Assistant.Topics = defaultTopics
	}
	if cfg.Assistant.TaskAttempts == 0 {
		cfg.Assistant.TaskAttempts = 2
	}
	if cfg.Assistant.AnnounceTimeout == 0 {
		cfg.Assistant.AnnounceTimeout = 30 * time.Second
	}
}

func applyModelDefaults(m *ModelConfig, temperature float32) {
	if m.BaseURL == "" {
		m.BaseURL = "https://api.openai.com/v1"
	}
	if m.Model == "" {
		m.Model = "gpt-4o-mini"
	}
	if m.Temperature == nil {
		m.Temperature = &temperature
	}
	if m.Timeout == 0 {
		m.Timeout = 30 * time.Second
	}
	if m.Retries == nil {
		retries := 1
		m.Retries = &retries
	}
}
