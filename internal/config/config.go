// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type TelegramConfig struct {
	Token        string   `yaml:"token"`
	WatchChatID  int64    `yaml:"watch_chat_id"` // group whose messages are batched
	WatchSenders []string `yaml:"watch_senders"` // usernames or full names
	AdminChatID  int64    `yaml:"admin_chat_id"` // optional alert target
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"` // required outside dev; empty disables the guard on /api routes
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty keeps batch runs in memory
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables token cache and alert throttling
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TokenKey string `yaml:"token_key"` // encrypts the cached storage token when set
}

type AIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	BotID           string        `yaml:"bot_id"`
	UserID          string        `yaml:"user_id"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPolls        int           `yaml:"max_polls"`
	Timeout         time.Duration `yaml:"timeout"` // per HTTP call
	ConcurrentLimit int           `yaml:"concurrent_limit"`
}

type StorageConfig struct {
	BaseURL         string        `yaml:"base_url"`
	AppID           string        `yaml:"app_id"`
	AppSecret       string        `yaml:"app_secret"`
	SeedToken       string        `yaml:"seed_token"`
	BitableAppToken string        `yaml:"bitable_app_token"`
	TableID         string        `yaml:"table_id"`
	Timeout         time.Duration `yaml:"timeout"`
	RateRPS         float64       `yaml:"rate_rps"`
	RateBurst       int           `yaml:"rate_burst"`
	OnUploadFailure string        `yaml:"on_upload_failure"` // drop | keep_raw
}

type BatchConfig struct {
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	Workers        int           `yaml:"workers"`
	ImageDir       string        `yaml:"image_dir"`
	ImageRetention time.Duration `yaml:"image_retention"` // negative keeps images forever
}

type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Limit      int           `yaml:"limit"`  // alerts per window
	Window     time.Duration `yaml:"window"` // throttling window
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Storage  StorageConfig  `yaml:"storage"`
	Batch    BatchConfig    `yaml:"batch"`
	Alert    AlertConfig    `yaml:"alert"`

	Runtime RuntimeConfig `yaml:"-"`
}

const (
	UploadFailureDrop    = "drop"
	UploadFailureKeepRaw = "keep_raw"
)

// LoadConfig reads the YAML file at path, then lets environment variables
// (optionally from a .env file next to the process) override the secrets.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	return Parse(b, dev)
}

// Parse decodes raw YAML, applies env overrides and defaults, and validates.
func Parse(raw []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	setString(&cfg.AI.APIKey, "COZE_API_KEY")
	setString(&cfg.AI.BotID, "COZE_BOT_ID")
	setString(&cfg.Storage.AppID, "FEISHU_APP_ID")
	setString(&cfg.Storage.AppSecret, "FEISHU_APP_SECRET")
	setString(&cfg.Alert.WebhookURL, "FEISHU_ALERT_WEBHOOK")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.TokenKey, "TOKEN_CACHE_KEY")
	setString(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	if v, ok := os.LookupEnv("WATCH_CHAT_ID"); ok && v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.WatchChatID = id
		}
	}
	if v, ok := os.LookupEnv("WATCH_SENDERS"); ok && v != "" {
		cfg.Telegram.WatchSenders = splitCSV(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}

	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.coze.cn"
	}
	if cfg.AI.UserID == "" {
		cfg.AI.UserID = "order-bridge"
	}
	if cfg.AI.PollInterval <= 0 {
		cfg.AI.PollInterval = 8 * time.Second
	}
	if cfg.AI.MaxPolls <= 0 {
		cfg.AI.MaxPolls = 75
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 1
	}

	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "https://open.feishu.cn"
	}
	if cfg.Storage.Timeout <= 0 {
		cfg.Storage.Timeout = 120 * time.Second
	}
	if cfg.Storage.RateRPS <= 0 {
		cfg.Storage.RateRPS = 5
	}
	if cfg.Storage.RateBurst <= 0 {
		cfg.Storage.RateBurst = 5
	}
	cfg.Storage.OnUploadFailure = strings.ToLower(strings.TrimSpace(cfg.Storage.OnUploadFailure))
	if cfg.Storage.OnUploadFailure == "" {
		cfg.Storage.OnUploadFailure = UploadFailureDrop
	}

	if cfg.Batch.IdleTimeout <= 0 {
		cfg.Batch.IdleTimeout = time.Minute
	}
	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = 1
	}
	if cfg.Batch.ImageDir == "" {
		cfg.Batch.ImageDir = "images"
	}
	if cfg.Batch.ImageRetention == 0 {
		cfg.Batch.ImageRetention = 7 * 24 * time.Hour
	}

	if cfg.Alert.Limit <= 0 {
		cfg.Alert.Limit = 5
	}
	if cfg.Alert.Window <= 0 {
		cfg.Alert.Window = 10 * time.Minute
	}
}

func (cfg *Config) validate() error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Telegram.WatchChatID == 0 {
		return errors.New("telegram.watch_chat_id is required")
	}
	if len(cfg.Telegram.WatchSenders) == 0 {
		return errors.New("telegram.watch_senders must list at least one sender")
	}
	// Dev mode runs against a canned extractor with an open admin API.
	if !cfg.Runtime.Dev {
		if cfg.AI.APIKey == "" {
			return errors.New("ai.api_key is required")
		}
		if cfg.AI.BotID == "" {
			return errors.New("ai.bot_id is required")
		}
		if cfg.Admin.JWTSecret == "" {
			return errors.New("admin.jwt_secret is required outside dev mode")
		}
	}
	if cfg.Storage.AppID == "" || cfg.Storage.AppSecret == "" {
		return errors.New("storage.app_id and storage.app_secret are required")
	}
	if cfg.Storage.BitableAppToken == "" || cfg.Storage.TableID == "" {
		return errors.New("storage.bitable_app_token and storage.table_id are required")
	}
	switch cfg.Storage.OnUploadFailure {
	case UploadFailureDrop, UploadFailureKeepRaw:
	default:
		return fmt.Errorf("storage.on_upload_failure must be %q or %q", UploadFailureDrop, UploadFailureKeepRaw)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
