package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds bot credentials and update delivery mode.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig describes where Telegram should deliver updates.
// URL wins over Domain; Domain is the bare public host a PaaS exposes.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Domain      string `yaml:"domain" envconfig:"RAILWAY_PUBLIC_DOMAIN"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
	DropPending bool   `yaml:"drop_pending" envconfig:"WEBHOOK_DROP_PENDING"`
}

// PublicURL is the address registered with Telegram via setWebhook.
func (w WebhookConfig) PublicURL() string {
	base := strings.TrimRight(w.URL, "/")
	if w.Path == "" || w.Path == "/" {
		return base
	}
	return base + w.Path
}

// HTTPConfig configures the server that receives webhooks and postbacks.
type HTTPConfig struct {
	Listen                 string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port                   int    `yaml:"port" envconfig:"PORT"`
	PostbackPath           string `yaml:"postback_path" envconfig:"POSTBACK_PATH"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" envconfig:"HTTP_SHUTDOWN_TIMEOUT_SECONDS"`
}

// Addr returns host:port for net/http.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Listen, h.Port)
}

// StorageConfig selects the user record backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// Path is the JSON document for "file" and the database file for "sqlite".
	Path                  string `yaml:"path" envconfig:"STORAGE_PATH"`
	RejectDuplicateClaims bool   `yaml:"reject_duplicate_claims" envconfig:"STORAGE_REJECT_DUPLICATE_CLAIMS"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// SenderConfig tunes the asynchronous reply dispatcher.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size"`
	Workers        int `yaml:"workers"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
}

// RateLimitConfig holds settings for per-user rate limiting of chat updates.
// ExcludeUpdates accepts "message" or "callback".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

const (
	defaultHTTPPort     = 8080
	defaultPostbackPath = "/pocket/reg"
	defaultFilePath     = "db.json"
	defaultSQLitePath   = "pocketreg.db"
)

// Config aggregates every setting of the service.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sender    SenderConfig    `yaml:"sender"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads .env (if present), the optional YAML file at path and then
// environment variables, which take precedence.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}

	if strings.TrimSpace(cfg.Webhook.URL) == "" && strings.TrimSpace(cfg.Webhook.Domain) != "" {
		cfg.Webhook.URL = strings.TrimSpace(cfg.Webhook.Domain)
	}
	if u := strings.TrimSpace(cfg.Webhook.URL); u != "" && !strings.Contains(u, "://") {
		cfg.Webhook.URL = "https://" + u
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/"
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		cfg.Webhook.Path = "/" + cfg.Webhook.Path
	}

	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url (or RAILWAY_PUBLIC_DOMAIN) is required when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultHTTPPort
	}
	if cfg.HTTP.Port < 0 {
		return fmt.Errorf("http.port must be > 0")
	}
	if cfg.HTTP.PostbackPath == "" {
		cfg.HTTP.PostbackPath = defaultPostbackPath
	}
	if cfg.HTTP.PostbackPath == cfg.Webhook.Path {
		return fmt.Errorf("http.postback_path and webhook.path must differ")
	}
	if cfg.HTTP.ShutdownTimeoutSeconds <= 0 {
		cfg.HTTP.ShutdownTimeoutSeconds = 10
	}

	drv := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch drv {
	case "", StorageFile, "json":
		drv = StorageFile
		if cfg.Storage.Path == "" {
			cfg.Storage.Path = defaultFilePath
		}
	case StorageSQLite, "sqlite3":
		drv = StorageSQLite
		if cfg.Storage.Path == "" {
			cfg.Storage.Path = defaultSQLitePath
		}
	case StoragePostgres, "postgresql":
		drv = StoragePostgres
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for storage.driver 'postgres'")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, sqlite, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = drv

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
