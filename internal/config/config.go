// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Config holds all application configuration.
type Config struct {
	Telegram        TelegramConfig
	Remote          RemoteConfig
	Database        DatabaseConfig
	Frame           FrameConfig
	RateLimit       RateLimitConfig
	ConversationTTL time.Duration

	HTTPAddr       string
	OpsToken       string
	GRPCHealthAddr string
	// ConsoleEnabled mounts the operator console. It also needs OpsToken.
	ConsoleEnabled bool
	AllowedOrigins []string

	LogLevel string
	LogFile  string
}

// TelegramConfig controls the chat transport.
type TelegramConfig struct {
	Token string
	// WebhookURL switches from long polling to webhook delivery when set.
	WebhookURL string
	// WebhookSecret is required with WebhookURL. Telegram echoes it on every
	// pushed update.
	WebhookSecret  string
	AllowedUserIDs []int64
}

// RemoteConfig addresses the monitored host.
type RemoteConfig struct {
	Backend     string // "ssh" or "docker"
	Host        string
	Port        int
	User        string
	Password    string
	KeyFile     string
	KnownHosts  string
	Container   string
	OutputLimit int
	ReplLogPath string
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver   string // "sqlite" or "pgx"
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// FrameConfig bounds outgoing messages.
type FrameConfig struct {
	MaxLen int
	Delay  time.Duration
}

// RateLimitConfig throttles remote commands per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	allowed, err := parseIDs(getEnv("ALLOWED_USER_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: ALLOWED_USER_IDS: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:          getEnv("TOKEN", ""),
			WebhookURL:     getEnv("TELEGRAM_WEBHOOK_URL", ""),
			WebhookSecret:  getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
			AllowedUserIDs: allowed,
		},
		Remote: RemoteConfig{
			Backend:     strings.ToLower(getEnv("REMOTE_BACKEND", "ssh")),
			Host:        getEnv("RM_HOST", ""),
			Port:        getEnvInt("RM_PORT", 22),
			User:        getEnv("RM_USER", ""),
			Password:    getEnv("RM_PASSWORD", ""),
			KeyFile:     getEnv("RM_KEY_FILE", ""),
			KnownHosts:  getEnv("RM_KNOWN_HOSTS", ""),
			Container:   getEnv("RM_CONTAINER", ""),
			OutputLimit: getEnvInt("REMOTE_OUTPUT_LIMIT", 1<<20),
			ReplLogPath: getEnv("REPL_LOG_PATH", "/var/log/postgresql/postgresql-15-main.log"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:     getEnv("DB_PATH", "./data/opsbot.db"),
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", ""),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_DATABASE", ""),
		},
		Frame: FrameConfig{
			MaxLen: getEnvInt("FRAME_MAX_LEN", 4096),
			Delay:  getEnvDuration("FRAME_DELAY", time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationTTL: getEnvDuration("CONVERSATION_TTL", 30*time.Minute),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		OpsToken:        getEnv("OPS_TOKEN", ""),
		GRPCHealthAddr:  getEnv("GRPC_HEALTH_ADDR", ""),
		ConsoleEnabled:  getEnvBool("CONSOLE_ENABLED", true),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:         getEnv("LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "pgx":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or pgx, got %q", c.Database.Driver)
	}
	if c.Frame.MaxLen < 32 || c.Frame.MaxLen > 4096 {
		return fmt.Errorf("FRAME_MAX_LEN must be between 32 and 4096")
	}
	if c.Frame.Delay < 0 {
		return fmt.Errorf("FRAME_DELAY cannot be negative")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationTTL <= 0 {
		return fmt.Errorf("CONVERSATION_TTL must be > 0")
	}
	if c.Remote.OutputLimit <= 0 {
		return fmt.Errorf("REMOTE_OUTPUT_LIMIT must be > 0")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ValidateRemote checks the settings needed to open the remote session.
func (c *Config) ValidateRemote() error {
	switch c.Remote.Backend {
	case "ssh":
		if c.Remote.Host == "" || c.Remote.User == "" {
			return fmt.Errorf("RM_HOST and RM_USER are required for the ssh backend")
		}
		if c.Remote.Password == "" && c.Remote.KeyFile == "" {
			return fmt.Errorf("RM_PASSWORD or RM_KEY_FILE is required for the ssh backend")
		}
	case "docker":
		if c.Remote.Container == "" {
			return fmt.Errorf("RM_CONTAINER is required for the docker backend")
		}
	default:
		return fmt.Errorf("REMOTE_BACKEND must be ssh or docker, got %q", c.Remote.Backend)
	}
	return nil
}

// ValidateBot checks the settings needed to serve chat traffic.
func (c *Config) ValidateBot() error {
	if c.Telegram.Token == "" {
		return errors.New("TOKEN cannot be empty")
	}
	if c.Telegram.WebhookURL != "" && !webhookSecretPattern.MatchString(c.Telegram.WebhookSecret) {
		return errors.New("TELEGRAM_WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and - when TELEGRAM_WEBHOOK_URL is set")
	}
	return c.ValidateRemote()
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
