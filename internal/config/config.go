package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	APIURL      string
	APIKey      string // "id:secret", optional
	HTTPTimeout time.Duration

	PollInterval time.Duration
	UndoWindow   time.Duration

	DataDir      string
	DatabasePath string
	StoragePath  string

	LogLevel       string
	LogFormat      string
	LogDevelopment bool

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
	Port                   string
}

// NewFromEnv creates a new Config object from PIATTO_* environment variables
// and, if present, a piatto.yaml in the data directory.
func NewFromEnv() (*Config, error) {
	return Load("")
}

// Load is NewFromEnv with an explicit config file path.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIATTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".piatto"))
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("undo_window", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("port", "8080")

	for _, key := range []string{
		"api_url", "api_key", "database_path", "storage_path", "log_development",
		"telegram_bot_token", "telegram_webhook_url", "telegram_allowed_user_ids", "admin_telegram_id",
	} {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("piatto")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	apiURL := strings.TrimRight(v.GetString("api_url"), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("PIATTO_API_URL environment variable not set")
	}

	dataDir := v.GetString("data_dir")
	dbPath := v.GetString("database_path")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "piatto.db")
	}
	storagePath := v.GetString("storage_path")
	if storagePath == "" {
		storagePath = filepath.Join(dataDir, "local_storage.json")
	}

	allowed, err := parseIDList(v.GetString("telegram_allowed_user_ids"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIATTO_TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	return &Config{
		APIURL:                 apiURL,
		APIKey:                 v.GetString("api_key"),
		HTTPTimeout:            v.GetDuration("http_timeout"),
		PollInterval:           v.GetDuration("poll_interval"),
		UndoWindow:             v.GetDuration("undo_window"),
		DataDir:                dataDir,
		DatabasePath:           dbPath,
		StoragePath:            storagePath,
		LogLevel:               v.GetString("log_level"),
		LogFormat:              v.GetString("log_format"),
		LogDevelopment:         v.GetBool("log_development"),
		TelegramBotToken:       v.GetString("telegram_bot_token"),
		TelegramWebhookURL:     v.GetString("telegram_webhook_url"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        v.GetInt64("admin_telegram_id"),
		Port:                   v.GetString("port"),
	}, nil
}

// ValidateBot checks the settings that only the Telegram bot needs.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("PIATTO_TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("PIATTO_TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
