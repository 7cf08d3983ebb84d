package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "tradefeed"
	EnvFileName = ".env"
)

// Config holds runtime settings read from the environment.
type Config struct {
	DatabasePath        string
	WhatsAppSessionPath string
	QRPath              string

	ExtractAPIKey  string
	ExtractBaseURL string
	ExtractModel   string

	GeminiAPIKey string
	VisionModel  string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Bucket           string
	S3Endpoint         string
	S3PublicBaseURL    string
	S3KeyPrefix        string

	BotToken string
	AdminID  int64

	PurgeInterval   time.Duration
	LogLevel        string
	DefaultCurrency string
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from ./.env. Errors are ignored since the files may not
// exist, and variables already set in the environment take precedence.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load(EnvFileName)
}

// CheckRequired returns the names of required variables that are unset.
func CheckRequired() []string {
	var missing []string
	for _, key := range []string{"GROQ_API_KEY", "S3_BUCKET"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	if missing := CheckRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		DatabasePath:        getEnv("DATABASE_PATH", "tradefeed.db"),
		WhatsAppSessionPath: getEnv("WHATSAPP_SESSION_PATH", "whatsapp-session.db"),
		QRPath:              getEnv("QR_PATH", "qr.png"),
		ExtractAPIKey:       os.Getenv("GROQ_API_KEY"),
		ExtractBaseURL:      getEnv("EXTRACT_BASE_URL", "https://api.groq.com/openai/v1"),
		ExtractModel:        getEnv("EXTRACT_MODEL", "openai/gpt-oss-20b"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		VisionModel:         getEnv("VISION_MODEL", "gemini-2.5-flash-lite"),
		AWSRegion:           getEnv("AWS_REGION", "eu-west-2"),
		AWSAccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3KeyPrefix:         getEnv("S3_KEY_PREFIX", "FeedSourcing"),
		BotToken:            os.Getenv("BOT_TOKEN"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "GBP"),
	}

	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be a valid integer: %w", err)
		}
		cfg.AdminID = id
	}

	interval, err := time.ParseDuration(getEnv("PURGE_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("PURGE_INTERVAL must be a duration: %w", err)
	}
	cfg.PurgeInterval = interval

	return cfg, nil
}

// AlertsEnabled reports whether operator alerts can be delivered.
func (c *Config) AlertsEnabled() bool {
	return c.BotToken != "" && c.AdminID != 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
