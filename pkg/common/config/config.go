package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Upstream back-office
	BaseURL  string
	Login    string
	Password string

	// Browser session
	Headless            bool
	Debug               bool
	DownloadFolder      string
	ScreenshotFolder    string
	NavigationTimeout   time.Duration
	SelectorTimeout     time.Duration
	ExportMarkerTimeout time.Duration
	DownloadTimeout     time.Duration
	SettleDelay         time.Duration

	// Transform
	SchemaFile string
	Timezone   string

	// Retry
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// Sink
	SinkKind string // postgres | sheets

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Google Sheets
	SheetsSpreadsheetID   string
	SheetsCredentialsFile string
	SheetsRange           string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	JobLockTTL    time.Duration

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
}

func Load() *Config {
	// A missing .env file is fine; env vars win either way.
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Minute),

		BaseURL:  getEnv("BASE_URL", ""),
		Login:    getBase64Env("LOGIN"),
		Password: getBase64Env("PASSWORD"),

		Headless:            getBoolEnv("HEADLESS", true),
		Debug:               getBoolEnv("DEBUG", false),
		DownloadFolder:      getEnv("DOWNLOAD_FOLDER", "tmp/browserdownload"),
		ScreenshotFolder:    getEnv("SCREENSHOT_FOLDER", "tmp/browserscreenshots"),
		NavigationTimeout:   getDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		SelectorTimeout:     getDuration("SELECTOR_TIMEOUT", 10*time.Second),
		ExportMarkerTimeout: getDuration("EXPORT_MARKER_TIMEOUT", 15*time.Second),
		DownloadTimeout:     getDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		SettleDelay:         getDuration("SETTLE_DELAY", 10*time.Second),

		SchemaFile: getEnv("SCHEMA_FILE", ""),
		Timezone:   getEnv("TIMEZONE", "Asia/Bangkok"),

		RetryAttempts:  getIntEnv("RETRY_ATTEMPTS", 3),
		RetryBaseDelay: getDuration("RETRY_BASE_DELAY", time.Second),

		SinkKind: getEnv("SINK_KIND", "postgres"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "crmsync"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "crmsync"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
		SheetsRange:           getEnv("SHEETS_RANGE", "Customers"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		JobLockTTL:    getDuration("JOB_LOCK_TTL", 15*time.Minute),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "crm-sync-events"),
	}
}

// Validate reports every missing required variable at once so a bad deploy
// fails with one actionable message.
func (c *Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.Login == "" {
		missing = append(missing, "LOGIN")
	}
	if c.Password == "" {
		missing = append(missing, "PASSWORD")
	}
	if c.SinkKind == "sheets" {
		if c.SheetsSpreadsheetID == "" {
			missing = append(missing, "SHEETS_SPREADSHEET_ID")
		}
		if c.SheetsCredentialsFile == "" {
			missing = append(missing, "SHEETS_CREDENTIALS_FILE")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	if c.SinkKind != "postgres" && c.SinkKind != "sheets" {
		return fmt.Errorf("unsupported SINK_KIND %q", c.SinkKind)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBase64Env decodes credentials stored base64-encoded in the environment.
// A value that does not decode is treated as missing rather than used raw.
func getBase64Env(key string) string {
	value := os.Getenv(key)
	if value == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "t", "yes":
			return true
		case "false", "0", "f", "no":
			return false
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
