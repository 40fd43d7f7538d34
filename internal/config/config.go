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

type Config struct {
	DBPath          string
	ArtifactDir     string
	OutputDir       string
	VendorConfigDir string

	HTTPTimeoutMs int
	RateLimitRPS  int
	RetryAttempts int

	ERPRestletURL     string
	ERPConsumerKey    string
	ERPConsumerSecret string
	ERPTokenID        string
	ERPTokenSecret    string
	ERPRealm          string

	VendorOAuth2ClientID     string
	VendorOAuth2ClientSecret string
	VendorOAuth2TokenURL     string

	SchedulerIntervalSec int
	SchedulerAutoExport  bool
	SchedulerBatchMax    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:          getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		ArtifactDir:     getEnv("ARTIFACT_DIR", filepath.Join(cwd, "data", "artifacts")),
		OutputDir:       getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		VendorConfigDir: getEnv("VENDOR_CONFIG_DIR", filepath.Join(cwd, "configs", "vendors")),

		HTTPTimeoutMs: getEnvInt("HTTP_TIMEOUT_MS", 30000),
		RateLimitRPS:  getEnvInt("RATE_LIMIT_RPS", 5),
		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 5),

		ERPRestletURL:     getEnv("ERP_RESTLET_URL", ""),
		ERPConsumerKey:    getEnv("ERP_CONSUMER_KEY", ""),
		ERPConsumerSecret: getEnv("ERP_CONSUMER_SECRET", ""),
		ERPTokenID:        getEnv("ERP_TOKEN_ID", ""),
		ERPTokenSecret:    getEnv("ERP_TOKEN_SECRET", ""),
		ERPRealm:          getEnv("ERP_REALM", ""),

		VendorOAuth2ClientID:     getEnv("VENDOR_OAUTH2_CLIENT_ID", ""),
		VendorOAuth2ClientSecret: getEnv("VENDOR_OAUTH2_CLIENT_SECRET", ""),
		VendorOAuth2TokenURL:     getEnv("VENDOR_OAUTH2_TOKEN_URL", ""),

		SchedulerIntervalSec: getEnvInt("SCHEDULER_INTERVAL_SEC", 300),
		SchedulerAutoExport:  getEnvBool("SCHEDULER_AUTO_EXPORT", false),
		SchedulerBatchMax:    getEnvInt("SCHEDULER_BATCH_MAX", 50),
	}

	return cfg, nil
}

func (c Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
