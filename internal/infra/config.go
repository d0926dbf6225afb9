package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	BarcodeAPIBaseURL string
	BarcodeAPIKey     string
	BarcodeAPITimeout time.Duration
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	BulkMaxRows       int
	BulkWorkers       int
	CORSOrigins       []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		BarcodeAPIBaseURL: getEnv("BARCODE_API_BASE_URL", "https://barcodeapi.org"),
		BarcodeAPIKey:     os.Getenv("BARCODE_API_KEY"),
		BarcodeAPITimeout: time.Second * time.Duration(getEnvInt("BARCODE_API_TIMEOUT_SECONDS", 30)),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		BulkMaxRows:       getEnvInt("BULK_MAX_ROWS", 500),
		BulkWorkers:       getEnvInt("BULK_WORKERS", 4),
		CORSOrigins:       splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.BarcodeAPIBaseURL == "" {
		return nil, fmt.Errorf("BARCODE_API_BASE_URL is required")
	}
	if cfg.BulkWorkers <= 0 {
		return nil, fmt.Errorf("BULK_WORKERS must be positive")
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
