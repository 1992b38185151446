package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the coin service.
type Config struct {
	ListenAddr     string
	MySQLDSN       string
	RedisAddr      string
	RedisPassword  string
	LogLevel       string
	RequestTimeout time.Duration

	AppBaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	SquareWebhookSignatureKey string
	SquareNotificationURL     string

	// Coin value used when a cashout tier does not pin its own USD value.
	CoinUSDRate float64

	ArchiveEndpoint      string
	ArchiveRegion        string
	ArchiveAccessKey     string
	ArchiveSecretKey     string
	ArchiveBucket        string
	ArchiveUsePathStyle  bool
	ArchivePrefix        string
	ArchiveEventPayloads bool
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:                getEnv("LISTEN_ADDR", ":8080"),
		RedisAddr:                 getEnv("REDIS_ADDR", ""),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		RequestTimeout:            time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 15)),
		AppBaseURL:                getEnv("APP_BASE_URL", "https://trollcity.app"),
		SquareNotificationURL:     getEnv("SQUARE_NOTIFICATION_URL", ""),
		CoinUSDRate:               getFloat("COIN_USD_RATE", 0.003),
		ArchiveEndpoint:           getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveRegion:             os.Getenv("ARCHIVE_S3_REGION"),
		ArchiveAccessKey:          os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		ArchiveSecretKey:          os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		ArchiveBucket:             os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchiveUsePathStyle:       getBool("ARCHIVE_S3_USE_PATH_STYLE", false),
		ArchivePrefix:             getEnv("ARCHIVE_S3_PREFIX", "payment-events"),
		ArchiveEventPayloads:      getBool("ARCHIVE_EVENT_PAYLOADS", false),
		SquareWebhookSignatureKey: os.Getenv("SQUARE_WEBHOOK_SIGNATURE_KEY"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if cfg.ArchiveEventPayloads {
		if cfg.ArchiveRegion == "" {
			missing = append(missing, "ARCHIVE_S3_REGION")
		}
		if cfg.ArchiveAccessKey == "" {
			missing = append(missing, "ARCHIVE_S3_ACCESS_KEY")
		}
		if cfg.ArchiveSecretKey == "" {
			missing = append(missing, "ARCHIVE_S3_SECRET_KEY")
		}
		if cfg.ArchiveBucket == "" {
			missing = append(missing, "ARCHIVE_S3_BUCKET")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely on ambient environment variables is fine.
	return nil
}
