package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration for the storefront service and the
// admin CLI. Optional integrations are disabled when their keys are empty.
type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	Stripe   StripeConfig
	Printful PrintfulConfig
	Email    EmailConfig
	Backup   BackupConfig
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	PremiumPriceID string
}

type PrintfulConfig struct {
	APIKey  string
	StoreID string
}

type EmailConfig struct {
	PostmarkToken string
	FromEmail     string
}

type BackupConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Interval  time.Duration

	// Passphrase enables snapshot encryption when set.
	Passphrase    string
	RetentionDays int
}

// Enabled reports whether enough S3 settings are present to upload snapshots.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Load reads an optional .env file from the working directory and then
// builds the configuration from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration using the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:      withDefault(getenv("THEMESHOP_PORT"), "8090"),
		DBPath:    withDefault(getenv("THEMESHOP_DB_PATH"), "themeshop.db"),
		LogLevel:  getenv("THEMESHOP_LOG_LEVEL"),
		LogFormat: getenv("THEMESHOP_LOG_FORMAT"),
		Stripe: StripeConfig{
			SecretKey:      getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:  getenv("STRIPE_WEBHOOK_SECRET"),
			PremiumPriceID: getenv("STRIPE_PREMIUM_PRICE_ID"),
		},
		Printful: PrintfulConfig{
			APIKey:  getenv("PRINTFUL_API_KEY"),
			StoreID: getenv("PRINTFUL_STORE_ID"),
		},
		Email: EmailConfig{
			PostmarkToken: getenv("POSTMARK_SERVER_TOKEN"),
			FromEmail:     withDefault(getenv("THEMESHOP_FROM_EMAIL"), "noreply@themeshop.app"),
		},
		Backup: BackupConfig{
			Endpoint:  getenv("BACKUP_S3_ENDPOINT"),
			Bucket:    getenv("BACKUP_S3_BUCKET"),
			Region:    withDefault(getenv("BACKUP_S3_REGION"), "auto"),
			AccessKey: getenv("BACKUP_S3_ACCESS_KEY"),
			SecretKey: getenv("BACKUP_S3_SECRET_KEY"),
			Interval:  24 * time.Hour,

			Passphrase:    getenv("BACKUP_PASSPHRASE"),
			RetentionDays: 30,
		},
	}
	cfg.BaseURL = withDefault(getenv("THEMESHOP_BASE_URL"), "http://localhost:"+cfg.Port)

	if v := getenv("BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse BACKUP_INTERVAL: %w", err)
		}
		if d < time.Minute {
			return nil, fmt.Errorf("BACKUP_INTERVAL must be at least 1m, got %s", d)
		}
		cfg.Backup.Interval = d
	}

	if v := getenv("BACKUP_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("BACKUP_RETENTION_DAYS must be a positive integer, got %q", v)
		}
		cfg.Backup.RetentionDays = n
	}

	if cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
