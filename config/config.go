package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL" validate:"required"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	AdminToken     string `mapstructure:"ADMIN_TOKEN" validate:"required"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	Firebase  FirebaseConfig  `mapstructure:",squash"`
	Paystack  PaystackConfig  `mapstructure:",squash"`
	R2        R2Config        `mapstructure:",squash"`
	Sweep     SweepConfig     `mapstructure:",squash"`
	RateLimit RateLimitConfig `mapstructure:",squash"`
}

// FirebaseConfig holds identity provider settings
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"FIREBASE_PROJECT_ID" validate:"required"`
	// CredentialsFile is a service account JSON; empty falls back to
	// application default credentials.
	CredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
}

// PaystackConfig holds payment gateway settings
type PaystackConfig struct {
	SecretKey   string        `mapstructure:"PAYSTACK_SECRET_KEY" validate:"required"`
	BaseURL     string        `mapstructure:"PAYSTACK_BASE_URL" validate:"required,url"`
	CallbackURL string        `mapstructure:"PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `mapstructure:"PAYSTACK_TIMEOUT" validate:"gt=0"`
	MaxRetries  int           `mapstructure:"PAYSTACK_MAX_RETRIES" validate:"gte=0,lte=10"`
	// AckUnknownReference answers webhooks for references we never issued
	// with 200 instead of 404.
	AckUnknownReference bool `mapstructure:"PAYSTACK_ACK_UNKNOWN_REFERENCE"`

	ActivationAmount int    `mapstructure:"ACTIVATION_AMOUNT" validate:"gt=0"`
	Currency         string `mapstructure:"CURRENCY" validate:"len=3"`
	ReferralBonus    string `mapstructure:"REFERRAL_BONUS" validate:"required,numeric"`
}

// R2Config holds object storage settings for profile pictures.
// Uploads are disabled when AccountID is empty.
type R2Config struct {
	AccountID       string `mapstructure:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `mapstructure:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `mapstructure:"R2_BUCKET_NAME"`
	CDNBaseURL      string `mapstructure:"CDN_BASE_URL"`
}

// SweepConfig drives the pending payment reconciliation worker
type SweepConfig struct {
	Interval   time.Duration `mapstructure:"SWEEP_INTERVAL" validate:"gt=0"`
	MinAge     time.Duration `mapstructure:"SWEEP_MIN_AGE"`
	PaymentTTL time.Duration `mapstructure:"PAYMENT_TTL" validate:"gt=0"`
}

// RateLimitConfig limits money-moving requests per identity
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	Burst             int `mapstructure:"RATE_LIMIT_BURST" validate:"gt=0"`
}

var validate = validator.New()

// Load reads .env (if present), an optional config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, environment wins anyway
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv picks it up on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "5200")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("REDIS_URL", "")

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	v.SetDefault("PAYSTACK_SECRET_KEY", "")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("PAYSTACK_CALLBACK_URL", "")
	v.SetDefault("PAYSTACK_TIMEOUT", "15s")
	v.SetDefault("PAYSTACK_MAX_RETRIES", 2)
	v.SetDefault("PAYSTACK_ACK_UNKNOWN_REFERENCE", true)
	v.SetDefault("ACTIVATION_AMOUNT", 300)
	v.SetDefault("CURRENCY", "KES")
	v.SetDefault("REFERRAL_BONUS", "50.00")

	v.SetDefault("CLOUDFLARE_ACCOUNT_ID", "")
	v.SetDefault("R2_ACCESS_KEY_ID", "")
	v.SetDefault("R2_ACCESS_KEY_SECRET", "")
	v.SetDefault("R2_BUCKET_NAME", "")
	v.SetDefault("CDN_BASE_URL", "")

	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("SWEEP_MIN_AGE", "2m")
	v.SetDefault("PAYMENT_TTL", "24h")

	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

// Validate checks everything the HTTP server needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Production reports whether APP_ENV selects production logging.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Origins returns ALLOWED_ORIGINS trimmed and re-joined for the CORS middleware.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}
