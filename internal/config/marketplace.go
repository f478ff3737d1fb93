package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/engagemarket/backend/internal/fsm"
)

const (
	ExpiryAdvisory = "advisory"
	ExpiryEnforce  = "enforce"
)

type MarketplaceConfig struct {
	Windows      fsm.Windows
	ExpiryPolicy string

	CommissionRate decimal.Decimal
	VATRate        decimal.Decimal
	BracketsFile   string

	NotificationHistory int64
	NotificationTTL     time.Duration
	NotifyTimeout       time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	RenewalSchedule string
	ExpirySchedule  string

	MaxProofBytes int64
	ProofBackend  string
	ProofDir      string
	S3Bucket      string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string

	AddressAPIURL  string
	AddressTimeout time.Duration

	IssuerName    string
	IssuerAddress string
	IssuerVAT     string
	IssuerWebsite string
}

// BindEnv maps environment variables onto viper keys.
func BindEnv() {
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	viper.BindEnv("contracts.delivery_window", "CONTRACTS_DELIVERY_WINDOW")
	viper.BindEnv("contracts.validation_window", "CONTRACTS_VALIDATION_WINDOW")
	viper.BindEnv("contracts.expiry_policy", "CONTRACTS_EXPIRY_POLICY")
	viper.BindEnv("pricing.commission_rate", "PRICING_COMMISSION_RATE")
	viper.BindEnv("pricing.vat_rate", "PRICING_VAT_RATE")
	viper.BindEnv("pricing.brackets_file", "PRICING_BRACKETS_FILE")
	viper.BindEnv("notifications.history", "NOTIFICATIONS_HISTORY")
	viper.BindEnv("notifications.ttl", "NOTIFICATIONS_TTL")
	viper.BindEnv("ratelimit.rps", "RATELIMIT_RPS")
	viper.BindEnv("ratelimit.burst", "RATELIMIT_BURST")
	viper.BindEnv("jobs.renewal_schedule", "JOBS_RENEWAL_SCHEDULE")
	viper.BindEnv("jobs.expiry_schedule", "JOBS_EXPIRY_SCHEDULE")
	viper.BindEnv("proofs.backend", "PROOFS_BACKEND")
	viper.BindEnv("proofs.dir", "PROOFS_DIR")
	viper.BindEnv("proofs.max_bytes", "PROOFS_MAX_BYTES")
	viper.BindEnv("s3.bucket", "S3_BUCKET")
	viper.BindEnv("s3.region", "S3_REGION")
	viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	viper.BindEnv("s3.endpoint_url", "S3_ENDPOINT_URL")
	viper.BindEnv("address.api_url", "ADDRESS_API_URL")
	viper.BindEnv("issuer.name", "ISSUER_NAME")
	viper.BindEnv("issuer.address", "ISSUER_ADDRESS")
	viper.BindEnv("issuer.vat_number", "ISSUER_VAT_NUMBER")
	viper.BindEnv("issuer.website", "ISSUER_WEBSITE")
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	viper.SetDefault("contracts.delivery_window", fsm.DefaultDeliveryWindow)
	viper.SetDefault("contracts.validation_window", fsm.DefaultValidationWindow)
	viper.SetDefault("contracts.expiry_policy", ExpiryAdvisory)
	viper.SetDefault("pricing.commission_rate", "0.15")
	viper.SetDefault("pricing.vat_rate", "0.20")
	viper.SetDefault("pricing.brackets_file", "")
	viper.SetDefault("notifications.history", 100)
	viper.SetDefault("notifications.ttl", 30*24*time.Hour)
	viper.SetDefault("notifications.publish_timeout", 5*time.Second)
	viper.SetDefault("ratelimit.rps", 10)
	viper.SetDefault("ratelimit.burst", 20)
	viper.SetDefault("jobs.renewal_schedule", "@every 1h")
	viper.SetDefault("jobs.expiry_schedule", "@every 5m")
	viper.SetDefault("proofs.backend", "disk")
	viper.SetDefault("proofs.dir", "./data/proofs")
	viper.SetDefault("proofs.max_bytes", 10<<20)
	viper.SetDefault("s3.region", "eu-west-3")
	viper.SetDefault("address.api_url", "https://api-adresse.data.gouv.fr/search/")
	viper.SetDefault("address.timeout", 5*time.Second)
	viper.SetDefault("issuer.name", "EngageMarket SAS")
	viper.SetDefault("issuer.address", "")
}

// LoadMarketplaceConfig reads marketplace settings with defaults applied.
func LoadMarketplaceConfig() (*MarketplaceConfig, error) {
	setDefaults()

	commission, err := decimal.NewFromString(viper.GetString("pricing.commission_rate"))
	if err != nil {
		return nil, fmt.Errorf("pricing.commission_rate: %w", err)
	}
	vat, err := decimal.NewFromString(viper.GetString("pricing.vat_rate"))
	if err != nil {
		return nil, fmt.Errorf("pricing.vat_rate: %w", err)
	}
	if commission.IsNegative() || commission.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("pricing.commission_rate must be in [0, 1)")
	}
	if vat.IsNegative() {
		return nil, fmt.Errorf("pricing.vat_rate must not be negative")
	}

	cfg := &MarketplaceConfig{
		Windows: fsm.Windows{
			Delivery:   viper.GetDuration("contracts.delivery_window"),
			Validation: viper.GetDuration("contracts.validation_window"),
		},
		ExpiryPolicy:        viper.GetString("contracts.expiry_policy"),
		CommissionRate:      commission,
		VATRate:             vat,
		BracketsFile:        viper.GetString("pricing.brackets_file"),
		NotificationHistory: viper.GetInt64("notifications.history"),
		NotificationTTL:     viper.GetDuration("notifications.ttl"),
		NotifyTimeout:       viper.GetDuration("notifications.publish_timeout"),
		RateLimitRPS:        viper.GetFloat64("ratelimit.rps"),
		RateLimitBurst:      viper.GetInt("ratelimit.burst"),
		RenewalSchedule:     viper.GetString("jobs.renewal_schedule"),
		ExpirySchedule:      viper.GetString("jobs.expiry_schedule"),
		MaxProofBytes:       viper.GetInt64("proofs.max_bytes"),
		ProofBackend:        viper.GetString("proofs.backend"),
		ProofDir:            viper.GetString("proofs.dir"),
		S3Bucket:            viper.GetString("s3.bucket"),
		S3Region:            viper.GetString("s3.region"),
		S3AccessKey:         viper.GetString("s3.access_key_id"),
		S3SecretKey:         viper.GetString("s3.secret_access_key"),
		S3Endpoint:          viper.GetString("s3.endpoint_url"),
		AddressAPIURL:       viper.GetString("address.api_url"),
		AddressTimeout:      viper.GetDuration("address.timeout"),
		IssuerName:          viper.GetString("issuer.name"),
		IssuerAddress:       viper.GetString("issuer.address"),
		IssuerVAT:           viper.GetString("issuer.vat_number"),
		IssuerWebsite:       viper.GetString("issuer.website"),
	}

	if cfg.ExpiryPolicy != ExpiryAdvisory && cfg.ExpiryPolicy != ExpiryEnforce {
		return nil, fmt.Errorf("contracts.expiry_policy must be %q or %q, got %q", ExpiryAdvisory, ExpiryEnforce, cfg.ExpiryPolicy)
	}
	if cfg.Windows.Delivery <= 0 || cfg.Windows.Validation <= 0 {
		return nil, fmt.Errorf("contract windows must be positive")
	}
	if cfg.ProofBackend != "disk" && cfg.ProofBackend != "s3" {
		return nil, fmt.Errorf("proofs.backend must be disk or s3, got %q", cfg.ProofBackend)
	}
	return cfg, nil
}

// EnforceExpiry reports whether expired contracts are settled automatically.
func (c *MarketplaceConfig) EnforceExpiry() bool {
	return c.ExpiryPolicy == ExpiryEnforce
}
