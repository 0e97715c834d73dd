package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded once at startup.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthTokenTTL  time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Store     StoreConfig
	Email     EmailConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig

	Pricing PricingConfig
	Quota   QuotaConfig
}

// StoreConfig configures the object store backend.
type StoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// EmailConfig configures the SMTP notifier. Empty host means log-only delivery.
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// RedisConfig enables the request rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig shapes the per-user request bucket.
type RateLimitConfig struct {
	RequestRate  float64
	RequestBurst int
}

// BootstrapConfig seeds the first admin account. An empty password disables
// seeding entirely.
type BootstrapConfig struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// PricingConfig is the single global pricing schedule. It is constructed here
// and passed explicitly into the billing service so tests can inject arbitrary
// rate tables without touching process state.
type PricingConfig struct {
	StoragePerGBDay  decimal.Decimal
	APIPerCall       decimal.Decimal
	FreeStorageBytes int64
	FreeAPICalls     int64
}

// QuotaConfig bounds per-user storage and per-file uploads.
type QuotaConfig struct {
	StorageQuotaBytes int64
	MaxFileSizeBytes  int64
}

// Load loads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "billflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "dev-secret-change-in-production")),
		AuthTokenTTL:  getenvDuration("AUTH_TOKEN_TTL", 15*time.Minute),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "billflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		Store: StoreConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getenv("MINIO_SECRET_KEY", "minioadmin123"),
			UseSSL:    getenvBool("MINIO_SECURE", false),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USER", ""),
			SMTPPassword: getenv("SMTP_PASS", ""),
			SMTPFrom:     getenv("FROM_EMAIL", "billing@billflow.local"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			RequestRate:  getenvFloat("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
			RequestBurst: getenvInt("RATE_LIMIT_BURST", 20),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: getenv("ADMIN_USERNAME", "admin"),
			AdminEmail:    getenv("ADMIN_EMAIL", "admin@billflow.local"),
			AdminPassword: getenv("ADMIN_PASSWORD", ""),
		},

		Pricing: PricingConfig{
			StoragePerGBDay:  getenvDecimal("PRICE_STORAGE_PER_GB_DAY", "0.25"),
			APIPerCall:       getenvDecimal("PRICE_API_PER_CALL", "0.001"),
			FreeStorageBytes: getenvInt64("FREE_STORAGE_BYTES", 1<<30),
			FreeAPICalls:     getenvInt64("FREE_API_CALLS", 1000),
		},
		Quota: QuotaConfig{
			StorageQuotaBytes: getenvInt64("STORAGE_QUOTA_BYTES", 50*1024*1024),
			MaxFileSizeBytes:  getenvInt64("MAX_FILE_SIZE_BYTES", 10*1024*1024),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key, def string) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.RequireFromString(def)
	}
	return parsed
}
