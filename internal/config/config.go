// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrMissingRequired is returned when a required setting has no value.
var ErrMissingRequired = errors.New("missing required configuration")

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Rate      RateLimitConfig
	License   LicenseConfig
	Billing   BillingConfig
	CORS      CORSConfig
	Analytics AnalyticsConfig
	Tools     ToolsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env      string
	LogLevel string
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Address returns the Redis address in host:port format.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig holds rate limiting configuration.
// Tier quotas and the window are fixed in the models package.
type RateLimitConfig struct {
	Store          string // "memory" or "redis"
	SweepInterval  time.Duration
	TrustProxy     bool
	TrustedProxies []string
}

// LicenseConfig holds licensing service configuration.
type LicenseConfig struct {
	BaseURL            string
	AccessToken        string
	ProductID          string
	Timeout            time.Duration
	CacheTTL           time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// BillingConfig holds Stripe configuration.
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SiteURL       string
	Timeout       time.Duration
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	DefaultOrigin  string
	AllowedOrigins []string // empty echoes any origin
}

// AnalyticsConfig holds tool usage counter configuration.
type AnalyticsConfig struct {
	Enabled       bool
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// ToolsConfig holds formatter limits.
type ToolsConfig struct {
	MaxInputBytes int
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from an optional file overlaid by environment
// variables and validates it.
func LoadFile(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads configuration without checking required secrets.
// Keys in the file use the environment variable names.
func Read(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	r := &reader{v: v}
	cfg := &Config{}

	// App config
	cfg.App.Env = r.str("APP_ENV")
	cfg.App.LogLevel = r.str("LOG_LEVEL")

	// Server config
	cfg.Server.Host = r.str("SERVER_HOST")
	cfg.Server.Port = r.int("SERVER_PORT")
	cfg.Server.ReadTimeout = r.duration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = r.duration("SERVER_WRITE_TIMEOUT")
	cfg.Server.ShutdownTimeout = r.duration("SERVER_SHUTDOWN_TIMEOUT")

	// Database config
	cfg.Database.Host = r.str("DB_HOST")
	cfg.Database.Port = r.int("DB_PORT")
	cfg.Database.User = r.str("DB_USER")
	cfg.Database.Password = r.str("DB_PASSWORD")
	cfg.Database.DBName = r.str("DB_NAME")
	cfg.Database.SSLMode = r.str("DB_SSLMODE")
	cfg.Database.MaxOpenConns = r.int("DB_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = r.int("DB_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = r.duration("DB_CONN_MAX_LIFETIME")

	// Redis config
	cfg.Redis.Host = r.str("REDIS_HOST")
	cfg.Redis.Port = r.int("REDIS_PORT")
	cfg.Redis.Password = r.str("REDIS_PASSWORD")
	cfg.Redis.DB = r.int("REDIS_DB")
	cfg.Redis.PoolSize = r.int("REDIS_POOL_SIZE")

	// Rate limit config
	cfg.Rate.Store = strings.ToLower(r.str("RATE_LIMIT_STORE"))
	cfg.Rate.SweepInterval = r.duration("RATE_LIMIT_SWEEP_INTERVAL")
	cfg.Rate.TrustProxy = r.bool("RATE_LIMIT_TRUST_PROXY")
	cfg.Rate.TrustedProxies = r.list("RATE_LIMIT_TRUSTED_PROXIES")

	// License config
	cfg.License.BaseURL = strings.TrimRight(r.str("GUMROAD_BASE_URL"), "/")
	cfg.License.AccessToken = r.str("GUMROAD_ACCESS_TOKEN")
	cfg.License.ProductID = r.str("GUMROAD_PRODUCT_ID")
	cfg.License.Timeout = r.duration("LICENSE_TIMEOUT")
	cfg.License.CacheTTL = r.duration("LICENSE_CACHE_TTL")
	cfg.License.BreakerMaxFailures = r.int("LICENSE_BREAKER_MAX_FAILURES")
	cfg.License.BreakerOpenTimeout = r.duration("LICENSE_BREAKER_OPEN_TIMEOUT")

	// Billing config
	cfg.Billing.SecretKey = r.str("STRIPE_SECRET_KEY")
	cfg.Billing.WebhookSecret = r.str("STRIPE_WEBHOOK_SECRET")
	cfg.Billing.PriceID = r.str("STRIPE_PRICE_ID")
	cfg.Billing.SiteURL = strings.TrimRight(r.str("SITE_URL"), "/")
	cfg.Billing.Timeout = r.duration("STRIPE_TIMEOUT")

	// CORS config
	cfg.CORS.DefaultOrigin = r.str("CORS_DEFAULT_ORIGIN")
	cfg.CORS.AllowedOrigins = r.list("CORS_ALLOWED_ORIGINS")

	// Analytics config
	cfg.Analytics.Enabled = r.bool("ANALYTICS_ENABLED")
	cfg.Analytics.BufferSize = r.int("ANALYTICS_BUFFER_SIZE")
	cfg.Analytics.BatchSize = r.int("ANALYTICS_BATCH_SIZE")
	cfg.Analytics.FlushInterval = r.duration("ANALYTICS_FLUSH_INTERVAL")

	cfg.Tools.MaxInputBytes = r.int("TOOLS_MAX_INPUT_BYTES")

	if r.err != nil {
		return nil, r.err
	}

	switch cfg.Rate.Store {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("invalid RATE_LIMIT_STORE: %q", cfg.Rate.Store)
	}

	return cfg, nil
}

// Validate checks that every required secret is present.
func (c *Config) Validate() error {
	missing := c.License.missing()
	missing = append(missing, c.Billing.missing()...)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the licensing service credentials.
func (l LicenseConfig) Validate() error {
	if missing := l.missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

func (l LicenseConfig) missing() []string {
	var out []string
	if l.AccessToken == "" {
		out = append(out, "GUMROAD_ACCESS_TOKEN")
	}
	if l.ProductID == "" {
		out = append(out, "GUMROAD_PRODUCT_ID")
	}
	return out
}

func (b BillingConfig) missing() []string {
	var out []string
	if b.SecretKey == "" {
		out = append(out, "STRIPE_SECRET_KEY")
	}
	if b.WebhookSecret == "" {
		out = append(out, "STRIPE_WEBHOOK_SECRET")
	}
	if b.PriceID == "" {
		out = append(out, "STRIPE_PRICE_ID")
	}
	if b.SiteURL == "" {
		out = append(out, "SITE_URL")
	}
	return out
}

// DatabaseEnabled returns true if database configuration is provided.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != "" && c.Database.Password != ""
}

// RedisEnabled returns true if Redis configuration is provided.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "devtools")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "devtools")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)

	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("RATE_LIMIT_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("RATE_LIMIT_TRUST_PROXY", false)
	v.SetDefault("RATE_LIMIT_TRUSTED_PROXIES", "")

	v.SetDefault("GUMROAD_BASE_URL", "https://api.gumroad.com")
	v.SetDefault("GUMROAD_ACCESS_TOKEN", "")
	v.SetDefault("GUMROAD_PRODUCT_ID", "")
	v.SetDefault("LICENSE_TIMEOUT", 5*time.Second)
	v.SetDefault("LICENSE_CACHE_TTL", 5*time.Minute)
	v.SetDefault("LICENSE_BREAKER_MAX_FAILURES", 5)
	v.SetDefault("LICENSE_BREAKER_OPEN_TIMEOUT", 30*time.Second)

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("STRIPE_PRICE_ID", "")
	v.SetDefault("SITE_URL", "")
	v.SetDefault("STRIPE_TIMEOUT", 5*time.Second)

	v.SetDefault("CORS_DEFAULT_ORIGIN", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("ANALYTICS_ENABLED", true)
	v.SetDefault("ANALYTICS_BUFFER_SIZE", 10000)
	v.SetDefault("ANALYTICS_BATCH_SIZE", 100)
	v.SetDefault("ANALYTICS_FLUSH_INTERVAL", 5*time.Second)

	v.SetDefault("TOOLS_MAX_INPUT_BYTES", 1<<20)
}

// reader converts viper values, keeping the first conversion error.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(r.v.GetString(key))
}

func (r *reader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	r.fail(key, err)
	return n
}

func (r *reader) duration(key string) time.Duration {
	d, err := cast.ToDurationE(r.v.Get(key))
	r.fail(key, err)
	return d
}

func (r *reader) bool(key string) bool {
	b, err := cast.ToBoolE(r.v.Get(key))
	r.fail(key, err)
	return b
}

// list splits a comma separated value, or reads a list from a config file.
func (r *reader) list(key string) []string {
	raw := r.v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	items, err := cast.ToStringSliceE(raw)
	r.fail(key, err)

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) fail(key string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
