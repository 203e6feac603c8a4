// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSeedAdminPassword is the development admin password; production refuses it.
const DefaultSeedAdminPassword = "Admin@123456"

const (
	defaultAccessTTL = time.Hour
	defaultCacheTTL  = 15 * time.Second
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the HTTP API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DataFile is the path of the JSON document file.
	DataFile string `mapstructure:"DATA_FILE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to one.
	// Empty outside production means an ephemeral key pair is generated at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	RefreshTokenTTLDays   int `mapstructure:"REFRESH_TOKEN_TTL_DAYS"`
	AuthMaxActiveSessions int `mapstructure:"AUTH_MAX_ACTIVE_SESSIONS"`
	SessionRetentionDays  int `mapstructure:"SESSION_RETENTION_DAYS"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// PublicCacheTTL is how long public listings are cached (e.g. "15s"); "0" disables.
	PublicCacheTTL string `mapstructure:"PUBLIC_CACHE_TTL"`
	// LayoutPolicyFile optionally replaces the built-in Rego layout policy.
	LayoutPolicyFile string `mapstructure:"LAYOUT_POLICY_FILE"`

	// Rate limits are per client IP. A non-positive rate disables the limiter.
	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitAuthRPS   float64 `mapstructure:"RATE_LIMIT_AUTH_RPS"`
	RateLimitAuthBurst int     `mapstructure:"RATE_LIMIT_AUTH_BURST"`

	// SeedOnStart seeds the admin user and demo layout when the server starts.
	SeedOnStart       bool   `mapstructure:"SEED_ON_START"`
	SeedAdminEmail    string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`

	// OTelEndpoint is the OTLP gRPC collector; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list. When set, committed audit
	// entries are published to AuditKafkaTopic.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// Worker-only.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key; AutomaticEnv only reaches keys viper knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":4000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATA_FILE", "./data/db.json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "layoutaria-auth")
	v.SetDefault("JWT_AUDIENCE", "layoutaria-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 14)
	v.SetDefault("AUTH_MAX_ACTIVE_SESSIONS", 5)
	v.SetDefault("SESSION_RETENTION_DAYS", 30)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PUBLIC_CACHE_TTL", "15s")
	v.SetDefault("LAYOUT_POLICY_FILE", "")
	v.SetDefault("RATE_LIMIT_RPS", 2.0)
	v.SetDefault("RATE_LIMIT_BURST", 120)
	v.SetDefault("RATE_LIMIT_AUTH_RPS", 0.33)
	v.SetDefault("RATE_LIMIT_AUTH_BURST", 20)
	v.SetDefault("SEED_ON_START", true)
	v.SetDefault("SEED_ADMIN_EMAIL", "admin@layoutaria.dev")
	v.SetDefault("SEED_ADMIN_PASSWORD", DefaultSeedAdminPassword)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "layoutaria-audit")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "layoutaria-audit-worker")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DataFile == "" {
		return errors.New("config: DATA_FILE must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.RefreshTokenTTLDays < 1 {
		return errors.New("config: REFRESH_TOKEN_TTL_DAYS must be at least 1")
	}
	if c.AuthMaxActiveSessions < 1 {
		return errors.New("config: AUTH_MAX_ACTIVE_SESSIONS must be at least 1")
	}
	if c.SessionRetentionDays < 1 {
		return errors.New("config: SESSION_RETENTION_DAYS must be at least 1")
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if d, err := time.ParseDuration(c.PublicCacheTTL); c.PublicCacheTTL != "0" && (err != nil || d < 0) {
		return fmt.Errorf("config: PUBLIC_CACHE_TTL %q is not a valid duration", c.PublicCacheTTL)
	}
	if c.IsProduction() {
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
		if c.SeedOnStart && c.SeedAdminPassword == DefaultSeedAdminPassword {
			return errors.New("config: SEED_ADMIN_PASSWORD must be changed when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return defaultAccessTTL
	}
	return d
}

// RefreshTTL is the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// SessionRetention is how long revoked or expired sessions are kept.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionDays) * 24 * time.Hour
}

// CacheTTL parses PublicCacheTTL. Zero disables the cache; invalid values give the default.
func (c *Config) CacheTTL() time.Duration {
	if c.PublicCacheTTL == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.PublicCacheTTL)
	if err != nil || d < 0 {
		return defaultCacheTTL
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// An empty list means audit publishing to Kafka is off.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
