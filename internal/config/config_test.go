package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":4000" {
		t.Errorf("HTTPAddr = %q, want :4000", cfg.HTTPAddr)
	}
	if cfg.DataFile != "./data/db.json" {
		t.Errorf("DataFile = %q", cfg.DataFile)
	}
	if cfg.JWTIssuer != "layoutaria-auth" || cfg.JWTAudience != "layoutaria-api" {
		t.Errorf("issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.AccessTTL() != time.Hour {
		t.Errorf("AccessTTL = %v, want 1h", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 14d", cfg.RefreshTTL())
	}
	if cfg.SessionRetention() != 30*24*time.Hour {
		t.Errorf("SessionRetention = %v", cfg.SessionRetention())
	}
	if cfg.AuthMaxActiveSessions != 5 {
		t.Errorf("AuthMaxActiveSessions = %d, want 5", cfg.AuthMaxActiveSessions)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.CacheTTL() != 15*time.Second {
		t.Errorf("CacheTTL = %v, want 15s", cfg.CacheTTL())
	}
	if cfg.RateLimitRPS != 2 || cfg.RateLimitBurst != 120 {
		t.Errorf("rate limit = %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.SeedAdminEmail != "admin@layoutaria.dev" || cfg.SeedAdminPassword != DefaultSeedAdminPassword {
		t.Errorf("seed admin = %q/%q", cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	}
	if cfg.AuditKafkaTopic != "layoutaria-audit" {
		t.Errorf("AuditKafkaTopic = %q", cfg.AuditKafkaTopic)
	}
	if cfg.KafkaBrokersList() != nil {
		t.Errorf("KafkaBrokersList = %v, want nil", cfg.KafkaBrokersList())
	}
	if cfg.IsProduction() {
		t.Error("default env should not be production")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8081")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("AUTH_MAX_ACTIVE_SESSIONS", "3")
	t.Setenv("RATE_LIMIT_AUTH_RPS", "0.5")
	t.Setenv("PUBLIC_CACHE_TTL", "0")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("JWT_PRIVATE_KEY", "/keys/private.pem")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
	if cfg.AuthMaxActiveSessions != 3 {
		t.Errorf("AuthMaxActiveSessions = %d", cfg.AuthMaxActiveSessions)
	}
	if cfg.RateLimitAuthRPS != 0.5 {
		t.Errorf("RateLimitAuthRPS = %v", cfg.RateLimitAuthRPS)
	}
	if cfg.CacheTTL() != 0 {
		t.Errorf("CacheTTL = %v, want 0", cfg.CacheTTL())
	}
	if got := cfg.KafkaBrokersList(); len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	if cfg.JWTPrivateKey != "/keys/private.pem" {
		t.Errorf("JWTPrivateKey = %q", cfg.JWTPrivateKey)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bcrypt too low", map[string]string{"BCRYPT_COST": "3"}},
		{"bcrypt too high", map[string]string{"BCRYPT_COST": "32"}},
		{"refresh ttl", map[string]string{"REFRESH_TOKEN_TTL_DAYS": "0"}},
		{"session cap", map[string]string{"AUTH_MAX_ACTIVE_SESSIONS": "0"}},
		{"retention", map[string]string{"SESSION_RETENTION_DAYS": "0"}},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"cache ttl", map[string]string{"PUBLIC_CACHE_TTL": "soon"}},
		{"production without keys", map[string]string{"APP_ENV": "production", "SEED_ADMIN_PASSWORD": "S3cure!pass"}},
		{"production default seed password", map[string]string{
			"APP_ENV": "production", "JWT_PRIVATE_KEY": "priv.pem", "JWT_PUBLIC_KEY": "pub.pem",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load should fail")
			}
		})
	}
}

func TestLoad_ProductionConfigured(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_PRIVATE_KEY", "priv.pem")
	t.Setenv("JWT_PUBLIC_KEY", "pub.pem")
	t.Setenv("SEED_ADMIN_PASSWORD", "Another#Pass1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction should be true")
	}

	t.Setenv("SEED_ADMIN_PASSWORD", DefaultSeedAdminPassword)
	t.Setenv("SEED_ON_START", "false")
	if _, err := Load(); err != nil {
		t.Errorf("default seed password is fine when seeding is off: %v", err)
	}
}

func TestAccessTTL_Fallback(t *testing.T) {
	for _, raw := range []string{"", "soon", "0s", "-5m"} {
		c := &Config{JWTAccessTTL: raw}
		if got := c.AccessTTL(); got != time.Hour {
			t.Errorf("AccessTTL(%q) = %v, want 1h", raw, got)
		}
	}
	c := &Config{JWTAccessTTL: "20m"}
	if got := c.AccessTTL(); got != 20*time.Minute {
		t.Errorf("AccessTTL = %v, want 20m", got)
	}
}

func TestCacheTTL(t *testing.T) {
	tests := map[string]time.Duration{
		"0":    0,
		"0s":   0,
		"30s":  30 * time.Second,
		"nope": 15 * time.Second,
	}
	for raw, want := range tests {
		c := &Config{PublicCacheTTL: raw}
		if got := c.CacheTTL(); got != want {
			t.Errorf("CacheTTL(%q) = %v, want %v", raw, got, want)
		}
	}
}
