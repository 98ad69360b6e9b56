package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	AuthMode        string        `mapstructure:"AUTH_MODE"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL     string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthUserInfoURL string        `mapstructure:"AUTH_USERINFO_URL"`
	AuthAPIKey      string        `mapstructure:"AUTH_API_KEY"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string        `mapstructure:"KAFKA_TOPIC"`
	UploadMaxBytes  int64         `mapstructure:"UPLOAD_MAX_BYTES"`
	BlobDir         string        `mapstructure:"BLOB_DIR"`
}

const (
	AuthModeJWT      = "jwt"
	AuthModeUserInfo = "userinfo"
)

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "AUTH_USERINFO_URL", "AUTH_API_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "KAFKA_BROKERS",
	"KAFKA_TOPIC", "UPLOAD_MAX_BYTES", "BLOB_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTH_MODE", AuthModeJWT)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_TOPIC", "retina.events")
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return nil, fmt.Errorf("DATABASE_URL is required outside development")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesMemoryStore reports whether the server should run on in-memory
// repositories. Only development without a database does.
func (c *Config) UsesMemoryStore() bool {
	return c.IsDev() && c.DatabaseURL == ""
}

// Validate checks that the authentication settings are coherent with the
// chosen AUTH_MODE.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeJWT:
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_MODE=jwt needs AUTH_SIGNING_KEY, AUTH_JWKS_URL or AUTH_ISSUER")
		}
		if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 && !c.IsDev() {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development")
		}
	case AuthModeUserInfo:
		if c.AuthUserInfoURL == "" {
			return fmt.Errorf("AUTH_USERINFO_URL is required when AUTH_MODE is %q", AuthModeUserInfo)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeJWT, AuthModeUserInfo, c.AuthMode)
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
