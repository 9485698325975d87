package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	AuthMode    string `mapstructure:"AUTH_MODE"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`

	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitRoutes string        `mapstructure:"RATE_LIMIT_ROUTES"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	S3Endpoint        string        `mapstructure:"S3_ENDPOINT"`
	S3Region          string        `mapstructure:"S3_REGION"`
	S3Bucket          string        `mapstructure:"S3_BUCKET"`
	S3UsePathStyle    bool          `mapstructure:"S3_USE_PATH_STYLE"`
	S3AccessKeyID     string        `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `mapstructure:"S3_SECRET_ACCESS_KEY"`
	PresignTTL        time.Duration `mapstructure:"PRESIGN_TTL"`

	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	OTelEnabled     bool    `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint    string  `mapstructure:"OTEL_ENDPOINT"`
	OTelInsecure    bool    `mapstructure:"OTEL_INSECURE"`
	OTelSampleRatio float64 `mapstructure:"OTEL_SAMPLE_RATIO"`
	MetricsEnabled  bool    `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ROUTES", "BODY_LIMIT", "REQUEST_TIMEOUT",
	"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_USE_PATH_STYLE", "S3_ACCESS_KEY_ID",
	"S3_SECRET_ACCESS_KEY", "PRESIGN_TTL",
	"SMTP_ADDR", "SMTP_FROM", "SMTP_USERNAME", "SMTP_PASSWORD",
	"OTEL_ENABLED", "OTEL_ENDPOINT", "OTEL_INSECURE", "OTEL_SAMPLE_RATIO", "METRICS_ENABLED",
}

// Load reads the server configuration. DATABASE_URL is required.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// Read reads the configuration without requiring a database, for commands
// that never connect to one.
func Read() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_TOKEN_TTL", "1h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("S3_REGION", "eu-west-3")
	v.SetDefault("S3_BUCKET", "rollcare-documents")
	v.SetDefault("PRESIGN_TTL", "15m")
	v.SetDefault("SMTP_FROM", "no-reply@rollcare.local")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
	v.SetDefault("METRICS_ENABLED", true)

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
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments get the dev verifier and everything else verifies JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed in production")
		}
	case "jwt":
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_MODE=jwt requires AUTH_SIGNING_KEY, AUTH_JWKS_URL or AUTH_ISSUER")
		}
		if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		return fmt.Errorf("OTEL_ENDPOINT is required when OTEL_ENABLED is true")
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be within [0, 1], got %v", c.OTelSampleRatio)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
