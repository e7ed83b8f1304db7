package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgstrings "securecard/pkg/platform/strings"
)

// Server captures process level configuration, read once at startup.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	// DatabaseURL selects Postgres persistence; empty runs on in-memory stores.
	DatabaseURL string
	Redis       RedisConfig
	JWT         JWTConfig
	AdminEmails []string
	OTP         OTPConfig
	Payment     PaymentConfig
	SMTP        SMTPConfig
	Kafka       KafkaConfig
	Tracing     TracingConfig
	RateLimit   RateLimitConfig
}

// RedisConfig holds the Redis connection settings. An empty URL keeps OTP
// challenges in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	SigningKey string
	TTL        time.Duration
	Issuer     string
}

// OTPConfig is the step-up challenge policy.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	IssueLimit  int
	IssueWindow time.Duration
}

type PaymentConfig struct {
	// StepUpThreshold is the charge amount above which an OTP is required.
	StepUpThreshold decimal.Decimal
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether a relay is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type TracingConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

type RateLimitConfig struct {
	RPS      float64
	Burst    int
	Disabled bool
}

// IsDevelopment reports whether the process runs in a local environment.
func (s Server) IsDevelopment() bool {
	return s.Environment == "" || s.Environment == "development" || s.Environment == "dev"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	p := &parser{}
	cfg := Server{
		Addr:        stringOr("SECURECARD_ADDR", ":8080"),
		Environment: stringOr("ENVIRONMENT", "development"),
		LogLevel:    stringOr("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			// Use a default for development - must be overridden in production
			SigningKey: stringOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TTL:        p.duration("JWT_TTL", time.Hour),
			Issuer:     stringOr("JWT_ISSUER", "securecard"),
		},
		AdminEmails: pkgstrings.SplitList(os.Getenv("ADMIN_EMAILS")),
		OTP: OTPConfig{
			TTL:         p.duration("OTP_TTL", 5*time.Minute),
			MaxAttempts: p.int("OTP_MAX_ATTEMPTS", 3),
			IssueLimit:  p.int("OTP_ISSUE_LIMIT", 5),
			IssueWindow: p.duration("OTP_ISSUE_WINDOW", 15*time.Minute),
		},
		Payment: PaymentConfig{
			StepUpThreshold: p.decimal("STEP_UP_THRESHOLD", decimal.NewFromInt(10000)),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     p.int("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     stringOr("MAIL_FROM", "SecureCard <no-reply@securecard.local>"),
		},
		Kafka: KafkaConfig{
			Brokers:    pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: stringOr("AUDIT_TOPIC", "securecard.audit"),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  stringOr("OTEL_SERVICE_NAME", "securecard"),
		},
		RateLimit: RateLimitConfig{
			RPS:      p.float("RATE_LIMIT_RPS", 20),
			Burst:    p.int("RATE_LIMIT_BURST", 40),
			Disabled: os.Getenv("RATE_LIMIT_DISABLED") == "true",
		},
	}
	if p.err != nil {
		return Server{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	if !s.IsDevelopment() && s.JWT.SigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set outside development")
	}
	if s.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if s.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if s.Payment.StepUpThreshold.IsNegative() {
		return fmt.Errorf("STEP_UP_THRESHOLD must not be negative")
	}
	return nil
}

func stringOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser records the first malformed variable so FromEnv can report it.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}
