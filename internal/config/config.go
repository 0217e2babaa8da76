// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty the server runs on in-memory repositories.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// Session policy defaults applied when a user has no stored configuration.
	SessionMaxConcurrent           int    `mapstructure:"SESSION_MAX_CONCURRENT"`
	SessionTimeoutMinutes          int    `mapstructure:"SESSION_TIMEOUT_MINUTES"`
	SessionExtendedTimeoutMinutes  int    `mapstructure:"SESSION_EXTENDED_TIMEOUT_MINUTES"`
	SessionIdleTimeoutMinutes      int    `mapstructure:"SESSION_IDLE_TIMEOUT_MINUTES"`
	MfaRecheckIntervalRaw          string `mapstructure:"MFA_RECHECK_INTERVAL"`
	SessionCleanupCron             string `mapstructure:"SESSION_CLEANUP_CRON"`
	DetectorIPChangeWindowRaw      string `mapstructure:"DETECTOR_IP_CHANGE_WINDOW"`
	DetectorFailedAttemptThreshold int    `mapstructure:"DETECTOR_FAILED_ATTEMPT_THRESHOLD"`

	// Audit sink sizing.
	AuditQueueCapacity int    `mapstructure:"AUDIT_QUEUE_CAPACITY"`
	AuditWorkers       int    `mapstructure:"AUDIT_WORKERS"`
	AuditEnqueueWait   string `mapstructure:"AUDIT_ENQUEUE_WAIT"`
	AuditMaxRetries    int    `mapstructure:"AUDIT_MAX_RETRIES"`

	// RedisAddr enables the distributed per-user session lock when set (e.g. localhost:6379).
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	SessionLockTTL string `mapstructure:"SESSION_LOCK_TTL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. When set, critical
	// security events are published to SecurityAlertTopic.
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	SecurityAlertTopic string `mapstructure:"SECURITY_ALERT_TOPIC"`
	// Worker-only: Loki URL for the alert worker to push logs (e.g. http://localhost:3100).
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "deptreports-auth")
	v.SetDefault("JWT_AUDIENCE", "deptreports-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_MAX_CONCURRENT", 5)
	v.SetDefault("SESSION_TIMEOUT_MINUTES", 480)
	v.SetDefault("SESSION_EXTENDED_TIMEOUT_MINUTES", 43200)
	v.SetDefault("SESSION_IDLE_TIMEOUT_MINUTES", 30)
	v.SetDefault("MFA_RECHECK_INTERVAL", "12h")
	v.SetDefault("SESSION_CLEANUP_CRON", "*/5 * * * *")
	v.SetDefault("DETECTOR_IP_CHANGE_WINDOW", "30m")
	v.SetDefault("DETECTOR_FAILED_ATTEMPT_THRESHOLD", 5)
	v.SetDefault("AUDIT_QUEUE_CAPACITY", 1024)
	v.SetDefault("AUDIT_WORKERS", 4)
	v.SetDefault("AUDIT_ENQUEUE_WAIT", "50ms")
	v.SetDefault("AUDIT_MAX_RETRIES", 5)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("SESSION_LOCK_TTL", "5s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_ALERT_TOPIC", "deptreports-security-alerts")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "deptreports-alert-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.SessionMaxConcurrent <= 0 {
		return nil, errors.New("config: SESSION_MAX_CONCURRENT must be positive")
	}
	if cfg.SessionTimeoutMinutes <= 0 || cfg.SessionExtendedTimeoutMinutes <= 0 {
		return nil, errors.New("config: session timeouts must be positive")
	}
	if cfg.SessionIdleTimeoutMinutes < 0 {
		return nil, errors.New("config: SESSION_IDLE_TIMEOUT_MINUTES must not be negative")
	}
	if cfg.AuditQueueCapacity <= 0 || cfg.AuditWorkers <= 0 {
		return nil, errors.New("config: AUDIT_QUEUE_CAPACITY and AUDIT_WORKERS must be positive")
	}
	if cfg.AuditWorkers > cfg.AuditQueueCapacity {
		return nil, errors.New("config: AUDIT_WORKERS must not exceed AUDIT_QUEUE_CAPACITY")
	}
	if cfg.DetectorFailedAttemptThreshold <= 0 {
		return nil, errors.New("config: DETECTOR_FAILED_ATTEMPT_THRESHOLD must be positive")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// MfaRecheckInterval returns how long an MFA verification stays fresh. Defaults to 12h.
func (c *Config) MfaRecheckInterval() time.Duration {
	return parseDuration(c.MfaRecheckIntervalRaw, 12*time.Hour)
}

// DetectorIPChangeWindow returns the window within which an IP change is treated as suspicious.
func (c *Config) DetectorIPChangeWindow() time.Duration {
	return parseDuration(c.DetectorIPChangeWindowRaw, 30*time.Minute)
}

// AuditEnqueueWaitDuration returns the bounded wait for a full audit shard. Defaults to 50ms.
func (c *Config) AuditEnqueueWaitDuration() time.Duration {
	return parseDuration(c.AuditEnqueueWait, 50*time.Millisecond)
}

// SessionLockTTLDuration returns the expiry of the distributed per-user lock. Defaults to 5s.
func (c *Config) SessionLockTTLDuration() time.Duration {
	return parseDuration(c.SessionLockTTL, 5*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables critical-event notification.
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

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
