package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// minSecretLength is the shortest accepted HS256 session secret
const minSecretLength = 16

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Rule model and evaluation configuration
	Rules RulesConfig

	// Session resolution configuration
	Session SessionConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Browser origins allowed to call the decision API
	CORSAllowedOrigins []string
}

// RulesConfig selects the rule set and how checks are evaluated
type RulesConfig struct {
	// File is a YAML rule set; empty uses the embedded default
	File string

	Mode rbac.EvaluationMode

	MemoIdentities         int
	MemoEntriesPerIdentity int
	MemoTTL                time.Duration
}

// SessionConfig configures how the current user is resolved
type SessionConfig struct {
	// Secret verifies HS256 session tokens; empty disables token resolution
	Secret string
	Cookie string
	Issuer string

	// TrustHeaders accepts X-User-* identity headers from an upstream proxy
	TrustHeaders bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry tracing
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// Tracing returns the tracing settings in the form observability expects
func (c ObservabilityConfig) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	rules, err := loadRulesConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Rules:         rules,
		Session:       loadSessionConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("GATEKEEPER_HOST", "0.0.0.0"),
		Port:               getEnv("GATEKEEPER_PORT", "8080"),
		ReadTimeout:        getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:         getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
		CORSAllowedOrigins: getEnvList("GATEKEEPER_CORS_ALLOWED_ORIGINS", nil),
	}
}

// loadRulesConfig loads rule and evaluation settings from environment
func loadRulesConfig() (RulesConfig, error) {
	mode, err := rbac.ParseEvaluationMode(getEnv("GATEKEEPER_MODE", string(rbac.ModeEnforce)))
	if err != nil {
		return RulesConfig{}, err
	}

	return RulesConfig{
		File:                   getEnv("GATEKEEPER_RULES_FILE", ""),
		Mode:                   mode,
		MemoIdentities:         getEnvInt("GATEKEEPER_MEMO_IDENTITIES", rbac.DefaultMemoIdentities),
		MemoEntriesPerIdentity: getEnvInt("GATEKEEPER_MEMO_ENTRIES_PER_IDENTITY", rbac.DefaultMemoEntriesPerIdentity),
		MemoTTL:                getEnvDuration("GATEKEEPER_MEMO_TTL", 0),
	}, nil
}

// loadSessionConfig loads session settings from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Secret:       getEnv("GATEKEEPER_SESSION_SECRET", ""),
		Cookie:       getEnv("GATEKEEPER_SESSION_COOKIE", "gk_session"),
		Issuer:       getEnv("GATEKEEPER_SESSION_ISSUER", ""),
		TrustHeaders: getEnvBool("GATEKEEPER_TRUST_IDENTITY_HEADERS", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("GATEKEEPER_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATEKEEPER_METRICS_ENABLED", true),

		OTelEnabled:        getEnvBool("GATEKEEPER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEKEEPER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEKEEPER_OTEL_SERVICE_NAME", "gatekeeper"),
		OTelServiceVersion: getEnv("GATEKEEPER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEKEEPER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GATEKEEPER_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate rules config
	switch c.Rules.Mode {
	case rbac.ModeEnforce, rbac.ModeBypass:
	default:
		return fmt.Errorf("invalid evaluation mode: %s (must be enforce or bypass)", c.Rules.Mode)
	}
	if c.Rules.MemoIdentities <= 0 {
		return fmt.Errorf("memo identity capacity must be positive")
	}
	if c.Rules.MemoEntriesPerIdentity <= 0 {
		return fmt.Errorf("memo entries per identity must be positive")
	}
	if c.Rules.MemoTTL < 0 {
		return fmt.Errorf("memo TTL must not be negative")
	}
	if c.Rules.File != "" {
		if _, err := os.Stat(c.Rules.File); err != nil {
			return fmt.Errorf("rules file: %w", err)
		}
	}

	// Validate session config
	if c.Session.Secret != "" && len(c.Session.Secret) < minSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}

	// Validate observability config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
