// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. cmd/gatekeeper loads a .env file first, so
// the same variables can be kept there during development.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_READ_TIMEOUT="15s"
//	GATEKEEPER_WRITE_TIMEOUT="15s"
//	GATEKEEPER_CORS_ALLOWED_ORIGINS="https://admin.example.com,https://staff.example.com"
//
// Rule settings:
//
//	GATEKEEPER_RULES_FILE="/etc/gatekeeper/rules.yaml"  # empty uses the embedded rule set
//	GATEKEEPER_MODE="enforce"                           # enforce, bypass
//	GATEKEEPER_MEMO_IDENTITIES="1024"
//	GATEKEEPER_MEMO_ENTRIES_PER_IDENTITY="4096"
//	GATEKEEPER_MEMO_TTL="10m"
//
// Session settings:
//
//	GATEKEEPER_SESSION_SECRET="..."  # HS256 key, at least 16 bytes
//	GATEKEEPER_SESSION_COOKIE="gk_session"
//	GATEKEEPER_SESSION_ISSUER="login.example.com"
//	GATEKEEPER_TRUST_IDENTITY_HEADERS="false"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
//
//	engine := rbac.NewEngine(model, rbac.WithMode(cfg.Rules.Mode))
//
// # Validation
//
// LoadConfig rejects an unknown evaluation mode, equal server and health ports,
// a missing rules file, non-positive memo sizes and short session secrets.
package config
