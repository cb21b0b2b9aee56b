// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the gateway configuration structure and provides
//	functions to load configuration from environment variables using envconfig.
//	Configuration is read once at startup and treated as immutable afterwards;
//	components receive it by injection rather than reading the environment
//	ad hoc.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all gateway configuration fields
//   - Load reads and validates environment variables
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - AUTH_ENFORCED defaults to false so the gateway runs with zero identity
//     provider configuration (mock identity tier)
//   - SESSION_SECRET is required whenever AUTH_ENFORCED=true and must be at
//     least 32 bytes
//   - LOGTO_* fields are only required when AUTH_ENFORCED=true
//   - Kafka is optional (audit events are logged if brokers are unset)
//
// Thread Safety:
//   - Config struct is read-only after loading (safe for concurrent read access)
//
// Error Handling:
//   - Load returns wrapped errors from envconfig.Process and validation
//   - MustLoad writes to stderr and exits on error
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents runtime configuration for the chat gateway.
// All fields are populated from environment variables with defaults where
// specified. Required fields must be set or Load/MustLoad will return an error.
type Config struct {
	// ServiceName is emitted in logs and metrics.
	ServiceName string `envconfig:"SERVICE_NAME" default:"chat-gateway"`
	// HTTPPort is the port the HTTP server listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`
	// LogLevel controls zerolog global level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Environment describes the current deployment environment (development, staging, production).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// BaseURL is the externally visible base URL of the application, used for
	// post-auth redirects and as the safe landing page on failures.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// AuthEnforced is the process-wide enforcement switch. When false every
	// request resolves to the fixed mock identity and the Edge Gate passes
	// all traffic through.
	AuthEnforced bool `envconfig:"AUTH_ENFORCED" default:"false"`
	// SessionSecret keys the HMAC used to sign session cookies. Required
	// when AUTH_ENFORCED=true; minimum 32 bytes.
	SessionSecret string `envconfig:"SESSION_SECRET" default:""`
	// SessionTTL is the lifetime of provider and virtual session cookies.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	// ErrorTTL is the lifetime of the short-lived auth-error cookie.
	ErrorTTL time.Duration `envconfig:"ERROR_TTL" default:"60s"`

	// LogtoIssuerURL is the OIDC issuer URL of the Logto tenant
	// (e.g. "https://tenant.logto.app/oidc").
	LogtoIssuerURL string `envconfig:"LOGTO_ISSUER_URL" default:""`
	// LogtoClientID is the Logto application client ID.
	LogtoClientID string `envconfig:"LOGTO_CLIENT_ID" default:""`
	// LogtoClientSecret is the Logto application client secret.
	LogtoClientSecret string `envconfig:"LOGTO_CLIENT_SECRET" default:""`

	// APIPrefix marks paths whose unauthenticated failures get a JSON 401
	// instead of a sign-in redirect.
	APIPrefix string `envconfig:"API_PREFIX" default:"/api"`
	// ProtectedPrefixes lists path prefixes the Edge Gate requires a valid
	// session for.
	ProtectedPrefixes []string `envconfig:"PROTECTED_PREFIXES" default:"/chat,/api/chat,/settings,/api/settings"`
	// PublicPrefixes lists path prefixes the Edge Gate always passes through.
	PublicPrefixes []string `envconfig:"PUBLIC_PREFIXES" default:"/api/auth,/healthz,/readyz,/metrics"`
	// StaticExcludeSuffixes lists path suffixes treated as static assets and
	// never gated (favicon, bundles, images).
	StaticExcludeSuffixes []string `envconfig:"STATIC_EXCLUDE_SUFFIXES" default:".ico,.css,.js,.png,.svg,.woff2"`
	// SignInPath is the sign-in entry point unauthenticated page requests
	// are redirected to.
	SignInPath string `envconfig:"SIGN_IN_PATH" default:"/api/auth/sign-in"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	// If empty, audit events are logged instead of sent to Kafka.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic is the Kafka topic name for audit events.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"audit.session"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"chat-gateway"`
}

// Production reports whether the gateway runs in a production environment.
// Controls the Secure attribute on session cookies.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load reads environment variables into Config, applying defaults where
// necessary, then validates cross-field requirements.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.AuthEnforced {
		return nil
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes when AUTH_ENFORCED=true")
	}
	if c.LogtoIssuerURL == "" || c.LogtoClientID == "" {
		return fmt.Errorf("LOGTO_ISSUER_URL and LOGTO_CLIENT_ID are required when AUTH_ENFORCED=true")
	}
	return nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
