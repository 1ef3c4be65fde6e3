// Package config builds the immutable runtime configuration of the relay.
//
// Values come from viper, which layers command-line flags over environment
// variables over an optional YAML file. The resulting Config is constructed
// once at startup and passed by value to everything that needs it; nothing
// below cmd/ reads the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load. Environment variables use the same names upper-cased.
const (
	KeyAPIKey            = "openai_api_key"
	KeyAPIKeyParameter   = "openai_api_key_parameter"
	KeyModel             = "openai_model"
	KeyBaseURL           = "openai_base_url"
	KeyUpstreamTimeout   = "upstream_timeout"
	KeyAllowedOrigins    = "allowed_origins"
	KeyPreflightFallback = "cors_preflight_fallback"
	KeyHost              = "host"
	KeyPort              = "port"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyMetricsEnabled    = "metrics_enabled"
	KeyShutdownTimeout   = "shutdown_timeout"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000

	// MinUpstreamTimeout rejects unit-less values such as "30", which parse
	// as nanoseconds.
	MinUpstreamTimeout = time.Second

	// WildcardOrigin allows every origin and disables credentialed requests.
	WildcardOrigin = "*"
)

// CORS is the resolved cross-origin policy.
type CORS struct {
	// AllowedOrigins is nil in wildcard mode.
	AllowedOrigins []string
	// AllowCredentials is true only for an explicit origin list.
	AllowCredentials bool
	// PreflightFallback answers disallowed preflights with the first
	// configured origin instead of rejecting them.
	PreflightFallback bool
}

// Wildcard reports whether every origin is allowed.
func (c CORS) Wildcard() bool {
	return len(c.AllowedOrigins) == 0
}

// Config is the process-wide configuration snapshot.
type Config struct {
	APIKey          string
	APIKeyParameter string
	Model           string
	BaseURL         string
	UpstreamTimeout time.Duration

	CORS CORS

	Host            string
	Port            int
	ShutdownTimeout time.Duration

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

// APIKeyConfigured reports whether an upstream credential is available.
func (c Config) APIKeyConfigured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// ListenAddress joins host and port.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WithAPIKey returns a copy of c carrying the given credential.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = strings.TrimSpace(key)
	return c
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyUpstreamTimeout, DefaultUpstreamTimeout)
	v.SetDefault(KeyAllowedOrigins, WildcardOrigin)
	v.SetDefault(KeyPreflightFallback, false)
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyMetricsEnabled, true)
}

// Load reads a Config from v. Defaults must already be registered with SetDefaults.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("config: viper instance must not be nil")
	}

	cfg := Config{
		APIKey:          strings.TrimSpace(v.GetString(KeyAPIKey)),
		APIKeyParameter: strings.TrimSpace(v.GetString(KeyAPIKeyParameter)),
		Model:           strings.TrimSpace(v.GetString(KeyModel)),
		BaseURL:         strings.TrimSpace(v.GetString(KeyBaseURL)),
		UpstreamTimeout: v.GetDuration(KeyUpstreamTimeout),
		Host:            strings.TrimSpace(v.GetString(KeyHost)),
		Port:            v.GetInt(KeyPort),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:       strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		MetricsEnabled:  v.GetBool(KeyMetricsEnabled),
	}

	origins, creds := ParseAllowedOrigins(v.GetString(KeyAllowedOrigins))
	cfg.CORS = CORS{
		AllowedOrigins:    origins,
		AllowCredentials:  creds,
		PreflightFallback: v.GetBool(KeyPreflightFallback),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that have no sensible fallback.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("config: model must not be empty")
	}
	if c.BaseURL == "" {
		return errors.New("config: openai base url must not be empty")
	}
	if c.UpstreamTimeout < MinUpstreamTimeout {
		return fmt.Errorf("config: upstream timeout must be at least %s, got %s", MinUpstreamTimeout, c.UpstreamTimeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// ParseAllowedOrigins turns the comma-separated ALLOWED_ORIGINS value into an
// ordered origin list. An unset value or the wildcard yields a nil list and
// credentials disabled.
func ParseAllowedOrigins(raw string) (origins []string, allowCredentials bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == WildcardOrigin {
		return nil, false
	}
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return nil, false
	}
	return origins, true
}
