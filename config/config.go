package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/protocol"
)

// Default values applied by DefaultConfig.
const (
	DefaultBindAddress     = "0.0.0.0:8080"
	DefaultGraphQLPath     = "/v1/graphql"
	DefaultTokenTTL        = time.Hour
	DefaultTokenAlgorithm  = "HS256"
	DefaultClaimsNamespace = "https://hasura.io/jwt/claims"
	DefaultBufferSize      = 256
	DefaultHandshakeWait   = 30 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultMaxRequestSize  = 1 << 20 // 1MB
)

// Config is the process-wide configuration. It is the only long-lived shared
// state in the bridge and is treated as read-only after Load/ApplyEnv.
type Config struct {
	// BindAddress is the host:port the gateway listens on.
	BindAddress string `yaml:"bind_address"`
	// GraphQLPath is the endpoint serving both the HTTP passthrough and the
	// WebSocket upgrade.
	GraphQLPath string `yaml:"graphql_path"`

	// UpstreamHTTPURL is the upstream GraphQL HTTP endpoint for
	// queries/mutations.
	UpstreamHTTPURL string `yaml:"upstream_http_url"`
	// UpstreamWSURL is the upstream realtime endpoint for subscriptions.
	UpstreamWSURL string `yaml:"upstream_ws_url"`
	// UpstreamDialect selects the subprotocol spoken to the upstream engine.
	UpstreamDialect protocol.Dialect `yaml:"upstream_dialect"`

	// AdminSecret, when set, is attached to passthrough requests that could
	// not resolve any claims. Optional.
	AdminSecret string `yaml:"admin_secret"`
	// AdminSecretHeader is the upstream header carrying AdminSecret.
	AdminSecretHeader string `yaml:"admin_secret_header"`

	// TokenSigningSecret signs minted upstream tokens. Required.
	TokenSigningSecret string `yaml:"token_signing_secret"`
	// TokenVerifySecret verifies inbound bearer tokens; defaults to
	// TokenSigningSecret when empty.
	TokenVerifySecret string `yaml:"token_verify_secret"`
	// TokenAlgorithm is the HMAC algorithm, fixed per deployment.
	TokenAlgorithm string `yaml:"token_algorithm"`
	// TokenTTL bounds the lifetime of minted tokens.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// ClaimsNamespace is the JWT claim key holding the role/subject fields
	// the upstream engine reads.
	ClaimsNamespace string `yaml:"claims_namespace"`

	// IdentityBackend selects the session-identity store: "memory" or "redis".
	IdentityBackend string `yaml:"identity_backend"`
	// RedisAddr is the Redis host:port for the redis identity backend.
	RedisAddr string `yaml:"redis_addr"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `yaml:"redis_password"`
	// RedisDB selects the Redis logical database.
	RedisDB int `yaml:"redis_db"`
	// SessionCookieName is the downstream cookie carrying the session token.
	SessionCookieName string `yaml:"session_cookie_name"`

	// BufferSize bounds the per-session queue of frames captured before the
	// upstream ack. Overflow is session-fatal.
	BufferSize int `yaml:"buffer_size"`
	// HandshakeTimeout bounds the upstream WebSocket dial+handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// WriteTimeout bounds individual WebSocket writes.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxRequestSize bounds passthrough request bodies in bytes.
	MaxRequestSize int64 `yaml:"max_request_size"`

	// EnableCORS toggles CORS handling on the gateway.
	EnableCORS bool `yaml:"enable_cors"`
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
	// EnablePlayground serves the GraphQL playground at the root path.
	EnablePlayground bool `yaml:"enable_playground"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddress:       DefaultBindAddress,
		GraphQLPath:       DefaultGraphQLPath,
		UpstreamDialect:   protocol.DialectLegacy,
		AdminSecretHeader: "x-hasura-admin-secret",
		TokenAlgorithm:    DefaultTokenAlgorithm,
		TokenTTL:          DefaultTokenTTL,
		ClaimsNamespace:   DefaultClaimsNamespace,
		IdentityBackend:   "memory",
		SessionCookieName: "session",
		BufferSize:        DefaultBufferSize,
		HandshakeTimeout:  DefaultHandshakeWait,
		WriteTimeout:      DefaultWriteWait,
		MaxRequestSize:    DefaultMaxRequestSize,
	}
}

// Load reads configuration from a YAML file on top of the defaults and then
// applies environment overrides. Path may be empty, in which case only
// defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides configuration fields from GQLBRIDGE_* environment
// variables. Environment takes precedence over file values.
func (c *Config) ApplyEnv() {
	setString(&c.BindAddress, "GQLBRIDGE_BIND_ADDRESS")
	setString(&c.GraphQLPath, "GQLBRIDGE_GRAPHQL_PATH")
	setString(&c.UpstreamHTTPURL, "GQLBRIDGE_UPSTREAM_HTTP_URL")
	setString(&c.UpstreamWSURL, "GQLBRIDGE_UPSTREAM_WS_URL")
	if v := os.Getenv("GQLBRIDGE_UPSTREAM_DIALECT"); v != "" {
		c.UpstreamDialect = protocol.Dialect(v)
	}
	setString(&c.AdminSecret, "GQLBRIDGE_ADMIN_SECRET")
	setString(&c.AdminSecretHeader, "GQLBRIDGE_ADMIN_SECRET_HEADER")
	setString(&c.TokenSigningSecret, "GQLBRIDGE_JWT_SECRET")
	setString(&c.TokenVerifySecret, "GQLBRIDGE_JWT_VERIFY_SECRET")
	setString(&c.TokenAlgorithm, "GQLBRIDGE_JWT_ALGORITHM")
	setDuration(&c.TokenTTL, "GQLBRIDGE_JWT_TTL")
	setString(&c.ClaimsNamespace, "GQLBRIDGE_CLAIMS_NAMESPACE")
	setString(&c.IdentityBackend, "GQLBRIDGE_IDENTITY_BACKEND")
	setString(&c.RedisAddr, "GQLBRIDGE_REDIS_ADDR")
	setString(&c.RedisPassword, "GQLBRIDGE_REDIS_PASSWORD")
	setInt(&c.RedisDB, "GQLBRIDGE_REDIS_DB")
	setString(&c.SessionCookieName, "GQLBRIDGE_SESSION_COOKIE")
	setInt(&c.BufferSize, "GQLBRIDGE_BUFFER_SIZE")
	setDuration(&c.HandshakeTimeout, "GQLBRIDGE_HANDSHAKE_TIMEOUT")
	setDuration(&c.WriteTimeout, "GQLBRIDGE_WRITE_TIMEOUT")
	setInt64(&c.MaxRequestSize, "GQLBRIDGE_MAX_REQUEST_SIZE")
	setBool(&c.EnableCORS, "GQLBRIDGE_ENABLE_CORS")
	if v := os.Getenv("GQLBRIDGE_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitCommaList(v)
	}
	setBool(&c.EnablePlayground, "GQLBRIDGE_ENABLE_PLAYGROUND")
}

// Validate enforces startup invariants. A config failing here is a fatal
// configuration error per the bridge error taxonomy.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"bind_address is required")
	}
	if c.UpstreamHTTPURL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate",
			"upstream_http_url is required")
	}
	if err := validateURL(c.UpstreamHTTPURL, "http", "https"); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "upstream_http_url")
	}
	if c.UpstreamWSURL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate",
			"upstream_ws_url is required")
	}
	if err := validateURL(c.UpstreamWSURL, "ws", "wss"); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "upstream_ws_url")
	}
	if c.TokenSigningSecret == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate",
			"token_signing_secret is required")
	}
	if !c.UpstreamDialect.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown upstream dialect %q", c.UpstreamDialect))
	}
	switch c.TokenAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unsupported token algorithm %q", c.TokenAlgorithm))
	}
	if c.TokenTTL <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"token_ttl must be positive")
	}
	switch c.IdentityBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"redis_addr is required for the redis identity backend")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown identity backend %q", c.IdentityBackend))
	}
	if c.BufferSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size must be positive")
	}
	if c.MaxRequestSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size must be positive")
	}
	return nil
}

// VerifySecret returns the secret used for inbound token verification,
// falling back to the signing secret.
func (c *Config) VerifySecret() string {
	if c.TokenVerifySecret != "" {
		return c.TokenVerifySecret
	}
	return c.TokenSigningSecret
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%q must use one of schemes %v", raw, schemes)
}

// Environment helper functions

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || v == "true" || v == "yes"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
