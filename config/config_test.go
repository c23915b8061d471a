package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/protocol"
)

// validConfig returns a minimal configuration passing Validate.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.UpstreamHTTPURL = "http://upstream:8080/v1/graphql"
	cfg.UpstreamWSURL = "ws://upstream:8080/v1/graphql"
	cfg.TokenSigningSecret = "secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultBindAddress, cfg.BindAddress)
	assert.Equal(t, DefaultGraphQLPath, cfg.GraphQLPath)
	assert.Equal(t, protocol.DialectLegacy, cfg.UpstreamDialect)
	assert.Equal(t, "x-hasura-admin-secret", cfg.AdminSecretHeader)
	assert.Equal(t, DefaultClaimsNamespace, cfg.ClaimsNamespace)
	assert.Equal(t, "memory", cfg.IdentityBackend)
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(_ *Config) {}, nil},
		{"missing http url", func(c *Config) { c.UpstreamHTTPURL = "" }, errors.ErrMissingConfig},
		{"missing ws url", func(c *Config) { c.UpstreamWSURL = "" }, errors.ErrMissingConfig},
		{"missing signing secret", func(c *Config) { c.TokenSigningSecret = "" }, errors.ErrMissingConfig},
		{"bad dialect", func(c *Config) { c.UpstreamDialect = "graphql-http" }, errors.ErrInvalidConfig},
		{"bad algorithm", func(c *Config) { c.TokenAlgorithm = "none" }, errors.ErrInvalidConfig},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, errors.ErrInvalidConfig},
		{"redis backend without addr", func(c *Config) { c.IdentityBackend = "redis" }, errors.ErrMissingConfig},
		{"unknown backend", func(c *Config) { c.IdentityBackend = "etcd" }, errors.ErrInvalidConfig},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRejectsWrongURLSchemes(t *testing.T) {
	cfg := validConfig()
	cfg.UpstreamHTTPURL = "ws://x:1/y"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	cfg = validConfig()
	cfg.UpstreamWSURL = "http://x:1/y"
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidateRedisBackendWithAddr(t *testing.T) {
	cfg := validConfig()
	cfg.IdentityBackend = "redis"
	cfg.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bind_address: "127.0.0.1:9090"
upstream_http_url: "http://hasura:8080/v1/graphql"
upstream_ws_url: "ws://hasura:8080/v1/graphql"
upstream_dialect: "graphql-transport-ws"
token_signing_secret: "file-secret"
token_ttl: 30m
buffer_size: 64
enable_playground: true
cors_origins:
  - "https://app.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9090", cfg.BindAddress)
	assert.Equal(t, protocol.DialectModern, cfg.UpstreamDialect)
	assert.Equal(t, "file-secret", cfg.TokenSigningSecret)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.True(t, cfg.EnablePlayground)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultGraphQLPath, cfg.GraphQLPath)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestLoadEmptyPathUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("GQLBRIDGE_UPSTREAM_HTTP_URL", "http://env:8080/v1/graphql")
	t.Setenv("GQLBRIDGE_UPSTREAM_WS_URL", "ws://env:8080/v1/graphql")
	t.Setenv("GQLBRIDGE_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "env-secret", cfg.TokenSigningSecret)
}

// Environment overrides beat file values.
func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
upstream_http_url: "http://file:8080/v1/graphql"
upstream_ws_url: "ws://file:8080/v1/graphql"
token_signing_secret: "file-secret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("GQLBRIDGE_JWT_SECRET", "env-secret")
	t.Setenv("GQLBRIDGE_UPSTREAM_DIALECT", "graphql-transport-ws")
	t.Setenv("GQLBRIDGE_BUFFER_SIZE", "512")
	t.Setenv("GQLBRIDGE_HANDSHAKE_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.TokenSigningSecret)
	assert.Equal(t, "http://file:8080/v1/graphql", cfg.UpstreamHTTPURL)
	assert.Equal(t, protocol.DialectModern, cfg.UpstreamDialect)
	assert.Equal(t, 512, cfg.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
}

// Every knob is reachable from the environment, so env-only deployments
// need no file.
func TestEnvOverridesGatewayAndRelayKnobs(t *testing.T) {
	t.Setenv("GQLBRIDGE_ADMIN_SECRET_HEADER", "x-custom-admin")
	t.Setenv("GQLBRIDGE_MAX_REQUEST_SIZE", "2097152")
	t.Setenv("GQLBRIDGE_ENABLE_CORS", "true")
	t.Setenv("GQLBRIDGE_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("GQLBRIDGE_ENABLE_PLAYGROUND", "1")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "x-custom-admin", cfg.AdminSecretHeader)
	assert.Equal(t, int64(2097152), cfg.MaxRequestSize)
	assert.True(t, cfg.EnableCORS)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnablePlayground)
}

func TestVerifySecretFallsBackToSigningSecret(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "secret", cfg.VerifySecret())

	cfg.TokenVerifySecret = "verify-only"
	assert.Equal(t, "verify-only", cfg.VerifySecret())
}
