package claims

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlbridge/errors"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		SigningSecret: "test-signing-secret",
		VerifySecret:  "test-signing-secret",
		Algorithm:     "HS256",
		TTL:           time.Hour,
		Namespace:     "https://hasura.io/jwt/claims",
	}
}

func testClaims() *Claims {
	return &Claims{
		Subject:      "user-1",
		DefaultRole:  "me",
		AllowedRoles: []string{"me", "anonymous"},
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	cfg := testTokenConfig()

	token, err := Mint(cfg, testClaims())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := VerifyToken(cfg, token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, "me", got.DefaultRole)
	assert.ElementsMatch(t, []string{"me", "anonymous"}, got.AllowedRoles)
}

func TestMintCarriesExtraFields(t *testing.T) {
	cfg := testTokenConfig()
	c := testClaims()
	c.Extra = map[string]string{"x-hasura-org-id": "org-9"}

	token, err := Mint(cfg, c)
	require.NoError(t, err)

	got, err := VerifyToken(cfg, token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "org-9", got.Extra["x-hasura-org-id"])
}

func TestMintRejectsInvalidClaims(t *testing.T) {
	_, err := Mint(testTokenConfig(), &Claims{Subject: "user-1"})
	require.ErrorIs(t, err, errors.ErrClaimsInvalid)
}

func TestMintFailsWithoutSecret(t *testing.T) {
	cfg := testTokenConfig()
	cfg.SigningSecret = ""

	_, err := Mint(cfg, testClaims())
	require.ErrorIs(t, err, errors.ErrSigningFailed)
	assert.True(t, errors.IsFatal(err))
}

func TestMintFailsWithUnknownAlgorithm(t *testing.T) {
	cfg := testTokenConfig()
	cfg.Algorithm = "XS512"

	_, err := Mint(cfg, testClaims())
	require.ErrorIs(t, err, errors.ErrSigningFailed)
}

func TestMintRejectsNonHMACAlgorithm(t *testing.T) {
	cfg := testTokenConfig()
	cfg.Algorithm = "RS256"

	_, err := Mint(cfg, testClaims())
	require.ErrorIs(t, err, errors.ErrSigningFailed)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	cfg := testTokenConfig()
	token, err := Mint(cfg, testClaims())
	require.NoError(t, err)

	cfg.VerifySecret = "another-secret"
	_, err = VerifyToken(cfg, token)
	require.ErrorIs(t, err, errors.ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testTokenConfig()
	cfg.TTL = -time.Minute

	token, err := Mint(cfg, testClaims())
	require.NoError(t, err)

	_, err = VerifyToken(cfg, token)
	require.ErrorIs(t, err, errors.ErrTokenInvalid)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	_, err := VerifyToken(testTokenConfig(), "")
	require.ErrorIs(t, err, errors.ErrTokenInvalid)
}

// A verified token whose payload lacks a complete claims object is not an
// error: resolution falls through to the next step.
func TestVerifyIncompleteClaimsFallsThrough(t *testing.T) {
	cfg := testTokenConfig()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.VerifySecret))
	require.NoError(t, err)

	got, err := VerifyToken(cfg, signed)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVerifyMalformedNamespaceFallsThrough(t *testing.T) {
	cfg := testTokenConfig()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "user-1",
		"exp":         time.Now().Add(time.Hour).Unix(),
		cfg.Namespace: "not-an-object",
	})
	signed, err := token.SignedString([]byte(cfg.VerifySecret))
	require.NoError(t, err)

	got, err := VerifyToken(cfg, signed)
	require.NoError(t, err)
	assert.Nil(t, got)
}
