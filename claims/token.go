package claims

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/c360/gqlbridge/errors"
)

// TokenConfig fixes the signing parameters for a deployment.
type TokenConfig struct {
	// SigningSecret signs minted tokens.
	SigningSecret string
	// VerifySecret verifies inbound bearer tokens.
	VerifySecret string
	// Algorithm is the HMAC algorithm name (HS256/HS384/HS512).
	Algorithm string
	// TTL bounds the lifetime of minted tokens.
	TTL time.Duration
	// Namespace is the JWT claim key holding the upstream claim fields.
	Namespace string
}

// signingMethod resolves the configured algorithm. Unknown or non-HMAC
// algorithms are a signing misconfiguration, fatal for the connection.
func (tc TokenConfig) signingMethod() (jwt.SigningMethod, error) {
	method := jwt.GetSigningMethod(tc.Algorithm)
	if method == nil {
		return nil, errors.WrapFatal(errors.ErrSigningFailed, "TokenConfig", "signingMethod",
			fmt.Sprintf("unknown signing algorithm %q", tc.Algorithm))
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.WrapFatal(errors.ErrSigningFailed, "TokenConfig", "signingMethod",
			fmt.Sprintf("algorithm %q is not an HMAC method", tc.Algorithm))
	}
	return method, nil
}

// Mint signs a short-lived token embedding the subject and claims under the
// configured namespace, in the shape the upstream engine expects.
func Mint(cfg TokenConfig, c *Claims) (string, error) {
	if cfg.SigningSecret == "" {
		return "", errors.WrapFatal(errors.ErrSigningFailed, "claims", "Mint",
			"signing secret is not configured")
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	method, err := cfg.signingMethod()
	if err != nil {
		return "", err
	}

	namespace := map[string]any{
		KeyAllowedRoles: c.AllowedRoles,
		KeyDefaultRole:  c.DefaultRole,
		KeyUserID:       c.Subject,
	}
	for k, v := range c.Extra {
		namespace[k] = v
	}

	now := time.Now()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub":         c.Subject,
		"iat":         now.Unix(),
		"exp":         now.Add(cfg.TTL).Unix(),
		cfg.Namespace: namespace,
	})

	signed, err := token.SignedString([]byte(cfg.SigningSecret))
	if err != nil {
		return "", errors.WrapFatal(errors.ErrSigningFailed, "claims", "Mint",
			fmt.Sprintf("sign token: %v", err))
	}
	return signed, nil
}

// VerifyToken parses and verifies a bearer token. When the verified payload
// embeds a complete claims object under the configured namespace, those
// claims are returned unmodified. A verified token without a complete claims
// object returns (nil, nil) so the caller can fall through to the next
// resolution step.
func VerifyToken(cfg TokenConfig, raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.WrapInvalid(errors.ErrTokenInvalid, "claims", "VerifyToken",
			"empty token")
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.VerifySecret), nil
	})
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrTokenInvalid, "claims", "VerifyToken",
			fmt.Sprintf("parse token: %v", err))
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrTokenInvalid, "claims", "VerifyToken",
			"unexpected claims shape")
	}

	return extractNamespace(mapClaims, cfg.Namespace), nil
}

// extractNamespace pulls a complete claims object out of a verified token
// payload, or nil when one is not present.
func extractNamespace(mapClaims jwt.MapClaims, namespace string) *Claims {
	nsRaw, ok := mapClaims[namespace]
	if !ok {
		return nil
	}
	ns, ok := nsRaw.(map[string]any)
	if !ok {
		return nil
	}

	c := &Claims{Extra: make(map[string]string)}
	for k, v := range ns {
		switch k {
		case KeyAllowedRoles:
			list, ok := v.([]any)
			if !ok {
				return nil
			}
			for _, item := range list {
				role, ok := item.(string)
				if !ok {
					return nil
				}
				c.AllowedRoles = append(c.AllowedRoles, role)
			}
		case KeyDefaultRole:
			role, ok := v.(string)
			if !ok {
				return nil
			}
			c.DefaultRole = role
		case KeyUserID:
			sub, ok := v.(string)
			if !ok {
				return nil
			}
			c.Subject = sub
		default:
			if s, ok := v.(string); ok {
				c.Extra[k] = s
			}
		}
	}

	if len(c.Extra) == 0 {
		c.Extra = nil
	}
	if c.Validate() != nil {
		// Verified but incomplete: not usable as-is.
		return nil
	}
	return c
}
