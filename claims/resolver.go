package claims

import (
	"context"
	"log/slog"
	"strings"

	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/identity"
)

// Source identifies which resolution step produced the claims.
type Source string

const (
	// SourceToken: a verified bearer token embedded complete claims.
	SourceToken Source = "token"
	// SourceSession: claims synthesized from a session identity.
	SourceSession Source = "session"
	// SourceAnonymous: the anonymous fallback.
	SourceAnonymous Source = "anonymous"
)

// Resolution is the outcome of resolving one connection or request.
type Resolution struct {
	Claims *Claims
	// Token is the minted upstream token; empty unless ResolveToken was used.
	Token  string
	Source Source
}

// RequestContext is the connection-scoped view the resolver reads from: a
// header-like key/value map (merged from the HTTP request and, for WebSocket
// sessions, the connection_init payload headers) plus the session cookie
// value, when present.
type RequestContext struct {
	headers      map[string]string
	sessionToken string
}

// NewRequestContext creates an empty request context.
func NewRequestContext() *RequestContext {
	return &RequestContext{headers: make(map[string]string)}
}

// Clone returns an independent copy; used when connection_init payload
// headers overlay the upgrade-request headers.
func (rc *RequestContext) Clone() *RequestContext {
	out := NewRequestContext()
	for k, v := range rc.headers {
		out.headers[k] = v
	}
	out.sessionToken = rc.sessionToken
	return out
}

// SetHeader records a header value. Keys are case-insensitive.
func (rc *RequestContext) SetHeader(key, value string) {
	rc.headers[strings.ToLower(key)] = value
}

// Header returns a header value by case-insensitive key.
func (rc *RequestContext) Header(key string) string {
	return rc.headers[strings.ToLower(key)]
}

// SetSessionToken records the session cookie value.
func (rc *RequestContext) SetSessionToken(token string) {
	rc.sessionToken = token
}

// BearerToken extracts the bearer credential from the Authorization header,
// or "" when none is present.
func (rc *RequestContext) BearerToken() string {
	auth := rc.Header("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// Resolver derives Claims for connections and requests.
type Resolver struct {
	tokens   TokenConfig
	sessions identity.Store
	logger   *slog.Logger
}

// NewResolver creates a claims resolver. The identity store may be nil, in
// which case session resolution is skipped and unauthenticated connections
// fall straight through to anonymous claims.
func NewResolver(tokens TokenConfig, sessions identity.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger.With("component", "claims-resolver"),
	}
}

// Resolve derives claims for a connection, in priority order: verified
// bearer token with embedded claims, resolvable session identity, anonymous
// fallback. Only identity-store transport failures surface as errors;
// unverifiable tokens and unknown sessions degrade to the next step.
func (r *Resolver) Resolve(ctx context.Context, rc *RequestContext) (*Resolution, error) {
	if bearer := rc.BearerToken(); bearer != "" {
		c, err := VerifyToken(r.tokens, bearer)
		if err != nil {
			r.logger.Debug("bearer token rejected", "error", err)
		} else if c != nil {
			return &Resolution{Claims: c, Source: SourceToken}, nil
		}
	}

	if r.sessions != nil && rc.sessionToken != "" {
		id, err := r.sessions.Lookup(ctx, rc.sessionToken)
		if err != nil {
			return nil, errors.WrapTransient(err, "Resolver", "Resolve", "session lookup")
		}
		if id != nil {
			return &Resolution{Claims: ForIdentity(*id), Source: SourceSession}, nil
		}
	}

	return &Resolution{Claims: Anonymous(), Source: SourceAnonymous}, nil
}

// ResolveToken resolves claims and mints the upstream-compatible signed
// token in one step. A signing failure here is fatal for the connection.
func (r *Resolver) ResolveToken(ctx context.Context, rc *RequestContext) (*Resolution, error) {
	res, err := r.Resolve(ctx, rc)
	if err != nil {
		return nil, err
	}

	token, err := Mint(r.tokens, res.Claims)
	if err != nil {
		return nil, err
	}
	res.Token = token
	return res, nil
}
