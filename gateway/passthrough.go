package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/c360/gqlbridge/claims"
	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/metric"
)

// hopHeaders are connection-scoped and never relayed in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Passthrough relays plain GraphQL HTTP requests to the upstream engine,
// replacing the caller's credentials with bridge-resolved ones. It holds no
// per-request state beyond the outbound client.
type Passthrough struct {
	config   *config.Config
	resolver *claims.Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics
	client   *http.Client
}

// NewPassthrough creates the relay. Metrics may be nil.
func NewPassthrough(cfg *config.Config, resolver *claims.Resolver, logger *slog.Logger, m *metric.Metrics) *Passthrough {
	if logger == nil {
		logger = slog.Default()
	}
	return &Passthrough{
		config:   cfg,
		resolver: resolver,
		logger:   logger.With("component", "passthrough"),
		metrics:  m,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ServeHTTP relays one request. The upstream response is returned verbatim:
// same status, same body, same headers (hop-by-hop stripped). A failure to
// reach the upstream is the only response the relay authors itself.
func (p *Passthrough) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		p.observe(http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, p.config.MaxRequestSize)
	out, err := http.NewRequestWithContext(r.Context(), r.Method, p.config.UpstreamHTTPURL, body)
	if err != nil {
		p.logger.Error("building upstream request failed", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		p.observe(http.StatusBadGateway)
		return
	}

	copyHeaders(out.Header, r.Header)
	stripHopHeaders(out.Header)
	out.Header.Del("Cookie")

	if err := p.attachCredentials(r, out); err != nil {
		p.logger.Error("claims resolution failed", "error", err)
		http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
		p.observe(http.StatusServiceUnavailable)
		return
	}

	resp, err := p.client.Do(out)
	if err != nil {
		p.logger.Warn("upstream request failed", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		p.observe(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	copyHeaders(header, resp.Header)
	stripHopHeaders(header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug("relaying upstream body interrupted", "error", err)
	}
	p.observe(resp.StatusCode)
}

// attachCredentials resolves claims for the request and swaps the inbound
// credentials for the upstream's: a minted bearer token, or the configured
// admin secret when anonymous traffic should run with engine defaults.
func (p *Passthrough) attachCredentials(r *http.Request, out *http.Request) error {
	rc := claims.NewRequestContext()
	for name, values := range r.Header {
		if len(values) > 0 {
			rc.SetHeader(name, values[0])
		}
	}
	if cookie, err := r.Cookie(p.config.SessionCookieName); err == nil && cookie.Value != "" {
		rc.SetSessionToken(cookie.Value)
	}

	res, err := p.resolver.ResolveToken(r.Context(), rc)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ClaimsResolved.WithLabelValues(string(res.Source)).Inc()
	}

	out.Header.Del("Authorization")
	out.Header.Del(p.config.AdminSecretHeader)

	if res.Source == claims.SourceAnonymous && p.config.AdminSecret != "" {
		out.Header.Set(p.config.AdminSecretHeader, p.config.AdminSecret)
		return nil
	}
	out.Header.Set("Authorization", "Bearer "+res.Token)
	return nil
}

// observe records one relayed response by status class.
func (p *Passthrough) observe(status int) {
	if p.metrics != nil {
		p.metrics.PassthroughTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func stripHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
