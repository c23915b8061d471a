package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/c360/gqlbridge/bridge"
	"github.com/c360/gqlbridge/claims"
	"github.com/c360/gqlbridge/protocol"
)

// isWebSocketUpgrade reports whether the request asks for a WebSocket
// upgrade.
func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

// handleWebSocket upgrades the request and runs a session for its lifetime.
// Subprotocol negotiation prefers the modern dialect when the client offers
// it; clients offering neither are accepted as legacy, matching how older
// subscription clients behave.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: s.config.HandshakeTimeout,
		Subprotocols: []string{
			string(protocol.DialectModern),
			string(protocol.DialectLegacy),
		},
		CheckOrigin: func(r *http.Request) bool {
			if !s.config.EnableCORS {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.config.CORSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	rc := s.requestContext(r)
	session := bridge.NewClientSession(s.config, s.resolver, conn, rc, s.logger, s.metrics)

	s.logger.Info("websocket session accepted",
		"session_id", session.ID(),
		"subprotocol", conn.Subprotocol(),
		"remote", r.RemoteAddr)

	// The request context dies when this handler returns; the session lives
	// until the connection or the server stops.
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		session.Run(ctx)
	}()
}

// requestContext captures the resolver-relevant parts of the upgrade or POST
// request: headers plus the session cookie value.
func (s *Server) requestContext(r *http.Request) *claims.RequestContext {
	rc := claims.NewRequestContext()
	for name, values := range r.Header {
		if len(values) > 0 {
			rc.SetHeader(name, values[0])
		}
	}
	if cookie, err := r.Cookie(s.config.SessionCookieName); err == nil && cookie.Value != "" {
		rc.SetSessionToken(cookie.Value)
	}
	return rc
}
