package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"

	"github.com/c360/gqlbridge/claims"
	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/metric"
)

// Server is the HTTP front of the bridge. One endpoint serves both
// transports: WebSocket upgrade requests become subscription sessions,
// everything else is relayed to the upstream HTTP endpoint.
type Server struct {
	config   *config.Config
	resolver *claims.Resolver
	logger   *slog.Logger
	registry *metric.Registry
	metrics  *metric.Metrics

	httpServer  *http.Server
	mux         *http.ServeMux
	passthrough *Passthrough

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	sessions sync.WaitGroup
}

// NewServer creates the gateway server. The metrics registry may be nil.
func NewServer(cfg *config.Config, resolver *claims.Resolver, logger *slog.Logger, reg *metric.Registry) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if resolver == nil {
		return nil, errors.WrapFatal(fmt.Errorf("resolver is nil"), "Server", "NewServer",
			"resolver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		resolver: resolver,
		logger:   logger.With("component", "gateway"),
		registry: reg,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}
	if reg != nil {
		s.metrics = reg.Metrics
	}
	s.passthrough = NewPassthrough(cfg, resolver, s.logger, s.metrics)
	return s, nil
}

// Setup configures routes and the underlying HTTP server.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc(s.config.GraphQLPath, s.handleGraphQL)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	if s.registry != nil {
		s.mux.Handle("/metrics", s.registry.Handler())
	}

	if s.config.EnablePlayground {
		s.mux.Handle("/", playground.Handler("GraphQL Bridge", s.config.GraphQLPath))
		s.logger.Info("playground enabled",
			"url", fmt.Sprintf("http://%s/", s.config.BindAddress))
	}

	var handler http.Handler = s.mux
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      handler,
		ReadTimeout:  s.config.HandshakeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("gateway configured",
		"address", s.config.BindAddress,
		"path", s.config.GraphQLPath,
		"upstream_http", s.config.UpstreamHTTPURL,
		"upstream_ws", s.config.UpstreamWSURL)

	return nil
}

// Start runs the HTTP server until the context is cancelled or Stop is
// called. The ready channel is closed when the server begins listening.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "server already running")
	}
	if s.httpServer == nil {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrNotStarted, "Server", "Start", "Setup not called")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("gateway starting", "address", s.config.BindAddress)

		if ready != nil {
			close(ready)
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("gateway stop requested")
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts the server down and waits for in-flight sessions to
// finish their teardown.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("gateway stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("graceful shutdown failed", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	// Sessions observe stopChan through their own contexts; waiting here
	// bounds the drain to the same timeout.
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("session drain timed out")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("gateway stopped")
	return nil
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleGraphQL dispatches by transport: upgrade requests become sessions,
// everything else is relayed verbatim.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	s.passthrough.ServeHTTP(w, r)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range s.config.CORSOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
