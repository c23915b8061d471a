package bridge

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/c360/gqlbridge/claims"
	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/metric"
	"github.com/c360/gqlbridge/protocol"
)

// SessionState is the top-level session lifecycle state.
type SessionState int32

const (
	// SessionInit: downstream accepted, waiting for its connection_init.
	SessionInit SessionState = iota
	// SessionWaitingUpstream: client init received, upstream handshake in
	// flight, operations buffering.
	SessionWaitingUpstream
	// SessionActive: both handshakes complete, frames flow.
	SessionActive
	// SessionClosing: teardown in progress.
	SessionClosing
	// SessionClosed: terminal.
	SessionClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionInit:
		return "init"
	case SessionWaitingUpstream:
		return "waiting_upstream"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// downstreamEvent is one item from the downstream read pump.
type downstreamEvent struct {
	data []byte
	err  error
}

// ClientSession coordinates one downstream connection with one
// UpstreamBridge, enforcing the protocol state machine. Created per accepted
// connection, never reused.
type ClientSession struct {
	id       string
	cfg      *config.Config
	resolver *claims.Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics

	downstream        Conn
	downstreamDialect protocol.Dialect
	baseContext       *claims.RequestContext
	upstream          *UpstreamBridge

	state             atomic.Int32
	clientInitialized atomic.Bool
	upstreamAcked     atomic.Bool

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce atomic.Bool
}

// NewClientSession wires a freshly accepted downstream connection to a new
// upstream bridge. baseContext carries the upgrade-request headers and
// session cookie; metrics may be nil.
func NewClientSession(
	cfg *config.Config,
	resolver *claims.Resolver,
	downstream Conn,
	baseContext *claims.RequestContext,
	logger *slog.Logger,
	m *metric.Metrics,
) *ClientSession {
	if logger == nil {
		logger = slog.Default()
	}
	if baseContext == nil {
		baseContext = claims.NewRequestContext()
	}

	id := uuid.NewString()

	dialect := protocol.DialectLegacy
	if protocol.Dialect(downstream.Subprotocol()) == protocol.DialectModern {
		dialect = protocol.DialectModern
	}

	s := &ClientSession{
		id:                id,
		cfg:               cfg,
		resolver:          resolver,
		logger:            logger.With("component", "client-session", "session_id", id),
		metrics:           m,
		downstream:        downstream,
		downstreamDialect: dialect,
		baseContext:       baseContext,
		closed:            make(chan struct{}),
	}
	s.upstream = NewUpstreamBridge(cfg, s.logger, m)
	return s
}

// ID returns the opaque per-connection session identifier.
func (s *ClientSession) ID() string {
	return s.id
}

// State returns the current session state.
func (s *ClientSession) State() SessionState {
	return SessionState(s.state.Load())
}

// ClientInitialized implements SessionView.
func (s *ClientSession) ClientInitialized() bool {
	return s.clientInitialized.Load()
}

// UpstreamAcked implements SessionView.
func (s *ClientSession) UpstreamAcked() bool {
	return s.upstreamAcked.Load()
}

// Run drives the session until either side closes or errors. All state
// transitions happen on this goroutine; the read pumps only feed events in.
func (s *ClientSession) Run(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
		s.metrics.SessionsActive.Inc()
		defer s.metrics.SessionsActive.Dec()
	}

	s.logger.Info("session started", "dialect", s.downstreamDialect)

	events := make(chan downstreamEvent)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.readDownstream(events)
		return nil
	})

	s.loop(ctx, events)

	// Teardown has closed both connections, which unblocks the pump.
	_ = g.Wait()
	s.logger.Info("session ended")
}

// readDownstream pumps raw downstream messages into the actor loop.
func (s *ClientSession) readDownstream(events chan<- downstreamEvent) {
	for {
		_, data, err := s.downstream.ReadMessage()
		if err != nil {
			select {
			case events <- downstreamEvent{err: err}:
			case <-s.closed:
			}
			return
		}
		select {
		case events <- downstreamEvent{data: data}:
		case <-s.closed:
			return
		}
	}
}

// loop is the actor body: one select over downstream events, upstream
// events, and cancellation.
func (s *ClientSession) loop(ctx context.Context, events <-chan downstreamEvent) {
	for {
		select {
		case <-ctx.Done():
			s.Close(protocol.CloseDirective{Code: protocol.CloseNormal, Reason: "server shutting down"})
			return

		case <-s.closed:
			return

		case ev := <-events:
			if ev.err != nil {
				s.handleDownstreamError(ev.err)
				return
			}
			if done := s.handleDownstreamMessage(ctx, ev.data); done {
				return
			}

		case ev := <-s.upstream.Events():
			if ev.Err != nil {
				s.handleUpstreamError(ev.Err)
				return
			}
			if done := s.handleUpstreamFrame(ev.Frame); done {
				return
			}
		}
	}
}

// handleDownstreamMessage parses and routes one downstream message.
// Returns true when the session is finished.
func (s *ClientSession) handleDownstreamMessage(ctx context.Context, data []byte) bool {
	frame, err := protocol.Parse(data)
	if err != nil {
		// Malformed frames never crash the bridge: log, drop, stay open.
		s.logger.Warn("dropping malformed downstream frame", "error", err)
		if s.metrics != nil {
			s.metrics.FramesDropped.WithLabelValues("malformed").Inc()
		}
		return false
	}

	if frame.Type == protocol.TypeConnectionInit {
		return s.handleClientInit(ctx, frame)
	}

	decision := RouteDownstream(frame, s, s.cfg.UpstreamDialect)
	switch decision.Action {
	case ActionFail:
		s.logger.Warn("downstream protocol violation",
			"frame_type", frame.Type, "reason", decision.Reason)
		s.Close(decision.Close)
		return true

	case ActionBuffer:
		if err := s.upstream.Buffer(decision.Frame); err != nil {
			s.logger.Error("buffering failed", "error", err)
			s.Close(protocol.CloseDirective{Code: protocol.CloseServerError, Reason: "subscription buffer overflow"})
			return true
		}

	case ActionForward:
		if err := s.upstream.Send(decision.Frame); err != nil {
			s.logger.Error("upstream send failed", "error", err)
			s.Close(protocol.CloseDirective{Code: protocol.CloseServerError, Reason: "upstream unavailable"})
			return true
		}
		if s.metrics != nil {
			s.metrics.FramesForwarded.WithLabelValues("upstream", string(decision.Frame.Type)).Inc()
		}

	case ActionRespondLocally:
		for _, reply := range decision.Respond {
			if err := s.writeDownstream(reply); err != nil {
				s.handleDownstreamError(err)
				return true
			}
		}

	case ActionDrop:
		if s.metrics != nil {
			s.metrics.FramesDropped.WithLabelValues(decision.Reason).Inc()
		}
	}
	return false
}

// handleClientInit processes the downstream connection_init: it is never
// forwarded verbatim. It triggers claims resolution and the upstream open,
// and is replaced by a bridge-constructed upstream init.
func (s *ClientSession) handleClientInit(ctx context.Context, frame protocol.Frame) bool {
	if s.clientInitialized.Load() {
		// Re-init after ack is answered locally; before ack it is noise.
		if s.upstreamAcked.Load() {
			if err := s.writeDownstream(protocol.Frame{Type: protocol.TypeConnectionAck}); err != nil {
				s.handleDownstreamError(err)
				return true
			}
		}
		return false
	}
	s.clientInitialized.Store(true)

	rc := s.connectionContext(frame)
	res, err := s.resolver.ResolveToken(ctx, rc)
	if err != nil {
		s.logger.Error("claims resolution failed", "error", err)
		s.Close(protocol.CloseDirective{Code: protocol.CloseServerError, Reason: "authentication unavailable"})
		return true
	}
	if s.metrics != nil {
		s.metrics.ClaimsResolved.WithLabelValues(string(res.Source)).Inc()
	}
	s.logger.Debug("claims resolved",
		"source", res.Source,
		"subject", res.Claims.Subject,
		"default_role", res.Claims.DefaultRole)

	s.state.Store(int32(SessionWaitingUpstream))
	if err := s.upstream.Open(ctx, res.Token); err != nil {
		s.logger.Error("upstream open failed", "error", err)
		s.Close(protocol.CloseDirective{Code: protocol.CloseServerError, Reason: "upstream unavailable"})
		return true
	}
	return false
}

// connectionContext merges the upgrade-request context with any headers the
// client put in the connection_init payload (the usual place realtime
// GraphQL clients carry credentials).
func (s *ClientSession) connectionContext(frame protocol.Frame) *claims.RequestContext {
	rc := s.baseContext.Clone()
	if len(frame.Payload) == 0 {
		return rc
	}

	var payload struct {
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.logger.Debug("ignoring unparseable init payload", "error", err)
		return rc
	}
	for k, v := range payload.Headers {
		rc.SetHeader(k, v)
	}
	return rc
}

// handleUpstreamFrame routes one upstream frame. Returns true when the
// session is finished.
func (s *ClientSession) handleUpstreamFrame(frame protocol.Frame) bool {
	if frame.Type == protocol.TypeConnectionAck {
		return s.handleUpstreamAck()
	}

	decision := RouteUpstream(frame, s.downstreamDialect)
	switch decision.Action {
	case ActionForward:
		if err := s.writeDownstream(decision.Frame); err != nil {
			s.handleDownstreamError(err)
			return true
		}
		if s.metrics != nil {
			s.metrics.FramesForwarded.WithLabelValues("downstream", string(decision.Frame.Type)).Inc()
		}

	case ActionRespondLocally:
		for _, reply := range decision.Respond {
			if err := s.upstream.Reply(reply); err != nil {
				s.handleUpstreamError(err)
				return true
			}
		}

	case ActionDrop:
		if s.metrics != nil {
			s.metrics.FramesDropped.WithLabelValues(decision.Reason).Inc()
		}

	default:
		s.logger.Warn("unexpected routing action for upstream frame",
			"frame_type", frame.Type, "action", decision.Action)
	}
	return false
}

// handleUpstreamAck flushes the buffered queue in arrival order and, when
// the downstream already sent its own init, acknowledges it.
func (s *ClientSession) handleUpstreamAck() bool {
	flushed, err := s.upstream.HandleAck()
	if err != nil {
		// A duplicate ack is upstream noise, not a session failure.
		s.logger.Warn("ignoring unexpected upstream ack", "error", err)
		return false
	}
	s.upstreamAcked.Store(true)
	s.state.Store(int32(SessionActive))
	s.logger.Debug("upstream acknowledged", "flushed_frames", flushed)

	if s.clientInitialized.Load() {
		if err := s.writeDownstream(protocol.Frame{Type: protocol.TypeConnectionAck}); err != nil {
			s.handleDownstreamError(err)
			return true
		}
	}
	return false
}

// handleDownstreamError propagates a downstream transport failure to the
// upstream side with the same sanitized code/reason.
func (s *ClientSession) handleDownstreamError(err error) {
	d := directiveFromError(err, "downstream connection lost")
	s.logger.Info("downstream closed", "code", d.Code, "reason", d.Reason, "error", err)
	s.Close(d)
}

// handleUpstreamError propagates an upstream transport failure to the
// downstream side with the same sanitized code/reason. No reconnect is
// attempted here; that policy belongs to a higher layer.
func (s *ClientSession) handleUpstreamError(err error) {
	d := directiveFromError(err, "upstream connection lost")
	s.logger.Info("upstream closed", "code", d.Code, "reason", d.Reason, "error", err)
	s.Close(d)
}

// directiveFromError extracts the peer's close code/reason when the error is
// a WebSocket close, falling back to normal closure otherwise. Sanitization
// happens at the write site.
func directiveFromError(err error, fallback string) protocol.CloseDirective {
	var ce *websocket.CloseError
	if stderrors.As(err, &ce) {
		reason := ce.Text
		if reason == "" {
			reason = fallback
		}
		return protocol.SanitizeClose(ce.Code, reason)
	}
	return protocol.CloseDirective{Code: protocol.CloseNormal, Reason: fallback}
}

// Close tears down both sides of the session. Idempotent: repeated calls
// after the first are no-ops and produce no duplicate close frames.
func (s *ClientSession) Close(d protocol.CloseDirective) {
	if !s.closeOnce.CompareAndSwap(false, true) {
		return
	}
	s.state.Store(int32(SessionClosing))
	close(s.closed)

	sanitized := protocol.SanitizeClose(d.Code, d.Reason)
	if s.metrics != nil {
		s.metrics.SessionCloses.WithLabelValues(strconv.Itoa(sanitized.Code)).Inc()
	}

	s.upstream.Close(sanitized)

	msg := websocket.FormatCloseMessage(sanitized.Code, sanitized.Reason)
	_ = s.downstream.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
	_ = s.downstream.Close()

	s.state.Store(int32(SessionClosed))
}

// writeDownstream serializes and writes one frame to the client, translating
// nothing: callers pass frames already shaped for the downstream dialect.
func (s *ClientSession) writeDownstream(f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.downstream.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.downstream.WriteMessage(websocket.TextMessage, data)
}
