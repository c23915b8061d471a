package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/metric"
	"github.com/c360/gqlbridge/protocol"
)

// BridgeState is the upstream connection lifecycle state.
type BridgeState int32

const (
	// StateConnecting: upstream transport handshake in progress.
	StateConnecting BridgeState = iota
	// StateHandshakeSent: transport open, connection_init with claims sent.
	StateHandshakeSent
	// StateAcked: upstream replied with connection_ack; buffer flushed.
	StateAcked
	// StateClosing: teardown in progress.
	StateClosing
	// StateClosed: terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s BridgeState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake_sent"
	case StateAcked:
		return "acked"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UpstreamEvent is one item from the upstream read pump: either a parsed
// frame or a terminal transport error.
type UpstreamEvent struct {
	Frame protocol.Frame
	Err   error
}

// UpstreamBridge owns the upstream connection lifecycle and the
// per-connection buffered frame queue. It is exclusively owned by one
// ClientSession and never shared.
type UpstreamBridge struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	// dial is replaceable in tests.
	dial func(ctx context.Context) (Conn, error)

	conn    Conn
	state   atomic.Int32
	queue   *frameQueue
	writeMu sync.Mutex

	events    chan UpstreamEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewUpstreamBridge creates a bridge for one session. Metrics may be nil.
func NewUpstreamBridge(cfg *config.Config, logger *slog.Logger, m *metric.Metrics) *UpstreamBridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &UpstreamBridge{
		cfg:     cfg,
		logger:  logger.With("component", "upstream-bridge"),
		metrics: m,
		queue:   newFrameQueue(cfg.BufferSize),
		events:  make(chan UpstreamEvent, 64),
		done:    make(chan struct{}),
	}
	b.dial = b.dialUpstream
	return b
}

// dialUpstream dials the configured upstream realtime endpoint, negotiating
// the upstream subprotocol dialect.
func (b *UpstreamBridge) dialUpstream(ctx context.Context) (Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: b.cfg.HandshakeTimeout,
		Subprotocols:     []string{string(b.cfg.UpstreamDialect)},
	}
	conn, resp, err := dialer.DialContext(ctx, b.cfg.UpstreamWSURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, errors.WrapTransient(err, "UpstreamBridge", "dialUpstream",
			fmt.Sprintf("dial %s (status %d)", b.cfg.UpstreamWSURL, status))
	}
	return conn, nil
}

// State returns the current lifecycle state.
func (b *UpstreamBridge) State() BridgeState {
	return BridgeState(b.state.Load())
}

// Events returns the channel carrying upstream frames and transport errors.
func (b *UpstreamBridge) Events() <-chan UpstreamEvent {
	return b.events
}

// Open establishes the upstream connection and sends the bridge-constructed
// connection_init carrying the minted claims token. On return the bridge is
// in HandshakeSent and the read pump is running.
func (b *UpstreamBridge) Open(ctx context.Context, token string) error {
	if b.State() != StateConnecting {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "UpstreamBridge", "Open",
			fmt.Sprintf("open in state %s", b.State()))
	}

	start := time.Now()
	conn, err := b.dial(ctx)
	if err != nil {
		b.state.Store(int32(StateClosed))
		return err
	}
	if b.metrics != nil {
		b.metrics.UpstreamConnect.Observe(time.Since(start).Seconds())
	}
	b.conn = conn

	init, err := initFrame(token)
	if err != nil {
		b.state.Store(int32(StateClosed))
		_ = conn.Close()
		return err
	}
	if err := b.writeFrame(init); err != nil {
		b.state.Store(int32(StateClosed))
		_ = conn.Close()
		return errors.WrapTransient(err, "UpstreamBridge", "Open", "send connection_init")
	}
	b.state.Store(int32(StateHandshakeSent))

	go b.readPump()
	return nil
}

// initFrame builds the upstream connection_init, embedding the resolved
// claims as an authorization header in the payload.
func initFrame(token string) (protocol.Frame, error) {
	payload, err := json.Marshal(map[string]any{
		"headers": map[string]string{
			"Authorization": "Bearer " + token,
		},
	})
	if err != nil {
		return protocol.Frame{}, errors.WrapInvalid(err, "UpstreamBridge", "initFrame",
			"marshal init payload")
	}
	return protocol.Frame{Type: protocol.TypeConnectionInit, Payload: payload}, nil
}

// readPump delivers upstream frames to the session until the connection
// errors or the bridge closes. Malformed frames are logged and dropped; they
// never terminate the pump.
func (b *UpstreamBridge) readPump() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case b.events <- UpstreamEvent{Err: err}:
			case <-b.done:
			}
			return
		}

		frame, err := protocol.Parse(data)
		if err != nil {
			b.logger.Warn("dropping malformed upstream frame", "error", err)
			if b.metrics != nil {
				b.metrics.FramesDropped.WithLabelValues("malformed").Inc()
			}
			continue
		}

		select {
		case b.events <- UpstreamEvent{Frame: frame}:
		case <-b.done:
			return
		}
	}
}

// Buffer appends an operation frame to the ordered pre-ack queue.
func (b *UpstreamBridge) Buffer(f protocol.Frame) error {
	if _, err := b.queue.Enqueue(f); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.FramesBuffered.Inc()
	}
	return nil
}

// QueueLen returns the current buffered-frame count.
func (b *UpstreamBridge) QueueLen() int {
	return b.queue.Len()
}

// HandleAck transitions to Acked and flushes the buffered queue strictly in
// arrival order. Returns the number of frames flushed. A write failure
// mid-flush rejects the remaining entries and surfaces the error.
func (b *UpstreamBridge) HandleAck() (int, error) {
	if b.State() != StateHandshakeSent {
		return 0, errors.WrapInvalid(errors.ErrProtocolViolation, "UpstreamBridge", "HandleAck",
			fmt.Sprintf("ack in state %s", b.State()))
	}
	b.state.Store(int32(StateAcked))

	pending := b.queue.Drain()
	if b.metrics != nil {
		b.metrics.BufferFlushSize.Observe(float64(len(pending)))
	}

	for i, p := range pending {
		if err := b.writeFrame(p.frame); err != nil {
			p.resolve(err)
			for _, rest := range pending[i+1:] {
				rest.resolve(errors.WrapTransient(err, "UpstreamBridge", "HandleAck",
					"flush aborted by earlier write failure"))
			}
			return i, errors.WrapTransient(err, "UpstreamBridge", "HandleAck", "flush buffered frame")
		}
		p.resolve(nil)
	}
	return len(pending), nil
}

// Send forwards a frame to the acked upstream.
func (b *UpstreamBridge) Send(f protocol.Frame) error {
	if b.State() != StateAcked {
		return errors.WrapTransient(errors.ErrUpstreamNotReady, "UpstreamBridge", "Send",
			fmt.Sprintf("send in state %s", b.State()))
	}
	if err := b.writeFrame(f); err != nil {
		return errors.WrapTransient(err, "UpstreamBridge", "Send", "write frame")
	}
	return nil
}

// Reply writes a local answer (e.g. a pong) back to the upstream regardless
// of handshake progress. Valid once Open has succeeded.
func (b *UpstreamBridge) Reply(f protocol.Frame) error {
	if b.conn == nil {
		return errors.WrapTransient(errors.ErrUpstreamClosed, "UpstreamBridge", "Reply",
			"no upstream connection")
	}
	if err := b.writeFrame(f); err != nil {
		return errors.WrapTransient(err, "UpstreamBridge", "Reply", "write frame")
	}
	return nil
}

// writeFrame serializes and writes one frame under the write lock.
func (b *UpstreamBridge) writeFrame(f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the upstream side down: rejects every queued entry with a
// session-destroyed condition, attempts a clean close handshake (even when
// the bridge never reached Acked), and releases the connection. Idempotent.
func (b *UpstreamBridge) Close(d protocol.CloseDirective) {
	b.closeOnce.Do(func() {
		b.state.Store(int32(StateClosing))
		close(b.done)

		b.queue.RejectAll(errors.WrapInvalid(errors.ErrSessionDestroyed, "UpstreamBridge", "Close",
			"session destroyed with frames queued"))

		if b.conn != nil {
			sanitized := protocol.SanitizeClose(d.Code, d.Reason)
			msg := websocket.FormatCloseMessage(sanitized.Code, sanitized.Reason)
			b.writeMu.Lock()
			_ = b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(b.cfg.WriteTimeout))
			b.writeMu.Unlock()
			_ = b.conn.Close()
		}

		b.state.Store(int32(StateClosed))
	})
}
