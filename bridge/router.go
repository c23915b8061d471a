package bridge

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/c360/gqlbridge/protocol"
)

// Action is the routing outcome for one inbound frame.
type Action int

const (
	// ActionForward relays the (translated) frame to the other side.
	ActionForward Action = iota
	// ActionBuffer appends the frame to the ordered pre-ack queue.
	ActionBuffer
	// ActionRespondLocally answers on the same side without involving the
	// other; Decision.Respond carries the reply frames.
	ActionRespondLocally
	// ActionDrop discards the frame.
	ActionDrop
	// ActionFail terminates the session with Decision.Close.
	ActionFail
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionBuffer:
		return "buffer"
	case ActionRespondLocally:
		return "respond"
	case ActionDrop:
		return "drop"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decision is the full routing outcome: the action, the frame to forward
// (already translated for the destination dialect), any local reply frames,
// and the close directive for failures.
type Decision struct {
	Action  Action
	Frame   protocol.Frame
	Respond []protocol.Frame
	Close   protocol.CloseDirective
	Reason  string
}

// SessionView is the read-only session state the router decides against.
type SessionView interface {
	// ClientInitialized reports whether the downstream side has sent its
	// connection_init.
	ClientInitialized() bool
	// UpstreamAcked reports whether the upstream replied with
	// connection_ack.
	UpstreamAcked() bool
}

// RouteDownstream classifies a frame arriving from the downstream client.
// upstreamDialect is the dialect of the side the frame is headed toward.
// connection_init never reaches this function: the session intercepts it to
// trigger claims resolution and the upstream open.
func RouteDownstream(f protocol.Frame, view SessionView, upstreamDialect protocol.Dialect) Decision {
	switch f.Type {
	case protocol.TypeConnectionTerminate:
		return Decision{
			Action: ActionFail,
			Close:  protocol.CloseDirective{Code: protocol.CloseNormal, Reason: "client terminated connection"},
			Reason: "connection_terminate",
		}

	case protocol.TypePing:
		return Decision{
			Action:  ActionRespondLocally,
			Respond: []protocol.Frame{{Type: protocol.TypePong, Payload: f.Payload}},
			Reason:  "ping",
		}

	case protocol.TypeKeepAlive, protocol.TypePong:
		return Decision{Action: ActionDrop, Reason: "keep-alive"}
	}

	if f.IsOperation() {
		// Operation before the client's own init is a protocol violation.
		if !view.ClientInitialized() {
			return Decision{
				Action: ActionFail,
				Close:  protocol.CloseDirective{Code: protocol.CloseUnauthorized, Reason: "connection not initialized"},
				Reason: "operation before init",
			}
		}
		if !view.UpstreamAcked() {
			return Decision{Action: ActionBuffer, Frame: protocol.TranslateClientFrame(f, upstreamDialect)}
		}
		return Decision{Action: ActionForward, Frame: protocol.TranslateClientFrame(f, upstreamDialect)}
	}

	// Server-to-client frame types arriving from a client carry no meaning.
	return Decision{Action: ActionDrop, Reason: "unexpected client frame"}
}

// RouteUpstream classifies a frame arriving from the upstream engine.
// connection_ack never reaches this function: the session intercepts it to
// flush the buffer and complete its handshake.
func RouteUpstream(f protocol.Frame, downstreamDialect protocol.Dialect) Decision {
	switch f.Type {
	case protocol.TypeKeepAlive, protocol.TypePong:
		// Keep-alives are transport noise, never application data.
		return Decision{Action: ActionDrop, Reason: "keep-alive"}

	case protocol.TypePing:
		// Answer upstream pings locally so the upstream holds the
		// connection open; nothing is relayed downstream.
		return Decision{
			Action:  ActionRespondLocally,
			Respond: []protocol.Frame{{Type: protocol.TypePong, Payload: f.Payload}},
			Reason:  "ping",
		}

	case protocol.TypeConnectionError:
		// Surface as a GraphQL-shaped error so the downstream keeps the
		// illusion of a continuous subscription channel; the bridge stays
		// open and leaves the close decision to the application.
		return Decision{Action: ActionForward, Frame: synthesizeConnectionError(f)}

	case protocol.TypeData, protocol.TypeNext, protocol.TypeError, protocol.TypeComplete:
		return Decision{Action: ActionForward, Frame: protocol.TranslateServerFrame(f, downstreamDialect)}

	default:
		return Decision{Action: ActionDrop, Reason: "unexpected upstream frame"}
	}
}

// synthesizeConnectionError converts an upstream connection_error into a
// downstream error frame with a generated correlation id, nesting the
// original payload under an extension field.
func synthesizeConnectionError(f protocol.Frame) protocol.Frame {
	original := f.Payload
	if len(original) == 0 {
		original = json.RawMessage(`null`)
	}

	payload, err := json.Marshal(map[string]any{
		"message": "upstream connection error",
		"extensions": map[string]any{
			"upstream": original,
		},
	})
	if err != nil {
		payload = json.RawMessage(`{"message":"upstream connection error"}`)
	}

	return protocol.Frame{
		Type:    protocol.TypeError,
		ID:      uuid.NewString(),
		Payload: payload,
	}
}
