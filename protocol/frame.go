package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/c360/gqlbridge/errors"
)

// Dialect identifies one of the two realtime GraphQL subprotocol dialects.
type Dialect string

const (
	// DialectLegacy is the subscriptions-transport-ws dialect
	// (Sec-WebSocket-Protocol: graphql-ws).
	DialectLegacy Dialect = "graphql-ws"
	// DialectModern is the graphql-ws library dialect
	// (Sec-WebSocket-Protocol: graphql-transport-ws).
	DialectModern Dialect = "graphql-transport-ws"
)

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	return d == DialectLegacy || d == DialectModern
}

// FrameType is the type tag of a protocol frame. The constant set is the
// union of both dialects; classification helpers below distinguish them.
type FrameType string

// Frame types shared by both dialects.
const (
	TypeConnectionInit FrameType = "connection_init"
	TypeConnectionAck  FrameType = "connection_ack"
	TypeError          FrameType = "error"
	TypeComplete       FrameType = "complete"
)

// Legacy-dialect frame types.
const (
	TypeConnectionError     FrameType = "connection_error"
	TypeConnectionTerminate FrameType = "connection_terminate"
	TypeStart               FrameType = "start"
	TypeData                FrameType = "data"
	TypeStop                FrameType = "stop"
	TypeKeepAlive           FrameType = "ka"
)

// Modern-dialect frame types.
const (
	TypeSubscribe FrameType = "subscribe"
	TypeNext      FrameType = "next"
	TypePing      FrameType = "ping"
	TypePong      FrameType = "pong"
)

// knownTypes is the closed set of frame types the bridge understands.
// Frames outside this set are rejected at parse time rather than passed
// through as loosely-typed objects.
var knownTypes = map[FrameType]struct{}{
	TypeConnectionInit:      {},
	TypeConnectionAck:       {},
	TypeError:               {},
	TypeComplete:            {},
	TypeConnectionError:     {},
	TypeConnectionTerminate: {},
	TypeStart:               {},
	TypeData:                {},
	TypeStop:                {},
	TypeKeepAlive:           {},
	TypeSubscribe:           {},
	TypeNext:                {},
	TypePing:                {},
	TypePong:                {},
}

// Frame is a single protocol message. Payload stays opaque: the bridge never
// interprets query text or result bodies, it only routes and retypes.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Parse decodes raw bytes into a Frame, rejecting anything that does not
// carry a known type tag.
func Parse(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.WrapInvalid(errors.ErrMalformedFrame, "protocol", "Parse",
			fmt.Sprintf("decode frame: %v", err))
	}
	if f.Type == "" {
		return Frame{}, errors.WrapInvalid(errors.ErrMalformedFrame, "protocol", "Parse",
			"frame has no type field")
	}
	if _, ok := knownTypes[f.Type]; !ok {
		return Frame{}, errors.WrapInvalid(errors.ErrUnknownFrameType, "protocol", "Parse",
			fmt.Sprintf("unknown frame type %q", f.Type))
	}
	return f, nil
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, errors.WrapInvalid(err, "protocol", "Encode", "marshal frame")
	}
	return data, nil
}

// IsOperation reports whether the frame is a per-subscription operation frame
// (start/stop in legacy terms, subscribe/complete in modern terms). These are
// the frames subject to the init-before-operation rule and to buffering.
func (f Frame) IsOperation() bool {
	switch f.Type {
	case TypeStart, TypeStop, TypeSubscribe, TypeComplete:
		return true
	default:
		return false
	}
}

// IsKeepAlive reports whether the frame is a transport-level liveness frame
// that must never be relayed as application data.
func (f Frame) IsKeepAlive() bool {
	switch f.Type {
	case TypeKeepAlive, TypePing, TypePong:
		return true
	default:
		return false
	}
}
