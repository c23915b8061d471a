// Package protocol defines the wire-level frame model shared by both sides
// of the bridge.
//
// Realtime GraphQL has two incompatible subprotocol dialects:
//
//   - legacy "graphql-ws" (subscriptions-transport-ws): start/data/stop,
//     keep-alive ("ka") and connection_error frames
//   - modern "graphql-transport-ws": subscribe/next/complete plus ping/pong
//
// The same JSON message must be reinterpretable as either dialect depending
// on which side it is headed toward, so Frame keeps the payload opaque
// (json.RawMessage) and Translate only ever rewrites the type tag.
//
// The package also owns close-code sanitization: every close initiated by the
// bridge, in either direction, must carry a code that is legal for the
// underlying WebSocket transport ([1000,4999] excluding the reserved
// 1005/1006/1015 values).
package protocol
