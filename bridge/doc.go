// Package bridge implements the per-connection protocol state machine at the
// core of gqlbridge.
//
// Each accepted WebSocket becomes one ClientSession owning exactly one
// UpstreamBridge. The session runs as a single actor goroutine fed by
// transport-event channels from the two read pumps, so all routing decisions
// and state transitions for a connection pair are serialized without
// callback-captured mutable state. Nothing in this package is shared between
// sessions except the read-only process configuration.
//
// The load-bearing invariant is per-connection frame ordering: operation
// frames arriving before the upstream connection_ack are captured in an
// ordered queue and flushed strictly in arrival order the moment the ack
// lands, before any fresh frame may pass.
package bridge
