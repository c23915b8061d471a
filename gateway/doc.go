// Package gateway exposes the bridge over HTTP: it upgrades realtime
// connections to WebSocket sessions, relays plain GraphQL POST requests to
// the upstream engine with resolved credentials attached, and serves the
// health, metrics, and playground endpoints.
package gateway
