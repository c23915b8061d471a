// Package config provides the immutable process configuration for gqlbridge.
//
// Configuration is constructed exactly once at process start and passed by
// reference into every session and bridge constructor; nothing mutates it
// afterwards. Sources, in increasing precedence:
//
//  1. built-in defaults (DefaultConfig)
//  2. an optional YAML file (Load)
//  3. GQLBRIDGE_* environment variables (ApplyEnv)
//
// Validate enforces the startup invariants: the upstream HTTP and WebSocket
// endpoints and the token-signing secret are required; a process without them
// can only close every new connection with 1011, so it refuses to start
// instead.
package config
