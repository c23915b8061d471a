// Package identity resolves session tokens to authenticated identities.
//
// The bridge itself never creates sessions; the identity provider does that
// elsewhere and this package only looks the resulting session token up.
// Two stores are provided: an in-memory store for tests and single-node
// development, and a Redis-backed store for deployments where sessions are
// shared across processes.
//
// A token that resolves to nothing is not an error: Lookup returns a nil
// Identity and the caller falls back to anonymous claims.
package identity
