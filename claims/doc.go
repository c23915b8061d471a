// Package claims derives the authorization-claims object attached to every
// connection and request crossing the bridge.
//
// Resolution priority, per connection:
//
//  1. a bearer token that verifies and embeds a complete claims object is
//     used unmodified;
//  2. otherwise a resolvable session identity (identity.Store) is expanded
//     into role-based claims;
//  3. otherwise a fresh anonymous identity is synthesized.
//
// A Claims value is generated fresh per connection and never mutated after
// creation; re-authentication replaces it wholesale.
//
// When the upstream engine expects a signed token rather than raw claims,
// the resolver mints a short-lived HMAC-signed JWT embedding the subject and
// the claims under the configured namespace key (Hasura-compatible by
// default). Signing-key misconfiguration is fatal for the connection.
package claims
