package claims

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/identity"
)

// Well-known role names.
const (
	RoleAnonymous = "anonymous"
	RoleMe        = "me"
)

// Upstream claim keys (Hasura-compatible).
const (
	KeyAllowedRoles = "x-hasura-allowed-roles"
	KeyDefaultRole  = "x-hasura-default-role"
	KeyUserID       = "x-hasura-user-id"
)

// Claims is the authorization payload for one connection or request.
// Invariant: DefaultRole is a member of AllowedRoles. Values are never
// mutated after creation; a new Claims replaces the old one on
// re-authentication.
type Claims struct {
	Subject      string
	DefaultRole  string
	AllowedRoles []string
	// Extra carries additional upstream claim fields verbatim.
	Extra map[string]string
}

// Validate checks the claims invariants.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return errors.WrapInvalid(errors.ErrClaimsInvalid, "Claims", "Validate",
			"subject is empty")
	}
	if c.DefaultRole == "" {
		return errors.WrapInvalid(errors.ErrClaimsInvalid, "Claims", "Validate",
			"default role is empty")
	}
	if len(c.AllowedRoles) == 0 {
		return errors.WrapInvalid(errors.ErrClaimsInvalid, "Claims", "Validate",
			"allowed roles is empty")
	}
	if !c.HasRole(c.DefaultRole) {
		return errors.WrapInvalid(errors.ErrClaimsInvalid, "Claims", "Validate",
			fmt.Sprintf("default role %q not in allowed roles %v", c.DefaultRole, c.AllowedRoles))
	}
	return nil
}

// HasRole reports whether role is in the allowed set.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ForIdentity synthesizes claims for an authenticated session identity:
// default role is the identity's role, and the allowed set is
// {role, "me", "anonymous"} (the anonymous role is omitted when the identity
// itself is anonymous).
func ForIdentity(id identity.Identity) *Claims {
	role := id.Role
	if role == "" {
		role = RoleAnonymous
	}

	allowed := []string{role}
	if role != RoleMe {
		allowed = append(allowed, RoleMe)
	}
	if role != RoleAnonymous {
		allowed = append(allowed, RoleAnonymous)
	}

	return &Claims{
		Subject:      id.Subject,
		DefaultRole:  role,
		AllowedRoles: allowed,
	}
}

// Anonymous synthesizes a fresh anonymous identity with a unique
// per-connection synthetic subject.
func Anonymous() *Claims {
	return &Claims{
		Subject:      "anonymous-" + uuid.NewString(),
		DefaultRole:  RoleAnonymous,
		AllowedRoles: []string{RoleAnonymous},
	}
}
