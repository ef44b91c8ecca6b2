package auth

import (
	"context"
)

// contextKey is an unexported type used for context keys in this package.
// Using a distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// principalKey stores the authenticated Principal in the context.
	principalKey contextKey = iota
)

// Principal is the authenticated caller of a request: the validated token
// plus the application roles extracted from its claims. A Principal is
// attached to the request context by the authentication middleware and
// consumed by handlers and the identity reconciler.
type Principal struct {
	Token *Token
	Roles []string
}

// HasRole reports whether the principal holds the given role. Names may
// be given with or without the [RolePrefix].
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	want := role
	if !hasRolePrefix(want) {
		want = RolePrefix + want
	}
	for _, r := range p.Roles {
		if r == want {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the
// given roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

func hasRolePrefix(role string) bool {
	return len(role) >= len(RolePrefix) && role[:len(RolePrefix)] == RolePrefix
}

// ContextWithPrincipal returns a new context with the given Principal
// attached. The principal can later be retrieved with
// [PrincipalFromContext].
//
// This is called by the authentication middleware after successfully
// validating a bearer token.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the Principal from the context.
// Returns the principal and true if present, or nil and false if no
// principal has been set. This function never returns a non-nil principal
// with false.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// MustPrincipalFromContext retrieves the Principal from the context,
// panicking if none is present. This should only be used in code paths
// where a principal is guaranteed to exist (e.g., handlers behind the
// authentication middleware).
func MustPrincipalFromContext(ctx context.Context) *Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("auth: no principal in context; ensure authentication middleware is configured")
	}
	return p
}
