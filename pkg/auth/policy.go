package auth

import (
	"fmt"
	"strings"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// ---------------------------------------------------------------------------
// Access requirements
// ---------------------------------------------------------------------------

// Access describes what a route requires from the caller.
type Access int

const (
	// AccessPublic routes require no credentials. A bearer token on a
	// public route is ignored, not validated.
	AccessPublic Access = iota

	// AccessAuthenticated routes require a valid token; any role set,
	// including an empty one, is sufficient.
	AccessAuthenticated

	// AccessAnyRole routes require a valid token holding at least one
	// of the rule's roles.
	AccessAnyRole
)

// String returns a human-readable name for logging.
func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAuthenticated:
		return "authenticated"
	case AccessAnyRole:
		return "any_role"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// ---------------------------------------------------------------------------
// Rule — a single (methods, pattern, requirement) entry
// ---------------------------------------------------------------------------

// Rule binds a path pattern (and optionally specific HTTP methods) to an
// access requirement. Patterns are either exact paths ("/users/me") or
// prefix patterns ending in "/**" ("/admin/**", which also matches
// "/admin" itself). An empty method list matches every method.
type Rule struct {
	Methods []string
	Pattern string
	Access  Access
	Roles   []string
}

// matches reports whether the rule applies to the given request.
func (r *Rule) matches(method, path string) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if prefix, ok := strings.CutSuffix(r.Pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == r.Pattern
}

// ---------------------------------------------------------------------------
// Policy — ordered rule table, first match wins
// ---------------------------------------------------------------------------

// Policy is an ordered route authorization table. Rules are evaluated in
// declaration order and the first matching rule decides; requests that
// match no rule fall back to requiring authentication, so forgetting a
// rule can never silently expose a route.
type Policy struct {
	rules []Rule
}

// NewPolicy creates a Policy from the given rules, evaluated in order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// PermitAll declares a public rule for the given pattern. If methods are
// given, the rule applies only to those methods.
func PermitAll(pattern string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: AccessPublic}
}

// RequireAuthenticated declares a rule requiring a valid token.
func RequireAuthenticated(pattern string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: AccessAuthenticated}
}

// RequireAnyRole declares a rule requiring a valid token holding at least
// one of the given roles. Role names may be given with or without the
// [RolePrefix].
func RequireAnyRole(pattern string, roles []string, methods ...string) Rule {
	return Rule{Methods: methods, Pattern: pattern, Access: AccessAnyRole, Roles: roles}
}

// Requirement returns the access requirement for the given request: the
// first matching rule's, or [AccessAuthenticated] when no rule matches.
func (p *Policy) Requirement(method, path string) Rule {
	for i := range p.rules {
		if p.rules[i].matches(method, path) {
			return p.rules[i]
		}
	}
	return Rule{Access: AccessAuthenticated}
}

// Decide evaluates the policy for the given request and principal. The
// principal is nil for unauthenticated requests. It returns nil when
// access is granted, an authentication error (401) when credentials are
// required but absent, and an authorization error (403) when the
// principal lacks a required role.
func (p *Policy) Decide(method, path string, principal *Principal) error {
	rule := p.Requirement(method, path)

	switch rule.Access {
	case AccessPublic:
		return nil
	case AccessAuthenticated:
		if principal == nil {
			return apperr.New(apperr.CodeAuthentication, "auth: authentication required")
		}
		return nil
	case AccessAnyRole:
		if principal == nil {
			return apperr.New(apperr.CodeAuthentication, "auth: authentication required")
		}
		if !principal.HasAnyRole(rule.Roles...) {
			return apperr.New(apperr.CodeAuthorizationRole,
				fmt.Sprintf("auth: access to %s requires one of roles %v", path, rule.Roles))
		}
		return nil
	default:
		return apperr.New(apperr.CodeAuthorization, "auth: access denied")
	}
}
