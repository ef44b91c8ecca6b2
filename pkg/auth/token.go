// Package auth provides the authentication and authorization core of the
// identity backend: bearer token validation against a Keycloak realm's
// published key set, claim-based role extraction, the per-route
// authorization policy, and the HTTP middleware that enforces it.
//
// Validation is a pure function of (token, current time, key set, issuer
// allow-list). The validated [Token] is immutable, never persisted, and
// lives only for the duration of request processing.
package auth

import (
	"time"
)

// Secret is a string type that redacts its value in String(), GoString(),
// and MarshalText() to prevent accidental exposure in logs, JSON output,
// or fmt.Printf. The actual value is only accessible via [Secret.Value].
type Secret string

// secretRedacted is the placeholder shown instead of the actual secret
// value when the secret is printed, formatted, or serialized.
const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, covering fmt.Printf("%#v", s).
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string. Call this only where the raw
// value is truly needed (e.g., an HTTP basic credential).
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder so the secret never leaks into serialized output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Token is the immutable result of verifying a bearer token. It carries
// the identity-provider subject, the standard profile claims the backend
// consumes, the token validity window, and the full claim map for role
// extraction.
//
// A Token is never persisted; it exists only for the duration of request
// processing. Token is safe for concurrent use.
type Token struct {
	subject           string
	issuer            string
	email             string
	name              string
	preferredUsername string
	issuedAt          time.Time
	expiresAt         time.Time
	claims            map[string]any
}

// NewToken constructs a Token from verified claim values. The claims map
// is defensively copied.
func NewToken(subject, issuer string, issuedAt, expiresAt time.Time, claims map[string]any) *Token {
	copied := make(map[string]any, len(claims))
	for k, v := range claims {
		copied[k] = v
	}
	t := &Token{
		subject:   subject,
		issuer:    issuer,
		issuedAt:  issuedAt,
		expiresAt: expiresAt,
		claims:    copied,
	}
	t.email, _ = copied["email"].(string)
	t.name, _ = copied["name"].(string)
	t.preferredUsername, _ = copied["preferred_username"].(string)
	return t
}

// Subject returns the identity provider's stable identifier for the user
// (the "sub" claim). This is the external id bound to local user records.
func (t *Token) Subject() string { return t.subject }

// Issuer returns the realm URI that minted the token (the "iss" claim).
func (t *Token) Issuer() string { return t.issuer }

// Email returns the "email" claim, or an empty string if absent.
func (t *Token) Email() string { return t.email }

// Name returns the "name" claim, or an empty string if absent.
func (t *Token) Name() string { return t.name }

// PreferredUsername returns the "preferred_username" claim, or an empty
// string if absent.
func (t *Token) PreferredUsername() string { return t.preferredUsername }

// IssuedAt returns the token's "iat" timestamp.
func (t *Token) IssuedAt() time.Time { return t.issuedAt }

// ExpiresAt returns the token's "exp" timestamp.
func (t *Token) ExpiresAt() time.Time { return t.expiresAt }

// Claims returns a shallow copy of the token's claim map. Each call
// returns a new map, so callers may safely modify the result.
func (t *Token) Claims() map[string]any {
	copied := make(map[string]any, len(t.claims))
	for k, v := range t.claims {
		copied[k] = v
	}
	return copied
}

// Claim returns the raw claim value for the given name, or nil if the
// claim is absent. The claim shapes from the identity provider are
// untyped nested structures; callers must type-check the result.
func (t *Token) Claim(name string) any {
	return t.claims[name]
}
