package auth

import (
	"context"
	"fmt"
	"time"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// ---------------------------------------------------------------------------
// TokenValidator — the top-level validation contract
// ---------------------------------------------------------------------------

// TokenValidator verifies a raw bearer token string and returns the
// [Token] it represents. Implementations must be safe for concurrent use.
type TokenValidator interface {
	// Validate verifies the token string. It returns a *[apperr.Error]
	// with an AUTH category code when the token is rejected.
	Validate(ctx context.Context, tokenStr string) (*Token, error)
}

// ---------------------------------------------------------------------------
// ClaimsValidator — composable claim checks over a verified token
// ---------------------------------------------------------------------------

// ClaimsValidator checks the claims of a signature-verified token.
// Implementations examine a single concern (issuer, validity window) and
// compose via [DelegatingClaimsValidator].
type ClaimsValidator interface {
	ValidateClaims(tok *Token) error
}

// DelegatingClaimsValidator runs a list of claim validators in order and
// fails on the first rejection. A token is accepted only when every
// delegate accepts it.
type DelegatingClaimsValidator struct {
	delegates []ClaimsValidator
}

// Compile-time assertion that DelegatingClaimsValidator is a ClaimsValidator.
var _ ClaimsValidator = (*DelegatingClaimsValidator)(nil)

// NewDelegatingClaimsValidator composes the given validators. Nil entries
// are skipped.
func NewDelegatingClaimsValidator(delegates ...ClaimsValidator) *DelegatingClaimsValidator {
	kept := make([]ClaimsValidator, 0, len(delegates))
	for _, d := range delegates {
		if d != nil {
			kept = append(kept, d)
		}
	}
	return &DelegatingClaimsValidator{delegates: kept}
}

// ValidateClaims runs each delegate in order, returning the first error.
func (v *DelegatingClaimsValidator) ValidateClaims(tok *Token) error {
	for _, d := range v.delegates {
		if err := d.ValidateClaims(tok); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// IssuerValidator — issuer allow-list
// ---------------------------------------------------------------------------

// IssuerValidator rejects tokens whose "iss" claim is not an exact,
// case-sensitive match of one of the allowed issuer values. Allowing
// multiple values supports development setups where the same realm is
// reached through different hostnames.
type IssuerValidator struct {
	Allowed []string
}

var _ ClaimsValidator = (*IssuerValidator)(nil)

// ValidateClaims checks the token's issuer against the allow-list.
func (v *IssuerValidator) ValidateClaims(tok *Token) error {
	for _, allowed := range v.Allowed {
		if tok.Issuer() == allowed {
			return nil
		}
	}
	return apperr.New(apperr.CodeAuthenticationInvalid,
		fmt.Sprintf("auth: unexpected issuer %q", tok.Issuer()))
}

// ---------------------------------------------------------------------------
// TimestampValidator — validity window with clock-skew tolerance
// ---------------------------------------------------------------------------

// TimestampValidator checks the token's validity window against the
// current time with a skew tolerance. A token is accepted while
// now <= exp + Skew and now >= iat - Skew; both boundaries are inclusive,
// so a token whose exp is exactly now + Skew still passes.
type TimestampValidator struct {
	// Skew is the tolerated clock difference between this service and
	// the identity provider.
	Skew time.Duration

	// Now overrides the time source for tests. Defaults to [time.Now].
	Now func() time.Time
}

var _ ClaimsValidator = (*TimestampValidator)(nil)

// ValidateClaims checks the expiry and issued-at claims.
func (v *TimestampValidator) ValidateClaims(tok *Token) error {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	if now.After(tok.ExpiresAt().Add(v.Skew)) {
		return apperr.New(apperr.CodeAuthenticationExpired, "auth: token has expired")
	}
	if !tok.IssuedAt().IsZero() && now.Before(tok.IssuedAt().Add(-v.Skew)) {
		return apperr.New(apperr.CodeAuthenticationInvalid, "auth: token is not yet valid")
	}
	return nil
}
