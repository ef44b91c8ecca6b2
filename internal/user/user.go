// Package user implements the application's local identity store: the
// User model, its Postgres repository, the reconciliation service that
// mirrors authenticated Keycloak identities into local rows, and the
// audit identity resolver.
//
// The local row is the anchor for everything the identity provider does
// not own: profile photo URLs, phone numbers, and audit columns. Rows
// are created lazily the first time an authenticated identity calls an
// endpoint that needs one (see [Service.EnsureCurrentUser]).
package user

import (
	"time"

	"github.com/google/uuid"
)

// SystemAuditor is the audit identity recorded for writes that happen
// outside a user request (startup tasks, reconciliation fallbacks).
const SystemAuditor = "system"

// User is a local identity row mirroring a Keycloak account.
//
// ExternalID is the Keycloak subject (the token's sub claim). It is nil
// for rows created before their owner ever signed in, for example rows
// seeded by an import; the reconciler links it on first sign-in.
type User struct {
	// ID is the local primary key.
	ID uuid.UUID

	// Email is the unique account email, stored lowercase.
	Email string

	// DisplayName is the profile display name. Falls back to the email
	// when the identity provider supplies no name.
	DisplayName string

	// PhoneNumber is the optional profile phone number.
	PhoneNumber string

	// ExternalID is the Keycloak subject linked to this row, if any.
	ExternalID *string

	// PhotoURL is the public URL of the profile photo, if one was
	// uploaded.
	PhotoURL string

	// Audit columns.
	CreatedBy  string
	CreatedAt  time.Time
	ModifiedBy string
	ModifiedAt time.Time
}

// HasExternalID reports whether the row is linked to a Keycloak subject.
func (u *User) HasExternalID() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}
