package user

import (
	"context"
	"log/slog"

	"github.com/benseddik/idp-backend/pkg/auth"
)

// Auditor resolves the identity recorded in audit columns for the
// current request. Resolution never fails and never creates rows: an
// unresolvable identity degrades to [SystemAuditor] so background tasks
// and half-provisioned identities still produce auditable writes.
type Auditor struct {
	repo   *Repository
	logger *slog.Logger
}

// NewAuditor creates an Auditor over the given repository.
func NewAuditor(repo *Repository, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{repo: repo, logger: logger}
}

// CurrentAuditor returns the audit identity for the request context: the
// id of the local row linked to the authenticated subject, or
// [SystemAuditor] when there is no authenticated identity or no linked
// row yet.
func (a *Auditor) CurrentAuditor(ctx context.Context) string {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok || principal.Token == nil || principal.Token.Subject() == "" {
		return SystemAuditor
	}

	u, err := a.repo.FindByExternalID(ctx, principal.Token.Subject())
	if err != nil {
		// Lookup failures degrade to the system identity rather than
		// blocking the write being audited.
		a.logger.Debug("audit identity lookup failed",
			"subject", principal.Token.Subject(), "error", err)
		return SystemAuditor
	}
	return u.ID.String()
}
