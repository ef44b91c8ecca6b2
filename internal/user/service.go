package user

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/benseddik/idp-backend/pkg/auth"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// Provider is the identity-provider surface the service needs. It is
// satisfied by the Keycloak admin client and by test doubles.
type Provider interface {
	// FindUserIDByEmail returns the provider-side id of the account with
	// the given email, or an error with [apperr.CodeNotFoundUser] when
	// no such account exists.
	FindUserIDByEmail(ctx context.Context, email string) (string, error)

	// CreateUser provisions an enabled account with a permanent
	// password and returns its provider-side id.
	CreateUser(ctx context.Context, email, firstName, lastName, password string) (string, error)

	// AssignRealmRole grants a realm role to the account. Failures are
	// reported but registration does not depend on them.
	AssignRealmRole(ctx context.Context, userID, role string) error

	// DeleteUser removes the account. A missing account is not an
	// error.
	DeleteUser(ctx context.Context, userID string) error
}

// RegisterInput is the payload for account registration.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateProfileInput carries the mutable profile fields for
// [Service.UpdateCurrentUser]. Blank fields are ignored; only non-blank
// values are applied, after trimming.
type UpdateProfileInput struct {
	DisplayName string
	PhoneNumber string
	PhotoURL    string
}

// Service reconciles authenticated identities with local rows and
// manages profile state. It is the only writer of app_user rows in the
// request path.
type Service struct {
	repo     *Repository
	provider Provider
	auditor  *Auditor
	logger   *slog.Logger
}

// NewService creates a Service. provider may be nil when registration
// and account deletion are not wired (the reconciliation path does not
// touch the identity provider).
func NewService(repo *Repository, provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		provider: provider,
		auditor:  NewAuditor(repo, logger),
		logger:   logger,
	}
}

// EnsureCurrentUser returns the local row for the authenticated
// identity, creating or linking it as needed.
//
// Resolution order:
//  1. by external id (the token subject)
//  2. by email; when found the external id is linked and persisted
//  3. create, with the display name falling back to the email
//
// Two replicas racing on first sign-in can both reach the create step;
// the loser hits the unique constraint and retries the lookup once
// instead of surfacing the conflict.
func (s *Service) EnsureCurrentUser(ctx context.Context) (*User, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok || principal.Token == nil {
		return nil, apperr.New(apperr.CodeAuthentication,
			"no authenticated identity in request context")
	}
	tok := principal.Token

	u, err := s.resolve(ctx, tok.Subject(), tok.Email())
	if err == nil {
		return u, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	created, err := s.create(ctx, tok.Subject(), tok.Email(), tok.Name())
	if err == nil {
		s.logger.Info("provisioned local user",
			"user_id", created.ID, "subject", tok.Subject())
		return created, nil
	}
	if apperr.HasCode(err, apperr.CodeConflictDuplicate) {
		// Lost the race: the row exists now.
		return s.resolve(ctx, tok.Subject(), tok.Email())
	}
	return nil, err
}

// resolve finds the row by external id, then by email (linking the
// external id when the email path wins).
func (s *Service) resolve(ctx context.Context, subject, email string) (*User, error) {
	u, err := s.repo.FindByExternalID(ctx, subject)
	if err == nil {
		return u, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	if email == "" {
		return nil, err
	}

	u, err = s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.ExternalID == nil || *u.ExternalID != subject {
		linked := subject
		u.ExternalID = &linked
		u.ModifiedBy = s.auditor.CurrentAuditor(ctx)
		updated, err := s.repo.Update(ctx, u)
		if err != nil {
			return nil, err
		}
		s.logger.Info("linked external id to existing user",
			"user_id", updated.ID, "subject", subject)
		return updated, nil
	}
	return u, nil
}

// create inserts the local row for a first sign-in.
func (s *Service) create(ctx context.Context, subject, email, name string) (*User, error) {
	if email == "" {
		return nil, apperr.New(apperr.CodeValidationRequired,
			"token carries no email claim")
	}
	displayName := strings.TrimSpace(name)
	if displayName == "" {
		displayName = email
	}
	externalID := subject
	return s.repo.Create(ctx, &User{
		Email:       strings.ToLower(email),
		DisplayName: displayName,
		ExternalID:  &externalID,
		// The row does not exist yet, so the audit identity resolves
		// to the system account on first sign-in.
		CreatedBy: s.auditor.CurrentAuditor(ctx),
	})
}

// UpdateCurrentUser applies non-blank profile fields to the current
// user's row. It returns the stored row unchanged when nothing differs.
func (s *Service) UpdateCurrentUser(ctx context.Context, in UpdateProfileInput) (*User, error) {
	u, err := s.EnsureCurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	changed := false
	if v := strings.TrimSpace(in.DisplayName); v != "" && v != u.DisplayName {
		u.DisplayName = v
		changed = true
	}
	if v := strings.TrimSpace(in.PhoneNumber); v != "" && v != u.PhoneNumber {
		u.PhoneNumber = v
		changed = true
	}
	if v := strings.TrimSpace(in.PhotoURL); v != "" && v != u.PhotoURL {
		u.PhotoURL = v
		changed = true
	}
	if !changed {
		return u, nil
	}

	u.ModifiedBy = s.auditor.CurrentAuditor(ctx)
	return s.repo.Update(ctx, u)
}

// DeleteCurrentUser removes the current user's provider account and
// local row. A provider account that is already gone does not block the
// local deletion.
func (s *Service) DeleteCurrentUser(ctx context.Context) error {
	u, err := s.EnsureCurrentUser(ctx)
	if err != nil {
		return err
	}

	if s.provider != nil && u.HasExternalID() {
		if err := s.provider.DeleteUser(ctx, *u.ExternalID); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.logger.Info("deleted user account", "user_id", u.ID)
	return nil
}

// Register provisions a new account in the identity provider and mirrors
// it locally. The USER realm role grant is best-effort; a failure there
// is logged but does not fail the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, apperr.New(apperr.CodeInternalConfiguration,
			"registration requires an identity provider client")
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.provider.FindUserIDByEmail(ctx, email); err == nil {
		return nil, apperr.New(apperr.CodeConflictDuplicate,
			"an account with this email already exists")
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}
	if exists, err := s.repo.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if exists {
		return nil, apperr.New(apperr.CodeConflictDuplicate,
			"an account with this email already exists")
	}

	externalID, err := s.provider.CreateUser(ctx, email,
		strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), in.Password)
	if err != nil {
		return nil, err
	}

	if err := s.provider.AssignRealmRole(ctx, externalID, "USER"); err != nil {
		s.logger.Warn("failed to assign realm role to new account",
			"subject", externalID, "error", err)
	}

	created, err := s.repo.Create(ctx, &User{
		Email:       email,
		DisplayName: strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName),
		ExternalID:  &externalID,
		CreatedBy:   s.auditor.CurrentAuditor(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registered new account", "user_id", created.ID)
	return created, nil
}

// validateRegistration checks the registration payload and collects all
// field failures into a single validation error.
func validateRegistration(in RegisterInput) error {
	var fields []apperr.FieldError

	email := strings.TrimSpace(in.Email)
	if email == "" {
		fields = append(fields, apperr.FieldError{
			EntityName: "registerRequest", FieldName: "email",
			Message: "must not be blank", Code: "NotBlank",
		})
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields = append(fields, apperr.FieldError{
			EntityName: "registerRequest", FieldName: "email",
			Message: "must be a well-formed email address", Code: "Email",
		})
	}

	if utf8.RuneCountInString(in.Password) < 8 {
		fields = append(fields, apperr.FieldError{
			EntityName: "registerRequest", FieldName: "password",
			Message: "size must be between 8 and 2147483647", Code: "Size",
		})
	}

	for field, value := range map[string]string{
		"firstName": in.FirstName,
		"lastName":  in.LastName,
	} {
		n := utf8.RuneCountInString(strings.TrimSpace(value))
		if n < 2 || n > 50 {
			fields = append(fields, apperr.FieldError{
				EntityName: "registerRequest", FieldName: field,
				Message: "size must be between 2 and 50", Code: "Size",
			})
		}
	}

	if len(fields) > 0 {
		return apperr.New(apperr.CodeValidation, "invalid registration payload").
			WithFields(fields...)
	}
	return nil
}
