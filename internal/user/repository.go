package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benseddik/idp-backend/pkg/clients/postgres"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// userColumns is the column list shared by all row-returning queries, in
// scanUser order.
const userColumns = `id, email, display_name, phone_number, external_id, photo_url,
	created_by, created_at, modified_by, modified_at`

// Repository provides access to app_user rows. All errors are returned
// as [*apperr.Error]: missing rows map to [apperr.CodeNotFoundUser],
// unique violations to [apperr.CodeConflictDuplicate], and everything
// else through the postgres client's classification.
type Repository struct {
	db *postgres.Client
}

// NewRepository creates a Repository backed by the given postgres client.
func NewRepository(db *postgres.Client) *Repository {
	return &Repository{db: db}
}

// FindByID returns the user with the given primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, id)
	return scanUser(row)
}

// FindByExternalID returns the user linked to the given Keycloak
// subject.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE external_id = $1`, externalID)
	return scanUser(row)
}

// FindByEmail returns the user with the given email. The lookup is
// case-insensitive; emails are stored lowercase.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE email = lower($1)`, email)
	return scanUser(row)
}

// ExistsByEmail reports whether a user with the given email exists.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM app_user WHERE email = lower($1))`, email)
	if err := row.Scan(&exists); err != nil {
		return false, postgres.WrapError(err, "user: exists by email failed")
	}
	return exists, nil
}

// Create inserts a new user row and returns it with the
// database-assigned audit timestamps. A duplicate email or external id
// yields [apperr.CodeConflictDuplicate].
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO app_user
		   (id, email, display_name, phone_number, external_id, photo_url,
		    created_by, created_at, modified_by, modified_at)
		 VALUES ($1, lower($2), $3, $4, $5, $6, $7, now(), $7, now())
		 RETURNING `+userColumns,
		u.ID, u.Email, u.DisplayName, u.PhoneNumber, u.ExternalID,
		u.PhotoURL, u.CreatedBy)
	return scanUser(row)
}

// Update persists mutable profile fields and refreshes the modified
// audit columns. The created columns are never touched.
func (r *Repository) Update(ctx context.Context, u *User) (*User, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE app_user
		    SET display_name = $2,
		        phone_number = $3,
		        external_id = $4,
		        photo_url = $5,
		        modified_by = $6,
		        modified_at = now()
		  WHERE id = $1
		 RETURNING `+userColumns,
		u.ID, u.DisplayName, u.PhoneNumber, u.ExternalID, u.PhotoURL,
		u.ModifiedBy)
	return scanUser(row)
}

// Delete removes the user row. Deleting a missing row yields
// [apperr.CodeNotFoundUser].
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return postgres.WrapError(err, "user: delete failed")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeNotFoundUser, "user not found")
	}
	return nil
}

// scanUser scans a single app_user row. pgx.ErrNoRows is translated to
// [apperr.CodeNotFoundUser] so callers can branch with
// [apperr.IsNotFound].
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhoneNumber, &u.ExternalID,
		&u.PhotoURL, &u.CreatedBy, &u.CreatedAt, &u.ModifiedBy,
		&u.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFoundUser, "user not found")
		}
		return nil, postgres.WrapError(err, "user: row scan failed")
	}
	return &u, nil
}
