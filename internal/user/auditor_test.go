package user

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benseddik/idp-backend/pkg/clients/postgres"
)

func newAuditorMock(t *testing.T) (*Auditor, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewAuditor(NewRepository(postgres.NewFromPool(mockPool, nil)), nil), mockPool
}

func TestCurrentAuditor_NoPrincipal(t *testing.T) {
	t.Parallel()

	auditor, _ := newAuditorMock(t)

	assert.Equal(t, SystemAuditor, auditor.CurrentAuditor(context.Background()))
}

func TestCurrentAuditor_ResolvesLocalUserID(t *testing.T) {
	t.Parallel()

	auditor, mockPool := newAuditorMock(t)
	stored := userTestFixture()
	mockPool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs(*stored.ExternalID).
		WillReturnRows(userTestRow(stored))

	got := auditor.CurrentAuditor(
		authedContext(*stored.ExternalID, stored.Email, stored.DisplayName))

	assert.Equal(t, stored.ID.String(), got)
	assert.NotEqual(t, stored.Email, got)
}

func TestCurrentAuditor_UnknownSubjectDegradesToSystem(t *testing.T) {
	t.Parallel()

	auditor, mockPool := newAuditorMock(t)
	mockPool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("never-signed-in").
		WillReturnRows(pgxmock.NewRows(userTestColumns))

	got := auditor.CurrentAuditor(
		authedContext("never-signed-in", "ghost@example.com", "Ghost"))

	assert.Equal(t, SystemAuditor, got)
}

func TestCurrentAuditor_LookupErrorDegradesToSystem(t *testing.T) {
	t.Parallel()

	auditor, mockPool := newAuditorMock(t)
	mockPool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("some-subject").
		WillReturnError(errors.New("connection reset"))

	got := auditor.CurrentAuditor(
		authedContext("some-subject", "jane.doe@example.com", "Jane"))

	assert.Equal(t, SystemAuditor, got)
}
