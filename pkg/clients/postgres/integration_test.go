//go:build integration

// Package postgres_test contains integration tests for the PostgreSQL client
// that require a running PostgreSQL instance. These tests are gated behind the
// "integration" build tag and are executed in CI with Docker via testcontainers.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/clients/postgres/...
package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/benseddik/idp-backend/internal/testutil/containers"
	"github.com/benseddik/idp-backend/pkg/clients/postgres"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// setupContainer starts a PostgreSQL 16 container and returns a connected
// Client. The container and client are cleaned up automatically when the
// test completes.
func setupContainer(t *testing.T) *postgres.Client {
	t.Helper()

	ctx := context.Background()

	result, err := containers.StartPostgres(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := result.Container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate postgres container: %v", termErr)
		}
	})

	cfg := postgres.Config{
		URI:      result.ConnString,
		MaxConns: 5,
		MinConns: 1,
	}
	if valErr := cfg.Validate(); valErr != nil {
		t.Fatalf("failed to validate config: %v", valErr)
	}

	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// createAccountsTable creates a scratch table mirroring the app_user
// uniqueness constraints.
func createAccountsTable(t *testing.T, client *postgres.Client) {
	t.Helper()
	_, err := client.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS test_accounts (
			id SERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			external_id TEXT,
			CONSTRAINT uq_test_accounts_email UNIQUE (email)
		)`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
}

// ===========================================================================
// Connection Tests
// ===========================================================================

func TestIntegration_NewClient_ConnectsSuccessfully(t *testing.T) {
	client := setupContainer(t)
	if client == nil {
		t.Fatal("setupContainer returned nil client")
	}
}

func TestIntegration_Health_ReturnsNil(t *testing.T) {
	client := setupContainer(t)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
}

// ===========================================================================
// Query Tests
// ===========================================================================

func TestIntegration_QueryRow_Scan(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()

	var result int
	row := client.QueryRow(ctx, "SELECT 42")
	if err := row.Scan(&result); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if result != 42 {
		t.Errorf("got %d, want 42", result)
	}
}

func TestIntegration_Query_MultipleRows(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()
	createAccountsTable(t, client)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := client.Exec(ctx,
			"INSERT INTO test_accounts (email) VALUES ($1)", email); err != nil {
			t.Fatalf("Exec() insert error: %v", err)
		}
	}

	rows, err := client.Query(ctx, "SELECT email FROM test_accounts ORDER BY email")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var email string
		if scanErr := rows.Scan(&email); scanErr != nil {
			t.Fatalf("Scan() error: %v", scanErr)
		}
		count++
	}
	if count != 3 {
		t.Errorf("got %d rows, want 3", count)
	}
}

func TestIntegration_QueryRow_NoRows(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()
	createAccountsTable(t, client)

	var email string
	row := client.QueryRow(ctx,
		"SELECT email FROM test_accounts WHERE email = $1", "ghost@example.com")
	err := row.Scan(&email)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("got %v, want pgx.ErrNoRows", err)
	}
}

// ===========================================================================
// Constraint Tests
// ===========================================================================

func TestIntegration_Exec_UniqueViolation(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()
	createAccountsTable(t, client)

	if _, err := client.Exec(ctx,
		"INSERT INTO test_accounts (email) VALUES ($1)", "dup@example.com"); err != nil {
		t.Fatalf("Exec() first insert error: %v", err)
	}

	_, err := client.Exec(ctx,
		"INSERT INTO test_accounts (email) VALUES ($1)", "dup@example.com")
	if err == nil {
		t.Fatal("expected unique violation, got nil")
	}
	if !postgres.IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation() = false for %v", err)
	}
	wrapped := postgres.WrapError(err, "insert failed")
	if wrapped.Code != apperr.CodeConflictDuplicate {
		t.Errorf("got code %q, want %q", wrapped.Code, apperr.CodeConflictDuplicate)
	}
}

// ===========================================================================
// Transaction Tests
// ===========================================================================

func TestIntegration_Begin_CommitAndRollback(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()
	createAccountsTable(t, client)

	tx, err := client.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if _, err = tx.Exec(ctx,
		"INSERT INTO test_accounts (email) VALUES ($1)", "committed@example.com"); err != nil {
		t.Fatalf("tx.Exec() error: %v", err)
	}
	if err = tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	tx, err = client.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if _, err = tx.Exec(ctx,
		"INSERT INTO test_accounts (email) VALUES ($1)", "rolledback@example.com"); err != nil {
		t.Fatalf("tx.Exec() error: %v", err)
	}
	if err = tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}

	var count int
	row := client.QueryRow(ctx, "SELECT count(*) FROM test_accounts WHERE email LIKE '%@example.com'")
	if err = row.Scan(&count); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows after rollback, want 1", count)
	}
}

// ===========================================================================
// Timeout Tests
// ===========================================================================

func TestIntegration_Query_ContextTimeout(t *testing.T) {
	client := setupContainer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	_, err := client.Query(ctx, "SELECT pg_sleep(5)")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if got := apperr.GetCode(err); got != apperr.CodeTimeoutDatabase {
		t.Errorf("got code %q, want %q", got, apperr.CodeTimeoutDatabase)
	}
}
