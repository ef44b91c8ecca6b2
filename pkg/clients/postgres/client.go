// Package postgres provides the PostgreSQL client used by the identity
// backend, with connection pooling, OpenTelemetry tracing, and structured
// error classification.
//
// The client uses pgxpool for connection pooling; failed connections are
// replaced automatically and the health check period keeps the pool
// healthy, so callers do not implement their own retry logic for
// connection-level errors.
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromPool] to inject a mock pool:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
//
// All database operations create OpenTelemetry spans with standard
// database semantic attributes (db.system, db.name, db.statement). SQL
// statements are truncated in spans to prevent sensitive data leakage.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/benseddik/idp-backend/pkg/clients/postgres"

// uniqueViolationCode is the PostgreSQL SQLSTATE for unique constraint
// violations, surfaced by the user repository as duplicate conflicts.
const uniqueViolationCode = "23505"

// Pool defines the interface for PostgreSQL connection pool operations.
// This interface is satisfied by [*pgxpool.Pool] and by mock
// implementations such as pgxmock for unit testing. It enables dependency
// injection via [NewFromPool] for testing without a real database.
type Pool interface {
	// Query executes a SQL query that returns rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow executes a SQL query that returns at most one row.
	// Errors are deferred until the returned pgx.Row is scanned.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Exec executes a SQL statement that does not return rows
	// (INSERT, UPDATE, DELETE, DDL).
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Begin starts a new database transaction.
	Begin(ctx context.Context) (pgx.Tx, error)

	// Ping verifies the connection to the database is alive.
	Ping(ctx context.Context) error

	// Close releases all pool resources. After Close is called,
	// the pool must not be used.
	Close()
}

// Compile-time interface compliance check.
var _ Pool = (*pgxpool.Pool)(nil)

// Client is a PostgreSQL client wrapping a [Pool] (typically
// [*pgxpool.Pool]) that adds tracing and error classification
// transparently to all database operations.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per database and share it across the application.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient creates a new PostgreSQL client with connection pooling. It
// validates the configuration, establishes the connection pool, and
// verifies connectivity with a ping.
//
// The caller must call [Client.Close] when the client is no longer needed
// to release pool resources.
//
// Error codes returned:
//   - [apperr.CodeValidation]: invalid configuration
//   - [apperr.CodeUnavailableDependency]: cannot connect to the database
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation,
			"postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation,
			"postgres: failed to parse connection string")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}

	// Verify connectivity before returning the client.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}

	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: dbName,
	}, nil
}

// NewFromPool creates a Client with a pre-existing [Pool]. This
// constructor is intended for testing with mock pools (e.g., pgxmock).
//
// The cfg parameter is stored but not validated; pass nil for a
// zero-value config in tests.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}
}

// Query executes a SQL query that returns rows, with OpenTelemetry
// tracing. The returned [pgx.Rows] must be closed by the caller when done.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: query failed")
	}
	// End span without error; row-level errors surface during iteration.
	finishSpan(span, nil)
	return rows, nil
}

// QueryRow executes a SQL query that returns at most one row, with
// OpenTelemetry tracing. The returned [pgx.Row] is never nil; errors are
// deferred until Scan() is called on the returned row.
//
// Because pgx defers errors to Scan(), the span covers only the query
// execution; scan-time errors must be classified by the caller (see
// [WrapError]).
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a SQL statement that does not return rows (INSERT,
// UPDATE, DELETE, DDL), with OpenTelemetry tracing.
//
// Returns the command tag (e.g., "INSERT 0 1") and a [*apperr.Error] on
// failure.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Begin starts a new database transaction with OpenTelemetry tracing.
//
// Callers must ensure the transaction is either committed or rolled back.
// Using defer tx.Rollback(ctx) immediately after Begin is the recommended
// pattern, as Rollback on an already-committed transaction is a no-op in
// pgx.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := c.startSpan(ctx, "Begin", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: begin transaction failed")
	}
	return tx, nil
}

// Health verifies that the database connection is alive by executing a
// ping. It applies [DefaultHealthTimeout] if the provided context has no
// deadline.
//
// Returns nil if the database is reachable, or a [*apperr.Error] with
// code [apperr.CodeUnavailableDependency] if the ping fails. This method
// is designed for use with health check endpoints and readiness probes.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases all connection pool resources. After Close is called,
// the client must not be used. Close is safe to call multiple times.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying [Pool] interface for advanced use cases
// not covered by the Client's methods (e.g., CopyFrom, SendBatch).
//
// The returned Pool should not be closed directly; use [Client.Close]
// instead.
func (c *Client) Pool() Pool {
	return c.pool
}

// startSpan creates a new OpenTelemetry span with standard database
// semantic attributes.
func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. If err is
// nil, the span status is set to OK.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// IsUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation. The identity reconciler uses this to detect a
// concurrent insert of the same user and fall back to re-reading.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// WrapError converts a database error to a [*apperr.Error] with an
// appropriate error code. Unique violations map to
// [apperr.CodeConflictDuplicate], timeouts and cancellations to
// [apperr.CodeTimeoutDatabase], and everything else to
// [apperr.CodeInternalDatabase]. Exported for repositories that scan
// rows directly and need consistent classification.
func WrapError(err error, message string) *apperr.Error {
	return wrapError(err, message)
}

func wrapError(err error, message string) *apperr.Error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return apperr.Wrap(err, apperr.CodeConflictDuplicate, message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.CodeTimeoutDatabase, message)
	}
	return apperr.Wrap(err, apperr.CodeInternalDatabase, message)
}
