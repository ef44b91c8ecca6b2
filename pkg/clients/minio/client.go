// Package minio provides the S3-compatible object storage client backing
// the image service, with OpenTelemetry tracing and structured error
// classification.
//
// The MinIO client uses stateless HTTP connections; there is no
// connection pool to manage and the client is safe for concurrent use.
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := minio.DefaultConfig()
//	cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
//	cfg.SecretKey = minio.Secret(os.Getenv("MINIO_SECRET_KEY"))
//	client, err := minio.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For testing, use [NewFromStore] to inject a mock store.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/benseddik/idp-backend/pkg/clients/minio"

// ObjectStore defines the interface for the object storage operations the
// image service needs. It is satisfied by [*minio.Client] and by mock
// implementations for unit testing, enabling dependency injection via
// [NewFromStore] without a real MinIO server.
type ObjectStore interface {
	// PutObject uploads an object to a bucket.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)

	// GetObject retrieves an object from a bucket. The returned
	// *minio.Object implements io.ReadCloser and must be closed by the
	// caller.
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)

	// RemoveObject deletes an object from a bucket.
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error

	// StatObject retrieves metadata about an object without downloading
	// it.
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)

	// BucketExists checks whether a bucket exists on the server.
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// MakeBucket creates a new bucket with the given name and options.
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Compile-time interface compliance check.
var _ ObjectStore = (*minio.Client)(nil)

// Client is an object storage client wrapping an [ObjectStore] (typically
// [*minio.Client]) that adds tracing and error classification
// transparently to all storage operations. It is bound to the single
// media bucket from the configuration.
//
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
}

// NewClient creates a new object storage client. It validates the
// configuration, creates the underlying minio.Client, and ensures the
// configured media bucket exists, creating it when absent.
//
// Error codes returned:
//   - [apperr.CodeValidation]: invalid configuration
//   - [apperr.CodeUnavailableDependency]: cannot reach the server
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation,
			"minio: invalid configuration")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternalConfiguration,
			"minio: failed to create client")
	}

	exists, err := minioClient.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"minio: failed to connect to server")
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency,
				"minio: failed to create media bucket")
		}
	}

	return &Client{
		store:  minioClient,
		config: &cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// NewFromStore creates a Client with a pre-existing [ObjectStore]. This
// constructor is intended for testing with mock stores.
//
// The cfg parameter is stored but not validated; pass nil for a
// zero-value config in tests.
func NewFromStore(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		store:  store,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// Bucket returns the media bucket the client operates on.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// ObjectURL returns the public URL under which the object at key can be
// fetched: "<public base>/<bucket>/<key>".
func (c *Client) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.config.publicBaseURL(), c.config.Bucket, key)
}

// PutObject uploads an object to the media bucket, with OpenTelemetry
// tracing.
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	ctx, span := c.startSpan(ctx, "PutObject", fmt.Sprintf("PUT %s/%s", c.config.Bucket, objectName))

	info, err := c.store.PutObject(ctx, c.config.Bucket, objectName, reader, objectSize, opts)
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: put object failed")
	}
	return info, nil
}

// GetObject retrieves an object from the media bucket, with OpenTelemetry
// tracing. The returned [*minio.Object] must be closed by the caller.
func (c *Client) GetObject(ctx context.Context, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	ctx, span := c.startSpan(ctx, "GetObject", fmt.Sprintf("GET %s/%s", c.config.Bucket, objectName))

	obj, err := c.store.GetObject(ctx, c.config.Bucket, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: get object failed")
	}
	return obj, nil
}

// RemoveObject deletes an object from the media bucket, with
// OpenTelemetry tracing.
func (c *Client) RemoveObject(ctx context.Context, objectName string, opts minio.RemoveObjectOptions) error {
	ctx, span := c.startSpan(ctx, "RemoveObject", fmt.Sprintf("DELETE %s/%s", c.config.Bucket, objectName))

	err := c.store.RemoveObject(ctx, c.config.Bucket, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: remove object failed")
	}
	return nil
}

// StatObject retrieves metadata about an object in the media bucket
// without downloading it, with OpenTelemetry tracing. A missing object
// yields [apperr.CodeNotFoundFile].
func (c *Client) StatObject(ctx context.Context, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	ctx, span := c.startSpan(ctx, "StatObject", fmt.Sprintf("STAT %s/%s", c.config.Bucket, objectName))

	info, err := c.store.StatObject(ctx, c.config.Bucket, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: stat object failed")
	}
	return info, nil
}

// Health verifies that the object store is reachable by probing the media
// bucket. It applies [DefaultHealthTimeout] if the provided context has
// no deadline.
//
// Returns nil if the store is reachable, or a [*apperr.Error] with code
// [apperr.CodeUnavailableDependency] if the probe fails. This method is
// designed for use with health check endpoints and readiness probes.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "BucketExists "+c.config.Bucket)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	_, err := c.store.BucketExists(ctx, c.config.Bucket)
	finishSpan(span, err)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"minio: health check failed")
	}
	return nil
}

// Store returns the underlying [ObjectStore] interface for advanced use
// cases not covered by the Client's methods.
func (c *Client) Store() ObjectStore {
	return c.store
}

// startSpan creates a new OpenTelemetry span with standard database
// semantic attributes.
func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", c.config.Bucket),
		attribute.String("db.statement", truncateStatement(statement)),
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

// IsNotFound reports whether the error indicates a missing object or
// bucket. The image service uses this to turn deletions of unknown files
// into 404 responses.
func IsNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}

// wrapError converts a storage error to a [*apperr.Error] with an
// appropriate error code. Missing objects map to
// [apperr.CodeNotFoundFile] and deadline expiry to
// [apperr.CodeTimeoutDatabase]; everything else is classified as an
// internal storage failure.
func wrapError(err error, message string) *apperr.Error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return apperr.Wrap(err, apperr.CodeNotFoundFile, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.CodeTimeoutDatabase, message)
	}
	return apperr.Wrap(err, apperr.CodeInternalDatabase, message)
}
