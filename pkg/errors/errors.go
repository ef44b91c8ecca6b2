// Package errors provides standardized error types and error handling
// utilities for the identity backend. It defines the error categories the
// HTTP surface maps to status codes, machine-readable error codes, and
// helper functions for creating, wrapping, and inspecting errors.
//
// # Error Categories
//
//   - Validation errors: invalid request bodies, params, or uploads (400)
//   - Authentication errors: missing, expired, or invalid tokens (401)
//   - Authorization errors: authenticated but insufficient role (403)
//   - NotFound errors: missing users, files, or external identities (404)
//   - Conflict errors: duplicate email or external id (409)
//   - RateLimited errors: admission rejected by the rate limiter (429)
//   - Internal errors: unexpected system failures (500)
//   - Unavailable errors: a downstream dependency is unreachable (503)
//   - Timeout errors: an operation exceeded its time limit (504)
//
// # Error Codes
//
// Each error carries a machine-readable code (e.g., "AUTH_001") following
// the pattern CATEGORY_XXX. Codes are stable once assigned.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeAuthenticationInvalid, "unexpected issuer")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to load user")
//
// Check error category:
//
//	if errors.IsNotFound(err) {
//	    // respond 404
//	}
package errors
