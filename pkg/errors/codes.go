package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, RATE) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their HTTP mappings:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	RATE_xxx    - Rate limit rejections (429 Too Many Requests)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationFile indicates an uploaded file failed validation
	// (disallowed MIME type or extension, or size over the ceiling).
	CodeValidationFile Code = "VAL_004"

	// Authentication errors (AUTH_xxx) - HTTP 401

	// CodeAuthentication indicates a general authentication failure,
	// typically a missing or unrecognized principal.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the bearer token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the bearer token is malformed,
	// carries a bad signature, or was minted by an unexpected issuer.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// Authorization errors (AUTHZ_xxx) - HTTP 403

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationRole indicates the authenticated identity lacks a
	// role required by the route's policy rule.
	CodeAuthorizationRole Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundFile indicates the requested stored file was not found.
	CodeNotFoundFile Code = "NF_003"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictDuplicate indicates a uniqueness constraint was hit
	// (duplicate email or external id).
	CodeConflictDuplicate Code = "CONF_002"

	// Rate limit errors (RATE_xxx) - HTTP 429

	// CodeRateLimited indicates the request was rejected by the
	// per-client rate limiter.
	CodeRateLimited Code = "RATE_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalProvider indicates an identity-provider admin call
	// failed for a reason other than "not found".
	CodeInternalProvider Code = "INT_004"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependency is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
