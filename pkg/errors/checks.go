package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error.
// Returns the Error and true if successful, nil and false otherwise.
// This function traverses the error chain using errors.As.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error.
// If the error is not an *Error or is nil, returns an empty string.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode checks if an error has the specified error code.
// Returns false if the error is nil or not an *Error.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsValidation checks if the error is a validation error (VAL_xxx).
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VAL"
}

// IsAuthentication checks if the error is an authentication error (AUTH_xxx).
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsAuthorization checks if the error is an authorization error (AUTHZ_xxx).
func IsAuthorization(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTHZ"
}

// IsNotFound checks if the error is a not found error (NF_xxx).
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "NF"
}

// IsConflict checks if the error is a conflict error (CONF_xxx).
func IsConflict(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "CONF"
}

// IsRateLimited checks if the error is a rate limit rejection (RATE_xxx).
func IsRateLimited(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "RATE"
}

// IsInternal checks if the error is an internal error (INT_xxx).
func IsInternal(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "INT"
}

// IsUnavailable checks if the error is a service unavailable error (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "UNAVAIL"
}

// IsTimeout checks if the error is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "TIMEOUT"
}

// IsClientError checks if the error maps to a 4xx HTTP status.
// Client errors include validation, authentication, authorization,
// not found, conflict, and rate limit rejections.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "AUTH", "AUTHZ", "NF", "CONF", "RATE":
		return true
	default:
		return false
	}
}

// IsServerError checks if the error maps to a 5xx HTTP status.
// Server errors include internal, unavailable, and timeout errors.
func IsServerError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "INT", "UNAVAIL", "TIMEOUT":
		return true
	default:
		return false
	}
}
