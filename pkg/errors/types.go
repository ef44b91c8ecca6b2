package errors

import (
	"fmt"
	"net/http"
)

// Error represents a structured error with a code, message, and optional
// cause. It implements the standard error interface and provides additional
// context for error handling, logging, and API responses.
//
// Error is designed to be:
//   - Immutable: Fields are not modified after creation
//   - Chainable: Supports error wrapping via the Cause field
//   - Structured: Provides machine-readable code and HTTP status
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_001").
	Code Code

	// Message is the human-readable error message. It may be shown to end
	// users and must not contain sensitive information such as internal
	// paths or credentials.
	Message string

	// Cause is the underlying error that caused this error, if any.
	// Use Unwrap() to access the cause for error chain inspection.
	Cause error

	// Fields carries field-level validation failures for VAL errors.
	// Empty for all other categories.
	Fields []FieldError
}

// FieldError describes a single field-level validation failure, rendered
// as an entry of the errors[] array in HTTP error bodies.
type FieldError struct {
	// EntityName names the request object being validated
	// (e.g., "registerRequest").
	EntityName string `json:"entityName"`

	// FieldName is the offending field (e.g., "firstName"). Empty for
	// object-level failures.
	FieldName string `json:"fieldName,omitempty"`

	// Message is the human-readable reason the field was rejected.
	Message string `json:"message"`

	// Code identifies the violated constraint (e.g., "Size", "Email").
	Code string `json:"code"`
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of this error, supporting
// errors.Unwrap() and errors.Is() from the standard library.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error
// based on its error code category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "RATE":
		return http.StatusTooManyRequests
	case "INT":
		return http.StatusInternalServerError
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithFields returns a new Error with the given field errors appended.
// The original error is not modified.
func (e *Error) WithFields(fields ...FieldError) *Error {
	combined := make([]FieldError, 0, len(e.Fields)+len(fields))
	combined = append(combined, e.Fields...)
	combined = append(combined, fields...)
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Fields:  combined,
	}
}

// Format implements fmt.Formatter for detailed error output.
// Use %v for standard output, %+v for detailed output including the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Fields) > 0 {
				fmt.Fprintf(s, ", Fields: %v", e.Fields)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
