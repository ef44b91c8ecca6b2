// Package httpapi wires the HTTP surface: the gorilla/mux router, the
// correlation, rate limiting, and authorization middleware chain, the
// request handlers, and the structured error body every failure renders.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// ErrorBody is the JSON document rendered for every failed request.
type ErrorBody struct {
	// Status is the HTTP status code, duplicated in the body so logs
	// of captured bodies stay self-describing.
	Status int `json:"status"`

	// Title is the generic reason phrase for the status.
	Title string `json:"title"`

	// Detail is the human-readable error message. Server-side failures
	// carry a generic detail; internals never leak.
	Detail string `json:"detail"`

	// Path is the request path that failed.
	Path string `json:"path"`

	// Timestamp is the RFC 3339 time the error was rendered.
	Timestamp string `json:"timestamp"`

	// CorrelationID ties the response to server logs.
	CorrelationID string `json:"correlationId"`

	// Errors lists field-level validation failures, if any.
	Errors []apperr.FieldError `json:"errors,omitempty"`
}

// WriteError renders err as a structured JSON error body. Unknown errors
// are treated as internal and rendered without their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.FromError(err)
	status := appErr.HTTPStatus()

	detail := appErr.Message
	if status >= http.StatusInternalServerError {
		// Never expose internals; the full error goes to the log.
		detail = "an internal error occurred"
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"correlation_id", CorrelationIDFromContext(r.Context()),
			"error", err,
		)
	}

	writeJSON(w, status, ErrorBody{
		Status:        status,
		Title:         http.StatusText(status),
		Detail:        detail,
		Path:          r.URL.Path,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationIDFromContext(r.Context()),
		Errors:        appErr.Fields,
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
