package auth

import (
	"log/slog"
	"net/http"
	"strings"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// HeaderAuthorization is the HTTP header carrying the bearer token.
const HeaderAuthorization = "Authorization"

// bearerPrefix is the expected authorization scheme prefix. Matching is
// case-insensitive, per RFC 7235.
const bearerPrefix = "bearer "

// ExtractBearerToken extracts the token from an Authorization header
// value of the form "Bearer <token>". Returns an empty string if the
// header is empty or does not use the bearer scheme.
func ExtractBearerToken(header string) string {
	if len(header) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// MiddlewareConfig configures [Middleware].
type MiddlewareConfig struct {
	// Validator verifies bearer tokens. Required.
	Validator TokenValidator

	// Policy is the route authorization table. Required.
	Policy *Policy

	// ClientID is the OIDC client whose resource_access entry
	// contributes roles during extraction. Required.
	ClientID string

	// Logger receives authorization decision logs. If nil,
	// [slog.Default] is used.
	Logger *slog.Logger

	// OnError renders an authentication or authorization failure to the
	// response. If nil, a plain-text [http.Error] with the mapped status
	// is used. The HTTP API layer installs its structured JSON renderer
	// here.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware returns an HTTP middleware enforcing the route policy.
//
// For each request the middleware looks up the policy requirement for
// (method, path). Public routes pass through untouched; any bearer token
// they carry is ignored. All other routes require a valid token: the
// middleware validates it, extracts roles, checks the role requirement,
// and attaches the resulting [Principal] to the request context.
//
// Failures map to HTTP 401 (missing or invalid token) and 403 (valid
// token lacking a required role). Every denial is logged with the method,
// path, and reason; grants on role-gated routes are logged at debug level.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, http.StatusText(apperr.FromError(err).HTTPStatus()), apperr.FromError(err).HTTPStatus())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule := cfg.Policy.Requirement(r.Method, r.URL.Path)
			if rule.Access == AccessPublic {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if tokenStr == "" {
				err := apperr.New(apperr.CodeAuthentication, "auth: missing bearer token")
				logger.WarnContext(r.Context(), "request rejected: no credentials",
					"method", r.Method,
					"path", r.URL.Path,
				)
				onError(w, r, err)
				return
			}

			ctx := r.Context()
			token, err := cfg.Validator.Validate(ctx, tokenStr)
			if err != nil {
				logger.WarnContext(ctx, "request rejected: token validation failed",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
				onError(w, r, err)
				return
			}

			principal := &Principal{
				Token: token,
				Roles: ExtractRoles(token, cfg.ClientID),
			}

			if decideErr := cfg.Policy.Decide(r.Method, r.URL.Path, principal); decideErr != nil {
				logger.WarnContext(ctx, "request rejected: insufficient role",
					"method", r.Method,
					"path", r.URL.Path,
					"subject", token.Subject(),
					"roles", principal.Roles,
				)
				onError(w, r, decideErr)
				return
			}

			if rule.Access == AccessAnyRole {
				logger.DebugContext(ctx, "role-gated access granted",
					"method", r.Method,
					"path", r.URL.Path,
					"subject", token.Subject(),
				)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(ctx, principal)))
		})
	}
}
