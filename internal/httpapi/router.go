package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/benseddik/idp-backend/pkg/auth"
	"github.com/benseddik/idp-backend/pkg/ratelimit"
)

// RouterConfig carries the dependencies wired into the HTTP router.
type RouterConfig struct {
	Handlers *Handlers

	// Validator verifies bearer tokens on protected routes.
	Validator auth.TokenValidator

	// ClientID is the OIDC client whose resource roles count toward
	// authorization.
	ClientID string

	// Limiter throttles clients by source address. If nil, rate
	// limiting is disabled.
	Limiter ratelimit.Limiter

	// AllowedOrigins are the origins granted cross-origin access. An
	// empty list keeps the API same-origin only.
	AllowedOrigins []string

	Logger *slog.Logger
}

// RoutePolicy is the route authorization table. Declaration order
// matters: the first matching rule decides, and unmatched routes
// require authentication.
func RoutePolicy() *auth.Policy {
	return auth.NewPolicy(
		auth.PermitAll("/health"),
		auth.PermitAll("/ready"),
		auth.PermitAll("/auth/register", http.MethodPost),
		auth.RequireAnyRole("/admin/**", []string{"ADMIN", "MODERATOR"}),
		auth.RequireAuthenticated("/users/me"),
		auth.RequireAuthenticated("/images/**"),
	)
}

// NewRouter builds the HTTP router: correlation, CORS, security
// headers, and rate limiting wrap every request, then the authorization
// middleware enforces [RoutePolicy] before a handler runs.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := cfg.Handlers

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/users/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/users/me", h.UpdateMe).Methods(http.MethodPut)
	r.HandleFunc("/users/me", h.DeleteMe).Methods(http.MethodDelete)
	r.HandleFunc("/images/{folder}", h.UploadImage).Methods(http.MethodPost)
	r.HandleFunc("/images/{folder}/{filename}", h.DeleteImage).Methods(http.MethodDelete)

	authMiddleware := auth.Middleware(auth.MiddlewareConfig{
		Validator: cfg.Validator,
		Policy:    RoutePolicy(),
		ClientID:  cfg.ClientID,
		Logger:    logger,
		OnError:   WriteError,
	})

	var handler http.Handler = authMiddleware(r)
	if cfg.Limiter != nil {
		handler = RateLimitMiddleware(cfg.Limiter, logger)(handler)
	}
	handler = SecurityHeadersMiddleware(handler)
	handler = CORSMiddleware(CORSConfig{AllowedOrigins: cfg.AllowedOrigins})(handler)
	return CorrelationMiddleware(handler)
}
