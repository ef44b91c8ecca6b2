package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/benseddik/idp-backend/pkg/ratelimit"
)

// HeaderCorrelationID is the header carrying the request correlation id.
// A client-supplied value is kept; otherwise a uuid is generated.
const HeaderCorrelationID = "X-Correlation-Id"

type correlationContextKey int

const correlationKey correlationContextKey = 0

// CorrelationMiddleware attaches a correlation id to the request context
// and echoes it on the response.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)
		ctx := context.WithValue(r.Context(), correlationKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFromContext returns the request's correlation id, or an
// empty string outside a request.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// CORSConfig lists the origins allowed to call the API from a browser.
// An empty list disables cross-origin access entirely.
type CORSConfig struct {
	AllowedOrigins []string
}

// corsAllowMethods and corsAllowHeaders cover every route the router
// registers; headers beyond these are rejected at preflight.
const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, " + HeaderCorrelationID
	corsExposeHeaders = HeaderCorrelationID + ", Retry-After"
	corsMaxAge        = "3600"
)

// CORSMiddleware answers preflight requests and stamps cross-origin
// response headers for origins on the allow-list. "*" in the list
// allows any origin; the concrete request origin is still echoed so
// credentialed requests keep working.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o == "" {
			continue
		}
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			_, ok := allowed[strings.ToLower(origin)]
			if !ok && !wildcard {
				// Not an allowed origin: no CORS headers, the browser
				// blocks the response on its side.
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware stamps the browser hardening headers on
// every response.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware throttles requests per client address. Rejections
// get a plain-text 429 body. A limiter backend failure fails open: an
// unreachable Redis must not take the API down with it.
func RateLimitMiddleware(limiter ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter backend failed, admitting request",
					"client", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.WarnContext(r.Context(), "request rejected: rate limit exceeded",
					"client", key,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("Too Many Requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the client for rate limiting: the first entry of
// X-Forwarded-For when present, otherwise the RemoteAddr host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
