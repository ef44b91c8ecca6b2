package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// ---------------------------------------------------------------------------
// HTTPClient interface
// ---------------------------------------------------------------------------

// HTTPClient abstracts the HTTP client used for fetching the realm's JWKS.
// This allows callers to provide custom HTTP clients with specific
// timeouts, transport settings, or middleware (e.g., for mTLS, proxy
// configuration, or request tracing).
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ---------------------------------------------------------------------------
// ValidatorConfig — configuration for the Keycloak token validator
// ---------------------------------------------------------------------------

// ValidatorConfig holds the configuration for [KeycloakValidator]: the
// realm issuer, accepted issuer aliases, the client id used for
// client-scoped role extraction, caching behavior, and clock skew
// tolerance.
type ValidatorConfig struct {
	// IssuerURI is the canonical realm issuer URI (e.g.,
	// "https://auth.example.com/realms/app"). The validator fetches
	// signing keys from "<IssuerURI>/protocol/openid-connect/certs".
	// Required.
	IssuerURI string `yaml:"issuer_uri" env:"AUTH_ISSUER_URI" required:"true"`

	// IssuerAliases are additional issuer values accepted in the "iss"
	// claim besides IssuerURI. Development setups reach the same realm
	// through different hostnames (host loopback vs. emulator bridge),
	// so tokens may carry any of these issuers while being signed by
	// the same key set.
	IssuerAliases []string `yaml:"issuer_aliases" env:"AUTH_ISSUER_ALIASES"`

	// ClientID is the OIDC client whose resource_access entry
	// contributes client-scoped roles during role extraction.
	// Required.
	ClientID string `yaml:"client_id" env:"AUTH_CLIENT_ID" required:"true"`

	// ClockSkew is the maximum allowed clock difference between this
	// service and the identity provider. A token is accepted while
	// now <= exp + ClockSkew and now >= iat - ClockSkew (boundaries
	// inclusive). Must be non-negative. Defaults to 60 seconds.
	ClockSkew time.Duration `yaml:"clock_skew" env:"AUTH_CLOCK_SKEW" envDefault:"60s"`

	// JWKSCacheTTL is the time a fetched JWKS response is cached before
	// being refreshed from the realm. Must be non-negative.
	// Defaults to 1 hour.
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" envDefault:"1h"`

	// TokenCacheTTL is the maximum time a validated token is cached
	// before re-validation is required. The actual cache TTL for a token
	// is the minimum of this value and the token's remaining lifetime.
	// Must be non-negative. Defaults to 5 minutes.
	TokenCacheTTL time.Duration `yaml:"token_cache_ttl" env:"AUTH_TOKEN_CACHE_TTL" envDefault:"5m"`

	// TokenCacheMaxSize is the maximum number of entries in the token
	// cache. When the cache is full, expired entries are evicted first,
	// then the oldest entries are removed. Must be greater than zero.
	// Defaults to 10000.
	TokenCacheMaxSize int `yaml:"token_cache_max_size" env:"AUTH_TOKEN_CACHE_MAX_SIZE" envDefault:"10000"`

	// HTTPClient is the HTTP client used for fetching JWKS. If nil, a
	// default [http.Client] with a 10-second timeout is used.
	HTTPClient HTTPClient `yaml:"-"`
}

// maxTokenSize is the maximum accepted size for a bearer token string
// (8 KB). Tokens larger than this are rejected to prevent resource
// exhaustion.
const maxTokenSize = 8192

// Validate checks the configuration for logical correctness and returns
// a *[apperr.Error] with code [apperr.CodeValidation] if any field is
// invalid.
func (c *ValidatorConfig) Validate() *apperr.Error {
	if c.IssuerURI == "" {
		return apperr.New(apperr.CodeValidation, "auth: issuer URI must not be empty")
	}
	if c.ClientID == "" {
		return apperr.New(apperr.CodeValidation, "auth: client id must not be empty")
	}
	if c.ClockSkew < 0 {
		return apperr.New(apperr.CodeValidation, "auth: clock skew must be non-negative")
	}
	if c.JWKSCacheTTL < 0 {
		return apperr.New(apperr.CodeValidation, "auth: JWKS cache TTL must be non-negative")
	}
	if c.TokenCacheTTL < 0 {
		return apperr.New(apperr.CodeValidation, "auth: token cache TTL must be non-negative")
	}
	if c.TokenCacheMaxSize <= 0 {
		return apperr.New(apperr.CodeValidation, "auth: token cache max size must be greater than zero")
	}
	return nil
}

// DefaultValidatorConfig returns a ValidatorConfig with sensible defaults.
// IssuerURI and ClientID must still be set by the caller.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ClockSkew:         60 * time.Second,
		JWKSCacheTTL:      1 * time.Hour,
		TokenCacheTTL:     5 * time.Minute,
		TokenCacheMaxSize: 10000,
	}
}

// allowedIssuers returns the canonical issuer plus all configured aliases,
// with empty entries dropped.
func (c *ValidatorConfig) allowedIssuers() []string {
	issuers := make([]string, 0, len(c.IssuerAliases)+1)
	if c.IssuerURI != "" {
		issuers = append(issuers, c.IssuerURI)
	}
	for _, alias := range c.IssuerAliases {
		if alias != "" {
			issuers = append(issuers, alias)
		}
	}
	return issuers
}

// ---------------------------------------------------------------------------
// tokenCache — in-memory cache for validated tokens
// ---------------------------------------------------------------------------

// tokenCacheEntry stores a cached validated token and its cache expiry.
type tokenCacheEntry struct {
	token     *Token
	expiresAt time.Time
}

// tokenCache provides an in-memory cache for validated tokens, keyed by
// the SHA-256 hash of the raw token string. This avoids re-parsing and
// re-verifying signatures on every request.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*tokenCacheEntry
	maxSize int
	ttl     time.Duration
}

// newTokenCache creates a new token cache with the given TTL and maximum
// number of entries.
func newTokenCache(ttl time.Duration, maxSize int) *tokenCache {
	return &tokenCache{
		entries: make(map[string]*tokenCacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// get retrieves a cached token by hash. Returns the token and true if the
// entry exists and has not expired, or nil and false otherwise.
func (c *tokenCache) get(tokenHash string) (*Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tokenHash]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.token, true
}

// put stores a validated token in the cache. The effective cache TTL is
// the minimum of the configured TTL and the time remaining until the
// token's expiration. If the cache is at capacity, expired entries are
// evicted first; if still at capacity, the oldest entry is removed.
func (c *tokenCache) put(tokenHash string, token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl
	if remaining := time.Until(token.ExpiresAt()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return // Token already expired; do not cache.
	}

	expiresAt := time.Now().Add(ttl)

	if len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
	}
	if len(c.entries) >= c.maxSize {
		// Evict the oldest entry (earliest expiresAt).
		var oldestKey string
		var oldestTime time.Time
		first := true
		for k, v := range c.entries {
			if first || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}

	c.entries[tokenHash] = &tokenCacheEntry{
		token:     token,
		expiresAt: expiresAt,
	}
}

// evictExpiredLocked removes all expired entries. Caller must hold the
// write lock.
func (c *tokenCache) evictExpiredLocked() {
	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// ---------------------------------------------------------------------------
// jwksCache — caches the realm's published signing keys
// ---------------------------------------------------------------------------

// jwksCacheEntry stores fetched JWKS keys and the time they were fetched.
type jwksCacheEntry struct {
	keys      map[string]any // kid -> *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// jwksCache caches JSON Web Key Sets fetched from the realm's certs
// endpoint. Keys are cached per JWKS URL and refreshed after the
// configured TTL expires.
type jwksCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksCacheEntry
	ttl     time.Duration
	client  HTTPClient
}

// newJWKSCache creates a new JWKS cache with the given TTL and HTTP client.
func newJWKSCache(ttl time.Duration, client HTTPClient) *jwksCache {
	return &jwksCache{
		entries: make(map[string]*jwksCacheEntry),
		ttl:     ttl,
		client:  client,
	}
}

// getKey retrieves a public key by key ID (kid) from the JWKS at the given
// URL. If the JWKS is not cached or the cache has expired, the JWKS is
// fetched from the URL. If the kid is not found in a cached JWKS, the
// cache is refreshed (to handle key rotation). Returns the key on success,
// or an error if the key cannot be found or the JWKS cannot be fetched.
func (c *jwksCache) getKey(ctx context.Context, jwksURL, kid string) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[jwksURL]
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		key, exists := entry.keys[kid]
		c.mu.RUnlock()
		if exists {
			return key, nil
		}
		// Kid not found in cached JWKS — may be a key rotation; refetch.
	} else {
		c.mu.RUnlock()
	}

	keys, err := c.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	c.mu.Lock()
	c.entries[jwksURL] = &jwksCacheEntry{
		keys:      keys,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()

	key, exists := keys[kid]
	if !exists {
		return nil, fmt.Errorf("auth: key ID %q not found in JWKS from %s", kid, jwksURL)
	}
	return key, nil
}

// jwksResponse represents the JSON structure of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey represents a single key in a JWKS response. Only the fields
// needed for RSA and EC key reconstruction are included.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetchJWKS makes an HTTP GET request to the JWKS URL, parses the response,
// and constructs a map of key ID to public key. Supports RSA and ECDSA
// (P-256, P-384, P-521) key types.
//
// The response body is limited to 1 MB to prevent resource exhaustion.
func (c *jwksCache) fetchJWKS(ctx context.Context, jwksURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("auth: failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pubKey, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue // Skip malformed keys.
			}
			keys[k.Kid] = pubKey
		case "EC":
			pubKey, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue // Skip malformed keys.
			}
			keys[k.Kid] = pubKey
		}
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded x and y coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// ---------------------------------------------------------------------------
// KeycloakValidator — realm token validation with caching and OTel tracing
// ---------------------------------------------------------------------------

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/benseddik/idp-backend/pkg/auth"

// KeycloakValidator validates bearer tokens issued by a Keycloak realm.
// Signatures are verified against the realm's published JWKS (fetched
// from "<issuer>/protocol/openid-connect/certs" and cached by kid), and
// claims are checked by a configurable [ClaimsValidator] chain that by
// default enforces the issuer allow-list and the validity window with
// clock-skew tolerance. It implements the [TokenValidator] interface.
//
// KeycloakValidator is safe for concurrent use by multiple goroutines.
type KeycloakValidator struct {
	config          ValidatorConfig
	tracer          trace.Tracer
	tokenCache      *tokenCache
	jwksCache       *jwksCache
	jwksURL         string
	claimsValidator ClaimsValidator
}

// Compile-time assertion that KeycloakValidator implements TokenValidator.
var _ TokenValidator = (*KeycloakValidator)(nil)

// NewKeycloakValidator creates a new KeycloakValidator with the given
// configuration. The configuration is validated before use; an error is
// returned if the configuration is invalid.
//
// If cfg.HTTPClient is nil, a default [http.Client] with a 10-second
// timeout is used.
func NewKeycloakValidator(cfg ValidatorConfig) (*KeycloakValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &KeycloakValidator{
		config:     cfg,
		tracer:     otel.Tracer(tracerName),
		tokenCache: newTokenCache(cfg.TokenCacheTTL, cfg.TokenCacheMaxSize),
		jwksCache:  newJWKSCache(cfg.JWKSCacheTTL, httpClient),
		jwksURL:    strings.TrimRight(cfg.IssuerURI, "/") + "/protocol/openid-connect/certs",
		claimsValidator: NewDelegatingClaimsValidator(
			&IssuerValidator{Allowed: cfg.allowedIssuers()},
			&TimestampValidator{Skew: cfg.ClockSkew},
		),
	}, nil
}

// Validate verifies the given bearer token string and returns the [Token]
// it represents.
//
// The method performs the following steps:
//  1. Rejects empty or oversized tokens
//  2. Checks the in-memory token cache
//  3. Rejects tokens whose header declares alg "none"
//  4. Verifies the signature (RS256 or ES256) against the realm JWKS
//  5. Runs the claims validator chain (issuer allow-list, validity window)
//  6. Caches the validated token
//  7. Records OpenTelemetry span attributes and errors
//
// Returns a *[apperr.Error] with the appropriate error code on failure.
func (v *KeycloakValidator) Validate(ctx context.Context, tokenStr string) (*Token, error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Validate")
	defer span.End()

	if tokenStr == "" {
		err := apperr.New(apperr.CodeAuthenticationInvalid, "auth: token must not be empty")
		finishSpan(span, err)
		return nil, err
	}

	if len(tokenStr) > maxTokenSize {
		err := apperr.New(apperr.CodeAuthenticationInvalid, "auth: token exceeds maximum size")
		finishSpan(span, err)
		return nil, err
	}

	hash := tokenHash(tokenStr)

	if cached, ok := v.tokenCache.get(hash); ok {
		// Cached tokens were signature-verified; only the validity
		// window needs re-checking as time advances.
		if err := v.claimsValidator.ValidateClaims(cached); err != nil {
			classified := classifyError(err)
			finishSpan(span, classified)
			return nil, classified
		}
		span.SetAttributes(attribute.Bool("auth.cache_hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))

	// Parse token without verification to inspect the header.
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil || unverified == nil {
		parseErr := apperr.New(apperr.CodeAuthenticationInvalid, "auth: token is malformed")
		finishSpan(span, parseErr)
		return nil, parseErr
	}

	// Reject alg:none — critical security check.
	algStr, _ := unverified.Header["alg"].(string)
	if strings.EqualFold(algStr, "none") {
		err := apperr.New(apperr.CodeAuthenticationInvalid, "auth: algorithm 'none' is not permitted")
		finishSpan(span, err)
		return nil, err
	}

	// Verify the signature. Claims validation is handled by the claims
	// validator chain below, so we control the issuer allow-list and
	// the exact clock-skew boundaries ourselves.
	parsed, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("auth: token header missing kid")
		}
		return v.jwksCache.getKey(ctx, v.jwksURL, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		return nil, classified
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		err := apperr.New(apperr.CodeAuthenticationInvalid, "auth: unable to extract claims")
		finishSpan(span, err)
		return nil, err
	}

	token, err := tokenFromClaims(mc)
	if err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		return nil, classified
	}

	if err := v.claimsValidator.ValidateClaims(token); err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		return nil, classified
	}

	v.tokenCache.put(hash, token)

	span.SetAttributes(
		attribute.String("auth.subject", token.Subject()),
		attribute.String("auth.issuer", token.Issuer()),
	)

	return token, nil
}

// tokenFromClaims builds an immutable [Token] from verified map claims.
// The subject and expiration claims are required; issued-at is optional
// (some providers omit iat on exchanged tokens).
func tokenFromClaims(mc jwt.MapClaims) (*Token, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, apperr.New(apperr.CodeAuthenticationInvalid, "auth: token is missing the sub claim")
	}

	iss, _ := mc.GetIssuer()

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, apperr.New(apperr.CodeAuthenticationInvalid, "auth: token is missing the exp claim")
	}

	var issuedAt time.Time
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}

	return NewToken(sub, iss, issuedAt, exp.Time, mapClaimsToMap(mc)), nil
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// tokenHash computes the SHA-256 hash of a token string and returns it
// as a hex-encoded string. This is used as the cache key to avoid storing
// raw tokens in memory.
func tokenHash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// mapClaimsToMap converts jwt.MapClaims to a plain map[string]any.
// This allows the claims to be passed to functions that expect a plain map
// without carrying the jwt.MapClaims type.
func mapClaimsToMap(mc jwt.MapClaims) map[string]any {
	result := make(map[string]any, len(mc))
	for k, v := range mc {
		result[k] = v
	}
	return result
}

// classifyError converts a JWT library error or other error to an
// appropriate *apperr.Error with the correct error code. If the error
// is already an *apperr.Error, it is returned as-is.
func classifyError(err error) *apperr.Error {
	if err == nil {
		return nil
	}

	var appError *apperr.Error
	if errors.As(err, &appError) {
		return appError
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.Wrap(err, apperr.CodeAuthenticationExpired, "auth: token has expired")
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token is malformed")
	}
	if errors.Is(err, jwt.ErrSignatureInvalid) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token is unverifiable")
	}
	if errors.Is(err, jwt.ErrTokenNotValidYet) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token is not yet valid")
	}
	if errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token issuer is invalid")
	}
	if errors.Is(err, jwt.ErrTokenInvalidClaims) {
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token claims are invalid")
	}

	return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token validation failed")
}

// startSpan creates a new OpenTelemetry span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error. This is a helper for consistent error recording
// across validation paths.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
