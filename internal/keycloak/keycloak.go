// Package keycloak implements a client for the Keycloak admin REST API.
// The application uses it to provision accounts during registration,
// detect duplicate emails, grant the default realm role, and remove
// accounts when their owner deletes the profile.
//
// Admin calls authenticate with the client-credentials grant of a
// confidential service client. The acquired token is cached and
// refreshed shortly before expiry.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

const (
	// tokenExpirySlack is subtracted from the advertised token lifetime
	// so the client never presents a token about to expire mid-request.
	tokenExpirySlack = 30 * time.Second

	// maxResponseSize caps admin API response bodies.
	maxResponseSize = 1 << 20
)

// Secret is a string type that prevents accidental logging of the admin
// client secret. Its String and GoString methods return a redacted
// placeholder; use [Secret.Value] for the actual value.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging.
func (s Secret) String() string { return redacted }

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", s) safety.
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the admin API connection settings.
type Config struct {
	// BaseURL is the Keycloak server base URL, without a trailing
	// slash (e.g. "https://keycloak.example.com").
	BaseURL string `yaml:"base_url" env:"KEYCLOAK_BASE_URL"`

	// Realm is the realm administered by this client.
	Realm string `yaml:"realm" env:"KEYCLOAK_REALM"`

	// AdminClientID is the confidential client used for the
	// client-credentials grant.
	AdminClientID string `yaml:"admin_client_id" env:"KEYCLOAK_ADMIN_CLIENT_ID"`

	// AdminClientSecret is the confidential client's secret.
	AdminClientSecret Secret `yaml:"-" env:"KEYCLOAK_ADMIN_CLIENT_SECRET"`

	// Timeout bounds each admin API request. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout,omitempty" env:"KEYCLOAK_TIMEOUT" envDefault:"10s"`
}

// Validate checks the configuration for missing required values.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("keycloak: config base_url must not be empty")
	}
	if c.Realm == "" {
		return fmt.Errorf("keycloak: config realm must not be empty")
	}
	if c.AdminClientID == "" {
		return fmt.Errorf("keycloak: config admin_client_id must not be empty")
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// Client talks to the Keycloak admin REST API. It is safe for concurrent
// use; the cached admin token is guarded by a mutex.
type Client struct {
	config     Config
	httpClient *http.Client

	mu          sync.Mutex
	adminToken  string
	tokenExpiry time.Time
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation,
			"keycloak: invalid configuration")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewFromHTTPClient creates a Client with a caller-provided HTTP client.
// Intended for tests pointing at an httptest server.
func NewFromHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

// userRepresentation is the subset of the Keycloak user representation
// this client reads and writes.
type userRepresentation struct {
	ID            string          `json:"id,omitempty"`
	Username      string          `json:"username,omitempty"`
	Email         string          `json:"email,omitempty"`
	FirstName     string          `json:"firstName,omitempty"`
	LastName      string          `json:"lastName,omitempty"`
	Enabled       bool            `json:"enabled"`
	EmailVerified bool            `json:"emailVerified"`
	Credentials   []credentialRep `json:"credentials,omitempty"`
}

type credentialRep struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type roleRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FindUserIDByEmail searches the realm for an account with exactly the
// given email and returns its id. A missing account yields
// [apperr.CodeNotFoundUser].
func (c *Client) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users?email=%s&exact=true",
		c.config.BaseURL, url.PathEscape(c.config.Realm), url.QueryEscape(email))

	body, err := c.doAdmin(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	var users []userRepresentation
	if err := json.Unmarshal(body, &users); err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternalProvider,
			"keycloak: malformed user search response")
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u.ID, nil
		}
	}
	return "", apperr.New(apperr.CodeNotFoundUser,
		"no account with this email")
}

// CreateUser provisions an enabled, email-verified account with a
// permanent password credential and returns the new account's id.
func (c *Client) CreateUser(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users",
		c.config.BaseURL, url.PathEscape(c.config.Realm))

	payload, err := json.Marshal(userRepresentation{
		Username:      email,
		Email:         email,
		FirstName:     firstName,
		LastName:      lastName,
		Enabled:       true,
		EmailVerified: true,
		Credentials: []credentialRep{{
			Type:      "password",
			Value:     password,
			Temporary: false,
		}},
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal,
			"keycloak: failed to encode user representation")
	}

	resp, err := c.send(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		// The new account id is the last segment of the Location header.
		location := resp.Header.Get("Location")
		if idx := strings.LastIndexByte(location, '/'); idx >= 0 && idx < len(location)-1 {
			return location[idx+1:], nil
		}
		// Some proxies strip the Location header; fall back to search.
		return c.FindUserIDByEmail(ctx, email)
	case http.StatusConflict:
		return "", apperr.New(apperr.CodeConflictDuplicate,
			"an account with this email already exists")
	default:
		return "", statusError(resp.StatusCode, "keycloak: user creation failed")
	}
}

// AssignRealmRole grants the named realm role to the account.
func (c *Client) AssignRealmRole(ctx context.Context, userID, role string) error {
	roleEndpoint := fmt.Sprintf("%s/admin/realms/%s/roles/%s",
		c.config.BaseURL, url.PathEscape(c.config.Realm), url.PathEscape(role))

	body, err := c.doAdmin(ctx, http.MethodGet, roleEndpoint, nil)
	if err != nil {
		return err
	}
	var rep roleRepresentation
	if err := json.Unmarshal(body, &rep); err != nil {
		return apperr.Wrap(err, apperr.CodeInternalProvider,
			"keycloak: malformed role response")
	}

	payload, err := json.Marshal([]roleRepresentation{rep})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal,
			"keycloak: failed to encode role mapping")
	}

	mappingEndpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s/role-mappings/realm",
		c.config.BaseURL, url.PathEscape(c.config.Realm), url.PathEscape(userID))
	_, err = c.doAdmin(ctx, http.MethodPost, mappingEndpoint, payload)
	return err
}

// DeleteUser removes the account. A 404 from the admin API is treated as
// success so account deletion stays idempotent.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s",
		c.config.BaseURL, url.PathEscape(c.config.Realm), url.PathEscape(userID))

	resp, err := c.send(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return statusError(resp.StatusCode, "keycloak: user deletion failed")
	}
}

// doAdmin sends an authenticated admin request and returns the response
// body for 2xx statuses.
func (c *Client) doAdmin(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	resp, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.New(apperr.CodeNotFound,
			"keycloak: resource not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, "keycloak: admin request failed")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternalProvider,
			"keycloak: failed to read admin response")
	}
	return body, nil
}

// send issues an admin request with a fresh bearer token. The caller
// owns the response body.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	token, err := c.adminAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal,
			"keycloak: failed to build admin request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"keycloak: admin API unreachable")
	}
	return resp, nil
}

// adminAccessToken returns a cached admin token, acquiring a new one via
// the client-credentials grant when the cache is empty or near expiry.
func (c *Client) adminAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adminToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.adminToken, nil
	}

	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		c.config.BaseURL, url.PathEscape(c.config.Realm))

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.config.AdminClientID},
		"client_secret": {c.config.AdminClientSecret.Value()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal,
			"keycloak: failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeUnavailableDependency,
			"keycloak: token endpoint unreachable")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode,
			"keycloak: client credentials grant rejected")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&tokenResp); err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternalProvider,
			"keycloak: malformed token response")
	}
	if tokenResp.AccessToken == "" {
		return "", apperr.New(apperr.CodeInternalProvider,
			"keycloak: token response carries no access token")
	}

	c.adminToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().
		Add(time.Duration(tokenResp.ExpiresIn) * time.Second).
		Add(-tokenExpirySlack)
	return c.adminToken, nil
}

// statusError classifies a non-2xx admin API status.
func statusError(status int, message string) *apperr.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Newf(apperr.CodeInternalProvider,
			"%s: admin credentials rejected (status %d)", message, status)
	case status >= 500:
		return apperr.Newf(apperr.CodeUnavailableDependency,
			"%s (status %d)", message, status)
	default:
		return apperr.Newf(apperr.CodeInternalProvider,
			"%s (status %d)", message, status)
	}
}

// drainAndClose discards the remaining body so the connection can be
// reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseSize))
	_ = body.Close()
}
