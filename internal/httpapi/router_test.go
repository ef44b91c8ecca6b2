package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	minioclient "github.com/benseddik/idp-backend/pkg/clients/minio"
	"github.com/benseddik/idp-backend/pkg/clients/postgres"

	"github.com/benseddik/idp-backend/internal/images"
	"github.com/benseddik/idp-backend/internal/user"
	"github.com/benseddik/idp-backend/pkg/auth"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

const testClientID = "idp-backend"

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// stubValidator accepts any bearer token and returns the scripted result.
type stubValidator struct {
	token *auth.Token
	err   error
}

func (v *stubValidator) Validate(ctx context.Context, tokenStr string) (*auth.Token, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.token, nil
}

// stubIdentityProvider satisfies user.Provider without a network.
type stubIdentityProvider struct {
	createdID string
}

func (p *stubIdentityProvider) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	return "", apperr.New(apperr.CodeNotFoundUser, "no such account")
}

func (p *stubIdentityProvider) CreateUser(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	if p.createdID == "" {
		p.createdID = "kc-" + uuid.NewString()
	}
	return p.createdID, nil
}

func (p *stubIdentityProvider) AssignRealmRole(ctx context.Context, userID, role string) error {
	return nil
}

func (p *stubIdentityProvider) DeleteUser(ctx context.Context, userID string) error {
	return nil
}

// routerObjectStore is an in-memory object store for upload tests.
type routerObjectStore struct {
	objects map[string][]byte
}

func newRouterObjectStore() *routerObjectStore {
	return &routerObjectStore{objects: make(map[string][]byte)}
}

func (s *routerObjectStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	s.objects[bucket+"/"+key] = data
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (s *routerObjectStore) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return nil, minio.ErrorResponse{Code: "NoSuchKey", Message: "not implemented"}
}

func (s *routerObjectStore) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *routerObjectStore) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "key does not exist"}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *routerObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

func (s *routerObjectStore) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return nil
}

// stubChecker scripts a readiness probe result.
type stubChecker struct {
	err error
}

func (c *stubChecker) Health(ctx context.Context) error {
	return c.err
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type routerHarness struct {
	handler   http.Handler
	pool      pgxmock.PgxPoolIface
	store     *routerObjectStore
	validator *stubValidator
	limiter   *stubLimiter
	checks    []NamedChecker
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := user.NewRepository(postgres.NewFromPool(pool, nil))
	users := user.NewService(repo, &stubIdentityProvider{}, nil)

	store := newRouterObjectStore()
	imageSvc := images.NewService(minioclient.NewFromStore(store, minioclient.DefaultConfig()), nil)

	checks := []NamedChecker{{Name: "postgres", Checker: &stubChecker{}}}
	validator := &stubValidator{token: routerTestToken("8c41d1e2-subject", "jane.doe@example.com", "USER")}
	limiter := &stubLimiter{allowed: true}

	h := &routerHarness{
		pool:      pool,
		store:     store,
		validator: validator,
		limiter:   limiter,
		checks:    checks,
	}
	h.handler = NewRouter(RouterConfig{
		Handlers:  NewHandlers(users, imageSvc, checks, nil),
		Validator: validator,
		ClientID:  testClientID,
		Limiter:   limiter,
	})
	return h
}

// routerTestToken builds a token carrying the given realm roles.
func routerTestToken(subject, email string, realmRoles ...string) *auth.Token {
	roles := make([]any, len(realmRoles))
	for i, r := range realmRoles {
		roles[i] = r
	}
	now := time.Now()
	return auth.NewToken(subject, "https://keycloak.example.com/realms/app",
		now, now.Add(time.Hour), map[string]any{
			"email":              email,
			"name":               "Jane Doe",
			"preferred_username": "jane.doe",
			"realm_access":       map[string]any{"roles": roles},
		})
}

func (h *routerHarness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(auth.HeaderAuthorization, "Bearer any-token")
	return req
}

// userTestColumns matches the repository scan order.
var userTestColumns = []string{
	"id", "email", "display_name", "phone_number", "external_id",
	"photo_url", "created_by", "created_at", "modified_by", "modified_at",
}

func userTestRow(id uuid.UUID, email, displayName, externalID string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(userTestColumns).AddRow(
		id, email, displayName, "", &externalID, "", email, now, email, now,
	)
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// Public routes
// ---------------------------------------------------------------------------

func TestHealth_Public(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}

func TestReady_AllUp(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up","dependencies":{"postgres":"up"}}`, rec.Body.String())
}

func TestReady_DependencyDown(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.checks[0].Checker.(*stubChecker).err = apperr.New(apperr.CodeUnavailableDependency, "pool exhausted")

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"down","dependencies":{"postgres":"down"}}`, rec.Body.String())
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

func TestProtectedRoute_NoToken(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, http.StatusUnauthorized, body.Status)
	assert.Equal(t, "Unauthorized", body.Title)
	assert.Equal(t, "/users/me", body.Path)
	assert.NotEmpty(t, body.CorrelationID)
	assert.NotEmpty(t, body.Timestamp)
}

func TestProtectedRoute_InvalidToken(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.validator.err = apperr.New(apperr.CodeAuthenticationExpired, "token is expired")

	rec := h.do(t, authedRequest(http.MethodGet, "/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token is expired", decodeErrorBody(t, rec).Detail)
}

func TestAdminRoute_RequiresElevatedRole(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, authedRequest(http.MethodGet, "/admin/metrics", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "Forbidden", body.Title)
}

func TestAdminRoute_ModeratorAllowed(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.validator.token = routerTestToken("mod-subject", "mod@example.com", "MODERATOR")

	rec := h.do(t, authedRequest(http.MethodGet, "/admin/metrics", nil))

	// No /admin handler is registered; clearing authorization proves the
	// policy passed and the 404 comes from routing.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit_AppliesBeforeAuth(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.limiter.allowed = false

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/users/me", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too Many Requests", rec.Body.String())
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_OK(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	h.pool.ExpectQuery(`SELECT EXISTS`).
		WithArgs("jane.doe@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	h.pool.ExpectQuery(`INSERT INTO app_user`).
		WithArgs(pgxmock.AnyArg(), "jane.doe@example.com", "Jane Doe", "",
			pgxmock.AnyArg(), "", user.SystemAuditor).
		WillReturnRows(userTestRow(uuid.New(), "jane.doe@example.com", "Jane Doe", "kc-id"))

	payload := `{"email":"Jane.Doe@example.com","password":"s3cret-pass","firstName":"Jane","lastName":"Doe"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(payload))
	rec := h.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "jane.doe@example.com", resp.Email)
	assert.Equal(t, "Jane Doe", resp.DisplayName)
	require.NoError(t, h.pool.ExpectationsWereMet())
}

func TestRegister_ValidationErrorBody(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	payload := `{"email":"not-an-email","password":"short","firstName":"Jane","lastName":"Doe"}`
	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(payload)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	require.NotEmpty(t, body.Errors)
	fields := make([]string, 0, len(body.Errors))
	for _, fe := range body.Errors {
		fields = append(fields, fe.FieldName)
	}
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestRegister_MalformedJSON(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorBody(t, rec).Detail, "not valid JSON")
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

func TestMe_ReturnsMergedProfile(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	id := uuid.New()
	h.pool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("8c41d1e2-subject").
		WillReturnRows(userTestRow(id, "jane.doe@example.com", "Jane Doe", "8c41d1e2-subject"))

	rec := h.do(t, authedRequest(http.MethodGet, "/users/me", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "8c41d1e2-subject", resp.Subject)
	assert.Equal(t, "jane.doe", resp.Username)
	assert.Equal(t, "Jane Doe", resp.Name)
	assert.Equal(t, "jane.doe@example.com", resp.Email)
	assert.Equal(t, []string{"ROLE_USER"}, resp.Roles)
	require.NoError(t, h.pool.ExpectationsWereMet())
}

func TestUpdateMe_AppliesChanges(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	id := uuid.New()
	h.pool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("8c41d1e2-subject").
		WillReturnRows(userTestRow(id, "jane.doe@example.com", "Jane Doe", "8c41d1e2-subject"))
	// Audit identity lookup; the write is attributed to the local id.
	h.pool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("8c41d1e2-subject").
		WillReturnRows(userTestRow(id, "jane.doe@example.com", "Jane Doe", "8c41d1e2-subject"))
	h.pool.ExpectQuery(`UPDATE app_user`).
		WithArgs(id, "Jane D.", "+33612345678", pgxmock.AnyArg(), "", id.String()).
		WillReturnRows(userTestRow(id, "jane.doe@example.com", "Jane D.", "8c41d1e2-subject"))

	payload := `{"displayName":"Jane D.","phoneNumber":"+33612345678"}`
	rec := h.do(t, authedRequest(http.MethodPut, "/users/me", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, h.pool.ExpectationsWereMet())
}

func TestDeleteMe_NoContent(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	id := uuid.New()
	h.pool.ExpectQuery(`SELECT .* FROM app_user WHERE external_id = \$1`).
		WithArgs("8c41d1e2-subject").
		WillReturnRows(userTestRow(id, "jane.doe@example.com", "Jane Doe", "8c41d1e2-subject"))
	h.pool.ExpectExec(`DELETE FROM app_user`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := h.do(t, authedRequest(http.MethodDelete, "/users/me", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.NoError(t, h.pool.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

// multipartUpload builds a multipart body with a single "file" part.
func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage_Created(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	body, contentType := multipartUpload(t, "selfie.jpg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF})
	req := authedRequest(http.MethodPost, "/images/avatars", body)
	req.Header.Set("Content-Type", contentType)

	rec := h.do(t, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp imageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.URL, "http://localhost:9000/media/avatars/"), resp.URL)
	assert.True(t, strings.HasSuffix(resp.URL, ".jpg"), resp.URL)
	assert.Len(t, h.store.objects, 1)
}

func TestUploadImage_MissingFilePart(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/images/avatars", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := h.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorBody(t, rec).Detail, "file")
}

func TestUploadImage_RejectedType(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("plain text"))
	req := authedRequest(http.MethodPost, "/images/avatars", body)
	req.Header.Set("Content-Type", contentType)

	rec := h.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, decodeErrorBody(t, rec).Errors)
	assert.Empty(t, h.store.objects)
}

func TestDeleteImage_NoContent(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.store.objects["media/avatars/pic.jpg"] = []byte{0xFF}

	rec := h.do(t, authedRequest(http.MethodDelete, "/images/avatars/pic.jpg", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.store.objects)
}

func TestDeleteImage_Missing(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	rec := h.do(t, authedRequest(http.MethodDelete, "/images/avatars/ghost.jpg", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
