package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/benseddik/idp-backend/internal/images"
	"github.com/benseddik/idp-backend/internal/user"
	"github.com/benseddik/idp-backend/pkg/auth"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// maxJSONBodySize caps JSON request bodies.
const maxJSONBodySize = 1 << 20

// multipartFormMemory is the in-memory threshold for multipart parsing;
// larger uploads spill to temp files.
const multipartFormMemory = 4 << 20

// Checker is a dependency health probe.
type Checker interface {
	Health(ctx context.Context) error
}

// NamedChecker pairs a probe with the name reported in readiness
// responses.
type NamedChecker struct {
	Name    string
	Checker Checker
}

// Handlers carries the services behind the HTTP endpoints.
type Handlers struct {
	users  *user.Service
	images *images.Service
	checks []NamedChecker
	logger *slog.Logger
}

// NewHandlers creates the endpoint handler set.
func NewHandlers(users *user.Service, imageSvc *images.Service, checks []NamedChecker, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{users: users, images: imageSvc, checks: checks, logger: logger}
}

// registerRequest is the POST /auth/register payload.
type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// registerResponse is the POST /auth/register result.
type registerResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// meResponse is the GET/PUT /users/me result, merging token claims with
// the local profile row.
type meResponse struct {
	Subject     string    `json:"subject"`
	Username    string    `json:"username,omitempty"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Roles       []string  `json:"roles"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
}

// updateProfileRequest is the PUT /users/me payload. Absent or blank
// fields leave the stored value untouched.
type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
	PhoneNumber string `json:"phoneNumber"`
	PhotoURL    string `json:"photoUrl"`
}

// imageResponse is the POST /images/{folder} result.
type imageResponse struct {
	URL string `json:"url"`
}

// Register handles POST /auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	created, err := h.users.Register(r.Context(), user.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		ID:          created.ID.String(),
		Email:       created.Email,
		DisplayName: created.DisplayName,
	})
}

// Me handles GET /users/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.EnsureCurrentUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.meBody(r, u))
}

// UpdateMe handles PUT /users/me.
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	u, err := h.users.UpdateCurrentUser(r.Context(), user.UpdateProfileInput{
		DisplayName: req.DisplayName,
		PhoneNumber: req.PhoneNumber,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.meBody(r, u))
}

// DeleteMe handles DELETE /users/me.
func (h *Handlers) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteCurrentUser(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /images/{folder}. The file arrives as the
// "file" part of a multipart form.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	folder := mux.Vars(r)["folder"]

	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		WriteError(w, r, apperr.Wrap(err, apperr.CodeValidation,
			"request is not a valid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r, apperr.Wrap(err, apperr.CodeValidationRequired,
			"multipart form must carry a \"file\" part"))
		return
	}
	defer file.Close()

	url, err := h.images.Store(r.Context(), folder, images.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageResponse{URL: url})
}

// DeleteImage handles DELETE /images/{folder}/{filename}.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.images.Delete(r.Context(), vars["folder"], vars["filename"]); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health: a liveness probe that always succeeds
// while the process serves requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

// Ready handles GET /ready: a readiness probe running every dependency
// check. Any failing dependency yields 503 with per-dependency detail.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Checker.Health(r.Context()); err != nil {
			deps[c.Name] = "down"
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(r.Context(), "readiness check failed",
				"dependency", c.Name, "error", err)
		} else {
			deps[c.Name] = "up"
		}
	}

	body := map[string]any{"dependencies": deps}
	if status == http.StatusOK {
		body["status"] = "up"
	} else {
		body["status"] = "down"
	}
	writeJSON(w, status, body)
}

// meBody assembles the profile response from the request principal and
// the local row.
func (h *Handlers) meBody(r *http.Request, u *user.User) meResponse {
	resp := meResponse{
		Name:        u.DisplayName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		PhotoURL:    u.PhotoURL,
		Roles:       []string{},
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok && principal.Token != nil {
		resp.Subject = principal.Token.Subject()
		resp.Username = principal.Token.PreferredUsername()
		resp.Roles = principal.Roles
		resp.IssuedAt = principal.Token.IssuedAt()
		resp.ExpiresAt = principal.Token.ExpiresAt()
	}
	return resp
}

// decodeJSON decodes a JSON request body, rejecting unknown fields and
// oversized bodies.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(err, apperr.CodeValidation,
			"request body is not valid JSON")
	}
	return nil
}
