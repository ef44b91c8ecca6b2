// Package images implements profile image storage on the S3-compatible
// object store: upload validation (MIME type, extension, size ceiling,
// folder naming), uuid object naming, and deletion with existence
// checks.
package images

import (
	"context"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"

	"github.com/benseddik/idp-backend/pkg/clients/minio"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// MaxImageSize is the upload size ceiling (10 MiB).
const MaxImageSize = 10 << 20

// allowedMIMETypes are the content types accepted for upload.
var allowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
	"image/heic": {},
}

// allowedExtensions are the file extensions accepted for upload, without
// the leading dot.
var allowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"heic": {},
}

// folderPattern restricts folder names to a single safe path segment.
var folderPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Upload describes an incoming image file.
type Upload struct {
	// Filename is the client-supplied name, used only for its
	// extension.
	Filename string

	// ContentType is the declared MIME type.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Reader streams the file content.
	Reader io.Reader
}

// Service stores and deletes images in the media bucket.
type Service struct {
	store  *minio.Client
	logger *slog.Logger
}

// NewService creates a Service over the given object storage client.
func NewService(store *minio.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Store validates the upload and writes it under
// "<folder>/<uuid>.<ext>", returning the public URL of the stored
// object. Validation failures carry [apperr.CodeValidationFile] with a
// field entry naming the offending attribute.
func (s *Service) Store(ctx context.Context, folder string, up Upload) (string, error) {
	if err := validateUpload(folder, up); err != nil {
		return "", err
	}

	ext := extension(up.Filename)
	key := folder + "/" + uuid.NewString() + "." + ext

	_, err := s.store.PutObject(ctx, key, up.Reader, up.Size, miniogo.PutObjectOptions{
		ContentType: strings.ToLower(up.ContentType),
	})
	if err != nil {
		return "", err
	}

	url := s.store.ObjectURL(key)
	s.logger.Info("stored image", "key", key, "size", up.Size)
	return url, nil
}

// Delete removes the object at "<folder>/<filename>". A missing object
// yields [apperr.CodeNotFoundFile]; the object is stat'ed first so the
// caller can distinguish "deleted" from "never existed".
func (s *Service) Delete(ctx context.Context, folder, filename string) error {
	if !folderPattern.MatchString(folder) {
		return fileError("folder", "must contain only letters, digits, underscores, and hyphens")
	}
	if filename == "" || filename != path.Base(filename) {
		return fileError("filename", "must be a plain file name")
	}

	key := folder + "/" + filename
	if _, err := s.store.StatObject(ctx, key, miniogo.StatObjectOptions{}); err != nil {
		return err
	}
	if err := s.store.RemoveObject(ctx, key, miniogo.RemoveObjectOptions{}); err != nil {
		return err
	}
	s.logger.Info("deleted image", "key", key)
	return nil
}

// validateUpload enforces the folder name, MIME, extension, and size
// rules.
func validateUpload(folder string, up Upload) error {
	if !folderPattern.MatchString(folder) {
		return fileError("folder", "must contain only letters, digits, underscores, and hyphens")
	}
	if up.Size <= 0 {
		return fileError("file", "must not be empty")
	}
	if up.Size > MaxImageSize {
		return fileError("file", "must not exceed 10 MiB")
	}
	if _, ok := allowedMIMETypes[strings.ToLower(up.ContentType)]; !ok {
		return fileError("contentType", "must be one of image/jpeg, image/jpg, image/png, image/webp, image/heic")
	}
	if _, ok := allowedExtensions[extension(up.Filename)]; !ok {
		return fileError("filename", "extension must be one of jpg, jpeg, png, webp, heic")
	}
	return nil
}

// extension returns the lowercase file extension without the dot.
func extension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	return strings.ToLower(ext)
}

// fileError builds a file validation error with a single field entry.
func fileError(field, message string) *apperr.Error {
	return apperr.New(apperr.CodeValidationFile, "invalid image upload").
		WithFields(apperr.FieldError{
			EntityName: "imageUpload",
			FieldName:  field,
			Message:    message,
			Code:       "File",
		})
}
