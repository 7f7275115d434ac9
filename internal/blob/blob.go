// Package blob stores car photos. Keys are slash-separated relative paths such
// as "cars/<car id>/<image id>.jpg".
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists under a key
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for keys that are empty, absolute or escape the store root
	ErrInvalidKey = errors.New("invalid blob key")

	// ErrTooLarge is returned for uploads above the configured size limit
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned for uploads whose content is not an allowed image type
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmpty is returned for zero-length uploads
	ErrEmpty = errors.New("file is empty")

	// ErrMissingFile is returned when the form has no file under the expected field
	ErrMissingFile = errors.New("no file uploaded")
)

// Info describes a stored object
type Info struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is an object store for uploaded files
type Store interface {
	// Put writes r under key, replacing any existing object, and returns the bytes written
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)

	// Open returns a reader for the object under key
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)

	// Delete removes the object under key
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix
	List(ctx context.Context, prefix string) ([]Info, error)
}

// ValidateKey checks that key is a clean relative slash path
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return ErrInvalidKey
	}
	if path.Clean(key) != key {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || strings.HasPrefix(part, tempPrefix) {
			return ErrInvalidKey
		}
	}
	return nil
}
